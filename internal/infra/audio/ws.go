package audio

import (
	"errors"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"drive-in/internal/domain"
)

// handleWebSocket keeps one browser connection open for a whole
// conversation: each {"text": ...} frame gets a {"speech": ..., "ended": ...}
// frame back. The loop serves a single lane, so a connection that drops
// mid-order queues a reset and the next customer starts from an empty order.
func (h *HTTPSource) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.CloseNow()

	conn.SetReadLimit(4096)
	ctx := r.Context()
	h.logger.Info("websocket client connected", "remote_addr", r.RemoteAddr)

	var talked, ended bool
	defer func() {
		if !talked || ended {
			return
		}
		if err := h.enqueue(domain.NewResetCapture()); err != nil {
			h.logger.Warn("could not reset abandoned session", "remote_addr", r.RemoteAddr, "error", err)
			return
		}
		h.logger.Info("websocket client left mid-order", "remote_addr", r.RemoteAddr)
	}()

	for {
		var req speechRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && websocket.CloseStatus(err) != websocket.StatusGoingAway {
				h.logger.Debug("websocket read ended", "error", err)
			}
			return
		}

		text := strings.TrimSpace(req.Text)
		if text == "" {
			continue
		}

		h.logger.Info("received speech via websocket", "text", text)

		talked = true
		reply, err := h.submit(ctx, domain.NewTextCapture(text))
		if err != nil {
			code := websocket.StatusInternalError
			if errors.Is(err, errQueueFull) || errors.Is(err, errSourceStopped) {
				code = websocket.StatusTryAgainLater
			}
			conn.Close(code, err.Error())
			return
		}
		ended = reply.Ended

		if err := wsjson.Write(ctx, conn, reply); err != nil {
			h.logger.Debug("websocket write failed", "error", err)
			return
		}

		if reply.Ended {
			conn.Close(websocket.StatusNormalClosure, "session ended")
			return
		}
	}
}
