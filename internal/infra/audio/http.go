package audio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"drive-in/internal/application"
	"drive-in/internal/domain"
)

var (
	errQueueFull      = errors.New("queue full, try again")
	errSourceStopped  = errors.New("source stopped")
	errReplyTimeout   = errors.New("timed out waiting for the assistant")
	defaultReplyLimit = 60 * time.Second
)

// HTTPSource accepts customer input over HTTP and WebSocket and hands it to
// the conversation loop through a bounded queue. Request handlers wait for
// the loop's reply and return it to the caller.
type HTTPSource struct {
	addr         string
	server       *http.Server
	captures     chan *domain.Capture
	logger       *slog.Logger
	mu           sync.Mutex
	running      bool
	closed       bool
	mux          *http.ServeMux
	rateLimiter  *RateLimiter
	authToken    string
	replyTimeout time.Duration
	origins      []string
}

type speechRequest struct {
	Text string `json:"text"`
}

func NewHTTPSource(addr string, authToken string, logger *slog.Logger) *HTTPSource {
	h := &HTTPSource{
		addr:         addr,
		captures:     make(chan *domain.Capture, 10),
		logger:       logger,
		mux:          http.NewServeMux(),
		rateLimiter:  NewRateLimiter(30, time.Minute), // 30 requests per minute per IP
		authToken:    authToken,
		replyTimeout: defaultReplyLimit,
	}
	h.mux.HandleFunc("POST /process_speech", h.guard(h.handleSpeech))
	h.mux.HandleFunc("POST /text", h.guard(h.handleText))
	h.mux.HandleFunc("POST /audio", h.guard(h.handleAudio))
	h.mux.HandleFunc("GET /ws", h.guard(h.handleWebSocket))
	// No rate limiting on health check
	h.mux.HandleFunc("GET /health", h.handleHealth)
	return h
}

// SetReplyTimeout bounds how long a request waits for the loop to answer.
func (h *HTTPSource) SetReplyTimeout(d time.Duration) {
	if d > 0 {
		h.replyTimeout = d
	}
}

// SetAllowedOrigins sets the host patterns accepted for cross-origin
// WebSocket connections.
func (h *HTTPSource) SetAllowedOrigins(patterns []string) {
	h.origins = patterns
}

// Mount registers an extra handler, such as /metrics, on the same server.
func (h *HTTPSource) Mount(pattern string, handler http.Handler) {
	h.mux.Handle(pattern, handler)
}

func (h *HTTPSource) Name() string {
	return "http"
}

func (h *HTTPSource) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return nil
	}

	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      h.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: h.replyTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		h.logger.Info("HTTP speech server starting", "addr", h.addr)
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", "error", err)
		}
	}()

	h.running = true
	return nil
}

func (h *HTTPSource) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = false
	if !h.closed {
		h.closed = true
		close(h.captures)
	}
	server := h.server
	h.mu.Unlock()

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			h.logger.Warn("graceful shutdown failed, forcing close", "error", err)
			if err := server.Close(); err != nil {
				return fmt.Errorf("closing server: %w", err)
			}
		}
	}

	return nil
}

func (h *HTTPSource) NextCapture(ctx context.Context) (*domain.Capture, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case c, ok := <-h.captures:
		if !ok {
			return nil, application.ErrSourceClosed
		}
		return c, nil
	}
}

func (h *HTTPSource) Handler() http.Handler {
	return h.mux
}

// Inject queues a capture without going through HTTP. It reports whether
// the capture was accepted.
func (h *HTTPSource) Inject(c *domain.Capture) bool {
	return h.enqueue(c) == nil
}

func (h *HTTPSource) enqueue(c *domain.Capture) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return errSourceStopped
	}

	select {
	case h.captures <- c:
		return nil
	default:
		return errQueueFull
	}
}

// submit queues c and waits for the loop's reply.
func (h *HTTPSource) submit(ctx context.Context, c *domain.Capture) (domain.Reply, error) {
	reply := c.WithReply()
	if err := h.enqueue(c); err != nil {
		return domain.Reply{}, err
	}

	timer := time.NewTimer(h.replyTimeout)
	defer timer.Stop()

	select {
	case r := <-reply:
		return r, nil
	case <-ctx.Done():
		return domain.Reply{}, ctx.Err()
	case <-timer.C:
		return domain.Reply{}, errReplyTimeout
	}
}

func (h *HTTPSource) guard(next http.HandlerFunc) http.HandlerFunc {
	return h.rateLimiter.Middleware(h.authenticate(next))
}

func (h *HTTPSource) authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.authToken != "" {
			// Check header first
			token := r.Header.Get("X-Auth-Token")
			// If not in header, check query parameter
			if token == "" {
				token = r.URL.Query().Get("token")
			}

			if token != h.authToken {
				h.logger.Warn("unauthorized request", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (h *HTTPSource) handleSpeech(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req speechRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeJSON(w, http.StatusOK, domain.Reply{})
		return
	}

	h.logger.Info("received speech via HTTP", "text", text)
	h.respond(w, r, domain.NewTextCapture(text))
}

func (h *HTTPSource) handleText(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, 1024))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	text := strings.TrimSpace(string(data))
	if text == "" {
		http.Error(w, "empty text", http.StatusBadRequest)
		return
	}

	h.logger.Info("received text via HTTP", "text", text)
	h.respond(w, r, domain.NewTextCapture(text))
}

func (h *HTTPSource) handleAudio(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, 10*1024*1024))
	if err != nil {
		h.logger.Error("reading audio body", "error", err)
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if len(data) == 0 {
		http.Error(w, "empty audio", http.StatusBadRequest)
		return
	}

	h.logger.Info("received audio via HTTP", "bytes", len(data))
	h.respond(w, r, domain.NewAudioCapture(data))
}

func (h *HTTPSource) respond(w http.ResponseWriter, r *http.Request, c *domain.Capture) {
	reply, err := h.submit(r.Context(), c)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, reply)
	case errors.Is(err, errQueueFull), errors.Is(err, errSourceStopped):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, errReplyTimeout):
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
	default:
		// Client went away; nothing left to write.
		h.logger.Debug("request abandoned", "error", err)
	}
}

func (h *HTTPSource) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	running := h.running
	queueSize := len(h.captures)
	h.mu.Unlock()

	status := "ok"
	statusCode := http.StatusOK

	if !running {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, map[string]any{
		"status":     status,
		"running":    running,
		"queue_size": queueSize,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
