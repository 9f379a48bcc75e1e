package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"drive-in/internal/domain"
	"drive-in/internal/menu"
	"drive-in/internal/observe"
)

// Assistant runs the drive-in conversation loop: one capture at a time,
// one session per customer.
type Assistant struct {
	source     UtteranceSource
	stt        SpeechToText
	chat       ChatCompleter
	catalog    *menu.Catalog
	dispatcher *Dispatcher
	renderer   Renderer
	metrics    *observe.Metrics
	logger     *slog.Logger

	sessionOpts []SessionOption
	now         func() time.Time

	session *Session
}

type AssistantOption func(*Assistant)

func WithMetrics(m *observe.Metrics) AssistantOption {
	return func(a *Assistant) {
		if m != nil {
			a.metrics = m
		}
	}
}

func WithSessionOptions(opts ...SessionOption) AssistantOption {
	return func(a *Assistant) {
		a.sessionOpts = append(a.sessionOpts, opts...)
	}
}

func WithClock(now func() time.Time) AssistantOption {
	return func(a *Assistant) {
		a.now = now
	}
}

func NewAssistant(
	source UtteranceSource,
	stt SpeechToText,
	chat ChatCompleter,
	catalog *menu.Catalog,
	dispatcher *Dispatcher,
	renderer Renderer,
	logger *slog.Logger,
	opts ...AssistantOption,
) *Assistant {
	a := &Assistant{
		source:     source,
		stt:        stt,
		chat:       chat,
		catalog:    catalog,
		dispatcher: dispatcher,
		renderer:   renderer,
		metrics:    observe.DefaultMetrics(),
		logger:     logger,
		now:        time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	if a.dispatcher == nil {
		a.dispatcher = NewDispatcher(logger)
	}
	if a.renderer == nil {
		a.renderer = NoopRenderer{}
	}
	return a
}

// Run serves customers until ctx is cancelled or the source closes.
func (a *Assistant) Run(ctx context.Context) error {
	if a.catalog == nil {
		a.logger.Warn("menu unavailable, orders cannot be taken")
	}

	a.logger.Info("starting utterance source", "source", a.source.Name())
	if err := a.source.Start(ctx); err != nil {
		return fmt.Errorf("starting source: %w", err)
	}
	defer a.source.Stop()

	a.startSession(ctx)
	defer a.metrics.ActiveSessions.Add(context.Background(), -1)

	a.logger.Info("assistant ready, listening for customers")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			err := a.processOneCapture(ctx)
			if err == nil {
				continue
			}
			if errors.Is(err, ErrSourceClosed) {
				a.logger.Info("utterance source closed")
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Error("processing capture", "error", err)
		}
	}
}

func (a *Assistant) startSession(ctx context.Context) {
	opts := append([]SessionOption{WithSessionMetrics(a.metrics)}, a.sessionOpts...)
	a.session = NewSession(a.catalog, a.chat, a.logger, opts...)
	a.metrics.ActiveSessions.Add(ctx, 1)

	a.logger.Info("session started", "session", a.session.ID())
	a.render(ctx, Greeting)
	if a.catalog == nil {
		a.render(ctx, MenuUnavailable)
	}
}

func (a *Assistant) processOneCapture(ctx context.Context) error {
	capture, err := a.source.NextCapture(ctx)
	if err != nil {
		if errors.Is(err, ErrNoInput) {
			return nil
		}
		return fmt.Errorf("getting capture: %w", err)
	}

	if capture != nil && capture.Reset {
		a.abandonSession(ctx)
		capture.Respond(domain.Reply{Ended: true})
		return nil
	}

	if capture.IsEmpty() {
		capture.Respond(domain.Reply{})
		return nil
	}

	text := capture.Text
	if text == "" {
		a.logger.Info("received audio", "bytes", len(capture.Audio))

		start := time.Now()
		text, err = a.stt.Transcribe(ctx, capture.Audio)
		a.metrics.RecordSTT(ctx, time.Since(start), err)
		if err != nil {
			a.logger.Warn("speech not recognized", "error", err)
			capture.Respond(domain.Reply{})
			return nil
		}

		a.logger.Info("transcribed", "text", text)
	}

	a.logger.Info("user input", "session", a.session.ID(), "text", text)

	resp := a.session.Handle(ctx, text)
	if resp.Text != "" {
		a.render(ctx, resp.Text)
	}
	if resp.Ended {
		a.finishSession(ctx)
	}
	capture.Respond(domain.Reply{Speech: resp.Text, Ended: resp.Ended})

	return nil
}

func (a *Assistant) finishSession(ctx context.Context) {
	s := a.session
	a.metrics.ActiveSessions.Add(ctx, -1)

	items := s.LineItems()
	a.logger.Info("session ended", "session", s.ID(), "items", len(items), "total", s.Total())

	if len(items) > 0 {
		ticket := s.Ticket(a.now())
		a.metrics.RecordTicket(ctx, ticket.Total)
		if err := a.dispatcher.Dispatch(ctx, ticket); err != nil {
			a.logger.Error("ticket dispatch incomplete", "ticket", ticket.ID, "error", err)
		}
	}

	a.startSession(ctx)
}

// abandonSession drops the current order without a ticket. Used when a
// customer disconnects before closing.
func (a *Assistant) abandonSession(ctx context.Context) {
	s := a.session
	a.metrics.ActiveSessions.Add(ctx, -1)
	a.logger.Info("session abandoned", "session", s.ID(), "items", len(s.LineItems()), "total", s.Total())
	a.startSession(ctx)
}

func (a *Assistant) render(ctx context.Context, text string) {
	if err := a.renderer.Render(ctx, text); err != nil {
		a.logger.Error("rendering reply", "error", err)
	}
}
