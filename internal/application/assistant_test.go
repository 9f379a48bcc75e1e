package application_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"drive-in/internal/application"
	"drive-in/internal/domain"
	"drive-in/internal/menu"
)

type mockSource struct {
	captures chan *domain.Capture
}

func newMockSource() *mockSource {
	return &mockSource{captures: make(chan *domain.Capture, 10)}
}

func (m *mockSource) Start(_ context.Context) error { return nil }
func (m *mockSource) Stop() error                   { return nil }
func (m *mockSource) Name() string                  { return "mock" }

func (m *mockSource) NextCapture(ctx context.Context) (*domain.Capture, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case c, ok := <-m.captures:
		if !ok {
			return nil, application.ErrSourceClosed
		}
		return c, nil
	}
}

// say injects a text capture and waits for the assistant's reply.
func (m *mockSource) say(t *testing.T, text string) domain.Reply {
	t.Helper()
	c := domain.NewTextCapture(text)
	return m.send(t, c)
}

func (m *mockSource) send(t *testing.T, c *domain.Capture) domain.Reply {
	t.Helper()
	reply := c.WithReply()
	m.captures <- c
	select {
	case r := <-reply:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for reply")
		return domain.Reply{}
	}
}

type mockSTT struct {
	transcriptions map[string]string
}

func (m *mockSTT) Transcribe(_ context.Context, audio []byte) (string, error) {
	if text, ok := m.transcriptions[string(audio)]; ok {
		return text, nil
	}
	return "", errors.New("could not understand audio")
}

type recordingSink struct {
	mu      sync.Mutex
	tickets []domain.Ticket
	err     error
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Dispatch(_ context.Context, t domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets = append(r.tickets, t)
	return r.err
}

func (r *recordingSink) received() []domain.Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Ticket(nil), r.tickets...)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startAssistant(t *testing.T, catalog *menu.Catalog, stt application.SpeechToText, sinks ...application.OrderSink) (*mockSource, *syncBuffer) {
	t.Helper()
	source := newMockSource()
	out := &syncBuffer{}
	logger := discardLogger()

	assistant := application.NewAssistant(
		source,
		stt,
		&mockChat{reply: "We open at noon."},
		catalog,
		application.NewDispatcher(logger, sinks...),
		application.NewConsoleRenderer(out),
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = assistant.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	return source, out
}

func TestAssistant_OrderFlow(t *testing.T) {
	sink := &recordingSink{}
	source, out := startAssistant(t, testCatalog(), &application.NoopSTT{}, sink)

	if r := source.say(t, "add Zinger Burger"); !strings.Contains(r.Speech, "Rs. 450") {
		t.Errorf("add reply: %q", r.Speech)
	}
	if r := source.say(t, "add Krunch Burger"); !strings.Contains(r.Speech, "Rs. 700") {
		t.Errorf("second add reply: %q", r.Speech)
	}
	if r := source.say(t, "when do you open?"); r.Speech != "We open at noon." {
		t.Errorf("chat reply: %q", r.Speech)
	}

	r := source.say(t, "thank you")
	if !r.Ended || r.Speech != application.Farewell {
		t.Fatalf("closing reply: %+v", r)
	}

	tickets := sink.received()
	if len(tickets) != 1 {
		t.Fatalf("tickets: got %d, want 1", len(tickets))
	}
	if tickets[0].Total != 700 || len(tickets[0].Items) != 2 {
		t.Errorf("ticket: %+v", tickets[0])
	}

	// The next customer starts from an empty order.
	if r := source.say(t, "total amount"); r.Speech != "Your current total order amount is Rs. 0." {
		t.Errorf("new session total: %q", r.Speech)
	}

	rendered := out.String()
	if strings.Count(rendered, application.Greeting) != 2 {
		t.Errorf("expected a greeting per session, got:\n%s", rendered)
	}
	if !strings.Contains(rendered, "Assistant: Added Zinger Burger to your order.") {
		t.Errorf("reply not rendered:\n%s", rendered)
	}
}

func TestAssistant_EmptyOrderDispatchesNothing(t *testing.T) {
	sink := &recordingSink{}
	source, _ := startAssistant(t, testCatalog(), &application.NoopSTT{}, sink)

	source.say(t, "menu")
	if r := source.say(t, "thank you"); !r.Ended {
		t.Fatal("session should end")
	}

	if n := len(sink.received()); n != 0 {
		t.Errorf("tickets: got %d, want 0", n)
	}
}

func TestAssistant_SinkFailureIsNotFatal(t *testing.T) {
	failing := &recordingSink{err: errors.New("broker down")}
	ok := &recordingSink{}
	source, _ := startAssistant(t, testCatalog(), &application.NoopSTT{}, failing, ok)

	source.say(t, "add Family Bucket")
	source.say(t, "thank you")

	if len(ok.received()) != 1 || len(failing.received()) != 1 {
		t.Fatalf("both sinks should have been tried: ok=%d failing=%d", len(ok.received()), len(failing.received()))
	}

	if r := source.say(t, "add Zinger Burger"); !strings.Contains(r.Speech, "Rs. 450") {
		t.Errorf("assistant stopped after sink failure: %q", r.Speech)
	}
}

func TestAssistant_AudioCapture(t *testing.T) {
	stt := &mockSTT{transcriptions: map[string]string{
		"wav:add": "add family bucket",
	}}
	source, _ := startAssistant(t, testCatalog(), stt)

	r := source.send(t, domain.NewAudioCapture([]byte("wav:add")))
	if !strings.Contains(r.Speech, "Rs. 2200") {
		t.Errorf("audio add reply: %q", r.Speech)
	}

	// Unrecognised audio is a silent re-prompt.
	r = source.send(t, domain.NewAudioCapture([]byte("static noise")))
	if r.Speech != "" || r.Ended {
		t.Errorf("recognition failure reply: %+v", r)
	}

	if r := source.say(t, "total amount"); !strings.Contains(r.Speech, "2200") {
		t.Errorf("total after recognition failure: %q", r.Speech)
	}
}

func TestAssistant_AbsentCatalog(t *testing.T) {
	source, out := startAssistant(t, nil, &application.NoopSTT{})

	if r := source.say(t, "add Zinger Burger"); r.Speech != application.MenuUnavailable {
		t.Errorf("got %q", r.Speech)
	}

	if !strings.Contains(out.String(), application.MenuUnavailable) {
		t.Error("unavailability should be announced at session start")
	}
}

func TestAssistant_SourceClosedEndsRun(t *testing.T) {
	source := newMockSource()
	logger := discardLogger()
	assistant := application.NewAssistant(source, &application.NoopSTT{}, nil, testCatalog(), nil, nil, logger)

	close(source.captures)

	errCh := make(chan error, 1)
	go func() { errCh <- assistant.Run(context.Background()) }()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run: got %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after source closed")
	}
}

func TestAssistant_ResetDiscardsOpenOrder(t *testing.T) {
	sink := &recordingSink{}
	source, out := startAssistant(t, testCatalog(), &mockSTT{}, sink)

	if r := source.say(t, "add Zinger Burger"); !strings.Contains(r.Speech, "Rs. 450") {
		t.Fatalf("add reply = %q", r.Speech)
	}

	r := source.send(t, domain.NewResetCapture())
	if !r.Ended || r.Speech != "" {
		t.Errorf("reset reply = %+v", r)
	}

	if r := source.say(t, "total amount"); r.Speech != "Your current total order amount is Rs. 0." {
		t.Errorf("next customer inherited the order: %q", r.Speech)
	}
	if got := sink.received(); len(got) != 0 {
		t.Errorf("abandoned order must not produce a ticket, got %+v", got)
	}
	if n := strings.Count(out.String(), application.Greeting); n != 2 {
		t.Errorf("greetings = %d, want 2 (startup and after reset)", n)
	}
}
