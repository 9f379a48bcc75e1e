package application

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Renderer shows or speaks an assistant reply.
type Renderer interface {
	Render(ctx context.Context, text string) error
}

// ConsoleRenderer writes replies as "Assistant: ..." lines.
type ConsoleRenderer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsoleRenderer(w io.Writer) *ConsoleRenderer {
	return &ConsoleRenderer{w: w}
}

func (r *ConsoleRenderer) Render(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := fmt.Fprintf(r.w, "Assistant: %s\n", text)
	return err
}

// NoopRenderer drops replies. Used when every source answers through the
// capture reply channel.
type NoopRenderer struct{}

func (NoopRenderer) Render(_ context.Context, _ string) error {
	return nil
}
