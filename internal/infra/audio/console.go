package audio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"drive-in/internal/application"
	"drive-in/internal/domain"
)

// ConsoleSource reads one typed utterance per line. End of input or Stop
// closes the source.
type ConsoleSource struct {
	in     io.Reader
	lines  chan string
	errs   chan error
	done   chan struct{}
	exited chan struct{}
	start  sync.Once
	stop   sync.Once
}

func NewConsoleSource(in io.Reader) *ConsoleSource {
	return &ConsoleSource{
		in:     in,
		lines:  make(chan string),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
}

func (c *ConsoleSource) Name() string {
	return "console"
}

func (c *ConsoleSource) Start(_ context.Context) error {
	c.start.Do(func() {
		go c.read()
	})
	return nil
}

func (c *ConsoleSource) Stop() error {
	c.stop.Do(func() {
		close(c.done)
	})
	return nil
}

func (c *ConsoleSource) read() {
	defer close(c.exited)
	defer close(c.lines)

	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		select {
		case c.lines <- scanner.Text():
		case <-c.done:
			return
		}
	}

	if err := scanner.Err(); err != nil {
		c.errs <- fmt.Errorf("reading console: %w", err)
	}
}

func (c *ConsoleSource) NextCapture(ctx context.Context) (*domain.Capture, error) {
	select {
	case <-c.done:
		return nil, application.ErrSourceClosed
	default:
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, application.ErrSourceClosed
	case line, ok := <-c.lines:
		if !ok {
			select {
			case err := <-c.errs:
				return nil, err
			default:
				return nil, application.ErrSourceClosed
			}
		}
		return domain.NewTextCapture(line), nil
	}
}
