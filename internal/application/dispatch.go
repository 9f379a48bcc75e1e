package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"drive-in/internal/domain"
)

// OrderSink receives the ticket of every session that ended with items.
type OrderSink interface {
	Dispatch(ctx context.Context, t domain.Ticket) error
	Name() string
}

// Dispatcher fans a ticket out to every sink at once. A failing sink does
// not stop the others.
type Dispatcher struct {
	sinks  []OrderSink
	logger *slog.Logger
}

func NewDispatcher(logger *slog.Logger, sinks ...OrderSink) *Dispatcher {
	return &Dispatcher{sinks: sinks, logger: logger}
}

func (d *Dispatcher) Len() int {
	return len(d.sinks)
}

func (d *Dispatcher) Dispatch(ctx context.Context, t domain.Ticket) error {
	if len(d.sinks) == 0 {
		return nil
	}

	errs := make([]error, len(d.sinks))
	var g errgroup.Group
	for i, sink := range d.sinks {
		g.Go(func() error {
			if err := sink.Dispatch(ctx, t); err != nil {
				errs[i] = fmt.Errorf("%s: %w", sink.Name(), err)
				d.logger.Error("dispatching ticket", "sink", sink.Name(), "ticket", t.ID, "error", err)
				return nil
			}
			d.logger.Info("ticket dispatched", "sink", sink.Name(), "ticket", t.ID)
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}
