package application

import (
	"context"
	"fmt"
	"strings"

	"drive-in/internal/domain"
)

type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// NotifierSink turns a Notifier into an OrderSink that pushes a one-line
// summary of each ticket to staff.
type NotifierSink struct {
	notifier Notifier
}

func NewNotifierSink(n Notifier) *NotifierSink {
	return &NotifierSink{notifier: n}
}

func (s *NotifierSink) Name() string {
	return "notifier"
}

func (s *NotifierSink) Dispatch(ctx context.Context, t domain.Ticket) error {
	return s.notifier.Notify(ctx, TicketSummary(t))
}

func TicketSummary(t domain.Ticket) string {
	return fmt.Sprintf("New order %s: %s. Total Rs. %d", shortID(t.ID), strings.Join(t.ItemNames(), ", "), t.Total)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
