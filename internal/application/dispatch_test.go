package application_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"drive-in/internal/application"
	"drive-in/internal/domain"
)

type recordingNotifier struct {
	messages []string
}

func (r *recordingNotifier) Notify(_ context.Context, message string) error {
	r.messages = append(r.messages, message)
	return nil
}

func TestDispatcher_JoinsSinkErrors(t *testing.T) {
	a := &recordingSink{err: errors.New("queue unreachable")}
	b := &recordingSink{}
	d := application.NewDispatcher(discardLogger(), a, b)

	err := d.Dispatch(context.Background(), domain.Ticket{ID: "t1", Total: 450})
	if err == nil || !strings.Contains(err.Error(), "queue unreachable") {
		t.Errorf("error: got %v", err)
	}
	if len(b.received()) != 1 {
		t.Error("healthy sink should still receive the ticket")
	}
}

func TestDispatcher_NoSinks(t *testing.T) {
	d := application.NewDispatcher(discardLogger())
	if err := d.Dispatch(context.Background(), domain.Ticket{ID: "t1"}); err != nil {
		t.Errorf("got %v", err)
	}
}

func TestNotifierSink(t *testing.T) {
	n := &recordingNotifier{}
	sink := application.NewNotifierSink(n)

	ticket := domain.Ticket{
		ID:    "0f8c2a9e-5f7d-4c1e-9a65-1a2b3c4d5e6f",
		Items: []domain.MenuItem{{Name: "Zinger Burger", Price: 450}, {Name: "Krunch Burger", Price: 250}},
		Total: 700,
	}

	if err := sink.Dispatch(context.Background(), ticket); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	want := "New order 0f8c2a9e: Zinger Burger, Krunch Burger. Total Rs. 700"
	if len(n.messages) != 1 || n.messages[0] != want {
		t.Errorf("messages: got %v, want %q", n.messages, want)
	}
}
