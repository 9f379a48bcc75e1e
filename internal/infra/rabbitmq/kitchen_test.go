package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"drive-in/internal/domain"
)

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange = exchange
	f.key = key
	f.msg = msg
	return f.err
}

func testTicket() domain.Ticket {
	return domain.Ticket{
		ID:        "3f1c2b9e-0000-4000-8000-000000000001",
		SessionID: "session-1",
		Items: []domain.MenuItem{
			{Name: "Zinger", Price: 450},
			{Name: "Krunch", Price: 250},
			{Name: "Zinger", Price: 450},
		},
		Total:    1150,
		PlacedAt: time.Date(2024, 3, 1, 18, 30, 0, 0, time.UTC),
	}
}

func TestKitchen_Dispatch(t *testing.T) {
	ch := &fakeChannel{}
	acks := make(chan amqp.Confirmation, 1)
	acks <- amqp.Confirmation{DeliveryTag: 1, Ack: true}

	k := newKitchen(ch, acks, DefaultExchange, DefaultRoutingKey)
	if err := k.Dispatch(context.Background(), testTicket()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if ch.exchange != DefaultExchange || ch.key != DefaultRoutingKey {
		t.Errorf("published to %s/%s", ch.exchange, ch.key)
	}
	if ch.msg.DeliveryMode != amqp.Persistent {
		t.Error("tickets must be persistent")
	}
	if ch.msg.MessageId != testTicket().ID {
		t.Errorf("message id = %q", ch.msg.MessageId)
	}

	var msg ticketMessage
	if err := json.Unmarshal(ch.msg.Body, &msg); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(msg.Items) != 2 {
		t.Fatalf("items = %+v, want Zinger and Krunch grouped", msg.Items)
	}
	if msg.Items[0].Name != "Zinger" || msg.Items[0].Quantity != 2 {
		t.Errorf("first line = %+v", msg.Items[0])
	}
	if msg.Total != 1150 {
		t.Errorf("total = %d", msg.Total)
	}
}

func TestKitchen_DispatchNack(t *testing.T) {
	acks := make(chan amqp.Confirmation, 1)
	acks <- amqp.Confirmation{DeliveryTag: 1, Ack: false}

	k := newKitchen(&fakeChannel{}, acks, DefaultExchange, DefaultRoutingKey)
	if err := k.Dispatch(context.Background(), testTicket()); err == nil {
		t.Fatal("expected nack error")
	}
}

func TestKitchen_DispatchPublishError(t *testing.T) {
	k := newKitchen(&fakeChannel{err: errors.New("channel closed")}, nil, DefaultExchange, DefaultRoutingKey)
	if err := k.Dispatch(context.Background(), testTicket()); err == nil {
		t.Fatal("expected publish error")
	}
}

func TestKitchen_DispatchContextCancelled(t *testing.T) {
	k := newKitchen(&fakeChannel{}, make(chan amqp.Confirmation), DefaultExchange, DefaultRoutingKey)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := k.Dispatch(ctx, testTicket()); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}
