package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"drive-in/internal/domain"
)

const (
	DefaultExchange   = "drive_in_orders"
	DefaultRoutingKey = "kitchen.drive-in.new"
	DefaultQueue      = "kitchen.q"
)

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	Queue      string
}

func (c *Config) setDefaults() {
	if c.Exchange == "" {
		c.Exchange = DefaultExchange
	}
	if c.RoutingKey == "" {
		c.RoutingKey = DefaultRoutingKey
	}
	if c.Queue == "" {
		c.Queue = DefaultQueue
	}
}

// publisher is the slice of *amqp.Channel the kitchen needs.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Kitchen publishes finished tickets to the kitchen display exchange and
// waits for the broker to confirm each one.
type Kitchen struct {
	conn     *amqp.Connection
	ch       publisher
	acks     <-chan amqp.Confirmation
	exchange string
	key      string
	mu       sync.Mutex
}

// Dial connects to the broker, declares the topology and enables publisher
// confirms.
func Dial(cfg Config) (*Kitchen, error) {
	cfg.setDefaults()

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dialing rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	if err := declare(ch, cfg); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("enabling confirms: %w", err)
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	k := newKitchen(ch, acks, cfg.Exchange, cfg.RoutingKey)
	k.conn = conn
	return k, nil
}

func newKitchen(ch publisher, acks <-chan amqp.Confirmation, exchange, key string) *Kitchen {
	return &Kitchen{ch: ch, acks: acks, exchange: exchange, key: key}
}

func declare(ch *amqp.Channel, cfg Config) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring exchange %s: %w", cfg.Exchange, err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring queue %s: %w", cfg.Queue, err)
	}
	if err := ch.QueueBind(cfg.Queue, "kitchen.#", cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("binding queue %s: %w", cfg.Queue, err)
	}
	return nil
}

func (k *Kitchen) Name() string {
	return "kitchen"
}

func (k *Kitchen) Dispatch(ctx context.Context, t domain.Ticket) error {
	body, err := encodeTicket(t)
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	err = k.ch.PublishWithContext(ctx, k.exchange, k.key, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    t.ID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publishing ticket %s: %w", t.ID, err)
	}

	if k.acks == nil {
		return nil
	}

	select {
	case conf, ok := <-k.acks:
		if !ok {
			return errors.New("rabbitmq channel closed before confirm")
		}
		if !conf.Ack {
			return fmt.Errorf("broker rejected ticket %s", t.ID)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (k *Kitchen) Close() error {
	var errs []error
	if c, ok := k.ch.(*amqp.Channel); ok {
		errs = append(errs, c.Close())
	}
	if k.conn != nil {
		errs = append(errs, k.conn.Close())
	}
	return errors.Join(errs...)
}

type ticketMessage struct {
	TicketID  string     `json:"ticket_id"`
	SessionID string     `json:"session_id"`
	Items     []lineItem `json:"items"`
	Total     int        `json:"total"`
	PlacedAt  time.Time  `json:"placed_at"`
}

type lineItem struct {
	Name     string `json:"name"`
	Price    int    `json:"price"`
	Quantity int    `json:"quantity"`
}

// encodeTicket groups repeated deals so the kitchen sees quantities.
func encodeTicket(t domain.Ticket) ([]byte, error) {
	msg := ticketMessage{
		TicketID:  t.ID,
		SessionID: t.SessionID,
		Items:     make([]lineItem, 0, len(t.Items)),
		Total:     t.Total,
		PlacedAt:  t.PlacedAt,
	}

	index := make(map[string]int)
	for _, it := range t.Items {
		if i, ok := index[it.Name]; ok {
			msg.Items[i].Quantity++
			continue
		}
		index[it.Name] = len(msg.Items)
		msg.Items = append(msg.Items, lineItem{Name: it.Name, Price: it.Price, Quantity: 1})
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding ticket: %w", err)
	}
	return body, nil
}
