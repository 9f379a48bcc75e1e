package application

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"drive-in/internal/domain"
	"drive-in/internal/menu"
	"drive-in/internal/observe"
)

const (
	Greeting        = "Welcome to the drive-in! How can I assist you today?"
	Farewell        = "Goodbye! Have a great day!"
	MenuUnavailable = "Sorry, I couldn't retrieve the menu at the moment."
	ChatUnavailable = "Sorry, I'm unable to process your request right now."
)

const (
	keywordClose = "thank you"
	keywordMenu  = "menu"
	keywordPrice = "price of"
	keywordAdd   = "add"
	keywordTotal = "total amount"
)

const defaultChatTimeout = 20 * time.Second

// Response is the outcome of one utterance. An empty Text means there is
// nothing to render and the caller should simply listen again.
type Response struct {
	Text   string
	Intent domain.Intent
	Ended  bool
}

// rule pairs an intent predicate with its handler. Rules are evaluated in
// order against the lowercased utterance and the first match wins, so the
// order decides ambiguous input such as "add the menu".
type rule struct {
	intent domain.Intent
	match  func(lower string) bool
	handle func(s *Session, ctx context.Context, utterance string) string
}

var rules = []rule{
	{intent: domain.IntentClose, match: contains(keywordClose), handle: (*Session).close},
	{intent: domain.IntentNone, match: isBlank, handle: (*Session).ignore},
	{intent: domain.IntentMenu, match: contains(keywordMenu), handle: (*Session).listMenu},
	{intent: domain.IntentPrice, match: contains(keywordPrice), handle: (*Session).lookupPrice},
	{intent: domain.IntentAdd, match: contains(keywordAdd), handle: (*Session).addItem},
	{intent: domain.IntentTotal, match: contains(keywordTotal), handle: (*Session).reportTotal},
	{intent: domain.IntentChat, match: func(string) bool { return true }, handle: (*Session).chatFallback},
}

func contains(keyword string) func(string) bool {
	return func(lower string) bool {
		return strings.Contains(lower, keyword)
	}
}

func isBlank(lower string) bool {
	return strings.TrimSpace(lower) == ""
}

// Classify returns the intent the utterance would dispatch to.
func Classify(utterance string) domain.Intent {
	return match(strings.ToLower(utterance)).intent
}

func match(lower string) rule {
	for _, r := range rules {
		if r.match(lower) {
			return r
		}
	}
	return rules[len(rules)-1]
}

// Session is one ordering conversation. It is owned by a single goroutine
// and is not safe for concurrent use.
type Session struct {
	id          string
	catalog     *menu.Catalog
	chat        ChatCompleter
	chatTimeout time.Duration
	metrics     *observe.Metrics
	logger      *slog.Logger

	lineItems []domain.MenuItem
	total     int
	ended     bool
}

type SessionOption func(*Session)

func WithChatTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.chatTimeout = d
		}
	}
}

func WithSessionMetrics(m *observe.Metrics) SessionOption {
	return func(s *Session) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewSession starts a conversation. catalog may be nil when the menu could
// not be loaded; menu, price and add requests then apologise instead.
func NewSession(catalog *menu.Catalog, chat ChatCompleter, logger *slog.Logger, opts ...SessionOption) *Session {
	s := &Session{
		id:          uuid.NewString(),
		catalog:     catalog,
		chat:        chat,
		chatTimeout: defaultChatTimeout,
		metrics:     observe.DefaultMetrics(),
		logger:      logger,
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("session", s.id)
	return s
}

func (s *Session) ID() string  { return s.id }
func (s *Session) Total() int  { return s.total }
func (s *Session) Ended() bool { return s.ended }

func (s *Session) LineItems() []domain.MenuItem {
	items := make([]domain.MenuItem, len(s.lineItems))
	copy(items, s.lineItems)
	return items
}

// Ticket snapshots the order for the kitchen.
func (s *Session) Ticket(now time.Time) domain.Ticket {
	return domain.Ticket{
		ID:        uuid.NewString(),
		SessionID: s.id,
		Items:     s.LineItems(),
		Total:     s.total,
		PlacedAt:  now.UTC(),
	}
}

// Handle classifies one utterance and applies its effect.
func (s *Session) Handle(ctx context.Context, utterance string) Response {
	if s.ended {
		return Response{Intent: domain.IntentNone, Ended: true}
	}

	r := match(strings.ToLower(utterance))
	text := r.handle(s, ctx, utterance)

	if r.intent != domain.IntentNone {
		s.metrics.RecordUtterance(ctx, string(r.intent))
		s.logger.Debug("dispatched utterance", "intent", r.intent, "items", len(s.lineItems), "total", s.total)
	}

	return Response{Text: text, Intent: r.intent, Ended: s.ended}
}

func (s *Session) close(_ context.Context, _ string) string {
	s.ended = true
	return Farewell
}

func (s *Session) ignore(_ context.Context, _ string) string {
	return ""
}

func (s *Session) listMenu(_ context.Context, _ string) string {
	if s.catalog == nil {
		return MenuUnavailable
	}
	return "Here is our menu: " + strings.Join(s.catalog.Names(), ", ")
}

func (s *Session) lookupPrice(ctx context.Context, utterance string) string {
	if s.catalog == nil {
		return MenuUnavailable
	}

	deal := dealAfter(utterance, keywordPrice)
	item, ok := s.catalog.FindByName(deal)
	if !ok {
		s.metrics.RecordLookupMiss(ctx, string(domain.IntentPrice))
		if deal == "" {
			return "Sorry, I couldn't find the details for that item."
		}
		return fmt.Sprintf("Sorry, I couldn't find the details for %s.", deal) + s.didYouMean(deal)
	}

	return fmt.Sprintf("The price of %s is Rs. %d. Description: %s", deal, item.Price, item.Description)
}

func (s *Session) addItem(ctx context.Context, utterance string) string {
	if s.catalog == nil {
		return MenuUnavailable
	}

	deal := dealAfter(utterance, keywordAdd)
	item, ok := s.catalog.FindByName(deal)
	if !ok {
		s.metrics.RecordLookupMiss(ctx, string(domain.IntentAdd))
		if deal == "" {
			return "Sorry, I couldn't find that item on the menu."
		}
		return fmt.Sprintf("Sorry, I couldn't find %s on the menu.", deal) + s.didYouMean(deal)
	}

	s.lineItems = append(s.lineItems, item)
	s.total += item.Price
	s.logger.Info("item added", "deal", item.Name, "price", item.Price, "total", s.total)

	return fmt.Sprintf("Added %s to your order. Your current total is Rs. %d.", deal, s.total)
}

func (s *Session) reportTotal(_ context.Context, _ string) string {
	return fmt.Sprintf("Your current total order amount is Rs. %d.", s.total)
}

func (s *Session) chatFallback(ctx context.Context, utterance string) string {
	if s.chat == nil {
		return ChatUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, s.chatTimeout)
	defer cancel()

	start := time.Now()
	reply, err := s.chat.Complete(ctx, utterance, Persona)
	s.metrics.RecordChat(ctx, s.chat.Name(), time.Since(start), err)
	if err != nil {
		s.logger.Warn("chat completion failed", "provider", s.chat.Name(), "error", err)
		return ChatUnavailable
	}

	return reply
}

func (s *Session) didYouMean(deal string) string {
	if name, ok := s.catalog.Suggest(deal); ok {
		return fmt.Sprintf(" Did you mean %s?", name)
	}
	return ""
}

// dealAfter returns the trimmed text following the last occurrence of
// keyword, keeping the customer's casing. Lowercasing can change a rune's
// byte length, so offsets are mapped back rune by rune.
func dealAfter(utterance, keyword string) string {
	lower := make([]byte, 0, len(utterance))
	origin := make([]int, 0, len(utterance))
	for i, r := range utterance {
		n := len(lower)
		lower = utf8.AppendRune(lower, unicode.ToLower(r))
		for ; n < len(lower); n++ {
			origin = append(origin, i)
		}
	}

	idx := bytes.LastIndex(lower, []byte(keyword))
	if idx < 0 {
		return ""
	}
	end := idx + len(keyword)
	if end >= len(lower) {
		return ""
	}
	return strings.TrimSpace(utterance[origin[end]:])
}
