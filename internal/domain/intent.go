package domain

type Intent string

const (
	IntentClose Intent = "close"
	IntentNone  Intent = "none"
	IntentMenu  Intent = "menu"
	IntentPrice Intent = "price"
	IntentAdd   Intent = "add"
	IntentTotal Intent = "total"
	IntentChat  Intent = "chat"
)

// Reply is what the assistant says back for one capture.
type Reply struct {
	Speech string `json:"speech"`
	Ended  bool   `json:"ended"`
}

// Capture is one unit of customer input coming from an utterance source.
// At most one of Text or Audio is set. A Reset capture carries no input and
// tells the loop the customer left without closing the order. Sources that
// answer synchronously (HTTP, WebSocket) attach a buffered reply channel.
type Capture struct {
	Text  string
	Audio []byte
	Reset bool
	Reply chan Reply
}

func NewTextCapture(text string) *Capture {
	return &Capture{Text: text}
}

func NewAudioCapture(audio []byte) *Capture {
	return &Capture{Audio: audio}
}

func NewResetCapture() *Capture {
	return &Capture{Reset: true}
}

// WithReply attaches a reply channel and returns it for the caller to wait on.
func (c *Capture) WithReply() <-chan Reply {
	c.Reply = make(chan Reply, 1)
	return c.Reply
}

// Respond delivers r to a waiting transport without ever blocking the loop.
func (c *Capture) Respond(r Reply) {
	if c.Reply == nil {
		return
	}
	select {
	case c.Reply <- r:
	default:
	}
}

func (c *Capture) IsEmpty() bool {
	return c == nil || (!c.Reset && c.Text == "" && len(c.Audio) == 0)
}
