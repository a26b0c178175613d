// Package session owns one chat conversation: its transcript, whether it is
// served by a live gateway or by canned demo replies, and the single-flight
// rule that keeps user and assistant turns paired.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/zhengjr9/edgechat/internal/api"
	"github.com/zhengjr9/edgechat/internal/config"
)

var (
	ErrEmptyInput = errors.New("message is empty")
	ErrBusy       = errors.New("a reply is still pending")
)

// UnavailableReply is appended in place of a model reply when a live exchange
// fails.
const UnavailableReply = "Sorry, the assistant is unavailable right now. Please try again in a moment."

// Mode says where replies come from. It is decided once by Initialize.
type Mode int

const (
	ModeUninitialized Mode = iota
	ModeLive
	ModeDemo
)

func (m Mode) String() string {
	switch m {
	case ModeLive:
		return "live"
	case ModeDemo:
		return "demo"
	}
	return "uninitialized"
}

// Message is one transcript entry.
type Message struct {
	Role      string
	Content   string
	Timestamp time.Time
}

// EventKind identifies what changed.
type EventKind int

const (
	EventModeChanged EventKind = iota
	EventMessageAppended
	EventPendingChanged
	EventTranscriptReset
)

// Event is delivered to subscribers after the state change it describes.
// Only the field matching Kind is meaningful.
type Event struct {
	Kind    EventKind
	Mode    Mode
	Message Message
	Pending bool
}

// Completer produces a live reply for a whole conversation.
type Completer interface {
	ChatCompletion(ctx context.Context, req *api.ChatCompletionRequest) (*api.ChatCompletionResponse, error)
}

// Prober reports whether the live path is usable.
type Prober interface {
	Probe(ctx context.Context) api.HealthStatus
}

// Responder produces a canned reply.
type Responder interface {
	Respond(text string) string
}

// Controller is safe for concurrent use. At most one exchange is in flight.
type Controller struct {
	completer Completer
	prober    Prober
	responder Responder

	probeTimeout   time.Duration
	requestTimeout time.Duration
	temperature    float64
	maxTokens      int
	now            func() time.Time

	mu          sync.Mutex
	transcript  []Message
	mode        Mode
	initialized bool
	pending     bool
	generation  uint64
	turns       int
	subscribers map[int]func(Event)
	nextSubID   int
}

// Option customizes a Controller.
type Option func(*Controller)

// WithClock replaces time.Now for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New builds a Controller in ModeUninitialized. Sampling parameters and
// timeouts are taken from cfg.
func New(cfg *config.Client, completer Completer, prober Prober, responder Responder, opts ...Option) *Controller {
	c := &Controller{
		completer:      completer,
		prober:         prober,
		responder:      responder,
		probeTimeout:   cfg.ProbeTimeout,
		requestTimeout: cfg.RequestTimeout,
		temperature:    cfg.Temperature,
		maxTokens:      cfg.MaxTokens,
		now:            time.Now,
		subscribers:    make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize probes the gateway once and fixes the mode: live when reachable,
// demo otherwise. Later calls do nothing.
func (c *Controller) Initialize(ctx context.Context) {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return
	}
	c.initialized = true
	c.mu.Unlock()

	start := time.Now()
	mode := ModeDemo
	if c.prober != nil {
		probeCtx := ctx
		if c.probeTimeout > 0 {
			var cancel context.CancelFunc
			probeCtx, cancel = context.WithTimeout(ctx, c.probeTimeout)
			defer cancel()
		}
		status := c.prober.Probe(probeCtx)
		if status.Reachable {
			mode = ModeLive
		}
		slog.Info("session initialized",
			"mode", mode.String(),
			"model", status.Model,
			"backend", status.BackendEndpoint,
			"duration", time.Since(start),
		)
	} else {
		slog.Info("session initialized without prober", "mode", mode.String())
	}

	c.mu.Lock()
	c.mode = mode
	c.mu.Unlock()
	c.emit(Event{Kind: EventModeChanged, Mode: mode})
}

// Submit records text as a user turn and appends exactly one assistant turn.
// Empty input and input arriving while a reply is pending are rejected
// without touching the transcript.
func (c *Controller) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}

	c.mu.Lock()
	if c.pending {
		c.mu.Unlock()
		return ErrBusy
	}
	user := Message{Role: api.RoleUser, Content: text, Timestamp: c.now()}
	c.transcript = append(c.transcript, user)
	c.pending = true
	c.turns++
	turn := c.turns
	gen := c.generation
	mode := c.mode
	history := toWire(c.transcript)
	c.mu.Unlock()

	c.emit(Event{Kind: EventMessageAppended, Message: user})
	c.emit(Event{Kind: EventPendingChanged, Pending: true})

	start := time.Now()
	reply := c.dispatch(ctx, mode, text, history)

	c.mu.Lock()
	c.pending = false
	stale := gen != c.generation
	var assistant Message
	if !stale {
		assistant = Message{Role: api.RoleAssistant, Content: reply, Timestamp: c.now()}
		c.transcript = append(c.transcript, assistant)
	}
	c.mu.Unlock()

	if stale {
		slog.Info("reply discarded after reset", "mode", mode.String(), "turn", turn)
	} else {
		c.emit(Event{Kind: EventMessageAppended, Message: assistant})
	}
	c.emit(Event{Kind: EventPendingChanged, Pending: false})

	slog.Debug("turn complete", "mode", mode.String(), "turn", turn, "duration", time.Since(start))
	return nil
}

func (c *Controller) dispatch(ctx context.Context, mode Mode, text string, history []api.Message) string {
	if mode != ModeLive || c.completer == nil {
		return c.responder.Respond(text)
	}

	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}
	req := &api.ChatCompletionRequest{
		Messages:    history,
		Temperature: api.Float64(c.temperature),
		MaxTokens:   c.maxTokens,
	}
	resp, err := c.completer.ChatCompletion(ctx, req)
	if err != nil {
		slog.Warn("live completion failed", "mode", mode.String(), "messages", len(history), "error", err)
		return UnavailableReply
	}
	return resp.Message.Content
}

// Reset empties the transcript. The mode is kept and the gateway is not
// probed again. A reply still in flight is dropped when it arrives.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.transcript = nil
	c.generation++
	mode := c.mode
	c.mu.Unlock()

	slog.Info("transcript reset", "mode", mode.String())
	c.emit(Event{Kind: EventTranscriptReset, Mode: mode})
}

// Messages returns a copy of the transcript.
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.transcript))
	copy(out, c.transcript)
	return out
}

func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Subscribe registers fn for every later event and returns a function that
// removes it. fn runs on the goroutine that caused the change, outside the
// controller's lock.
func (c *Controller) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subscribers, id)
			c.mu.Unlock()
		})
	}
}

func (c *Controller) emit(ev Event) {
	c.mu.Lock()
	fns := make([]func(Event), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func toWire(msgs []Message) []api.Message {
	out := make([]api.Message, len(msgs))
	for i, m := range msgs {
		out[i] = api.Message{Role: m.Role, Content: m.Content}
	}
	return out
}
