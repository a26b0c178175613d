package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zhengjr9/edgechat/internal/api"
	"github.com/zhengjr9/edgechat/internal/config"
	"github.com/zhengjr9/edgechat/internal/demo"
	apierrors "github.com/zhengjr9/edgechat/internal/errors"
)

type stubProber struct {
	status api.HealthStatus
	calls  atomic.Int32
}

func (p *stubProber) Probe(ctx context.Context) api.HealthStatus {
	p.calls.Add(1)
	return p.status
}

// blockingProber waits for ctx, as a probe against a hung gateway would.
type blockingProber struct{}

func (blockingProber) Probe(ctx context.Context) api.HealthStatus {
	<-ctx.Done()
	return api.HealthStatus{}
}

type stubCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	release chan struct{}
	started chan struct{}
	calls   int
	last    *api.ChatCompletionRequest
}

func (s *stubCompleter) ChatCompletion(ctx context.Context, req *api.ChatCompletionRequest) (*api.ChatCompletionResponse, error) {
	s.mu.Lock()
	s.calls++
	s.last = req
	release, started := s.release, s.started
	s.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	if s.err != nil {
		return nil, s.err
	}
	return &api.ChatCompletionResponse{Message: api.Message{Role: api.RoleAssistant, Content: s.reply}}, nil
}

func (s *stubCompleter) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testConfig() *config.Client {
	return &config.Client{
		ProbeTimeout:   200 * time.Millisecond,
		RequestTimeout: time.Second,
		Temperature:    0.3,
		MaxTokens:      128,
	}
}

func newLive(t *testing.T, completer Completer) *Controller {
	t.Helper()
	c := New(testConfig(), completer, &stubProber{status: api.HealthStatus{Reachable: true}}, demo.NewResponder(demo.DefaultRules()))
	c.Initialize(context.Background())
	if c.Mode() != ModeLive {
		t.Fatalf("expected live mode, got %s", c.Mode())
	}
	return c
}

func TestInitialize(t *testing.T) {
	live := &stubProber{status: api.HealthStatus{Reachable: true}}
	c := New(testConfig(), &stubCompleter{}, live, demo.NewResponder(demo.DefaultRules()))
	if c.Mode() != ModeUninitialized {
		t.Fatalf("new controller should be uninitialized, got %s", c.Mode())
	}
	c.Initialize(context.Background())
	c.Initialize(context.Background())
	if c.Mode() != ModeLive {
		t.Errorf("expected live, got %s", c.Mode())
	}
	if live.calls.Load() != 1 {
		t.Errorf("expected a single probe, got %d", live.calls.Load())
	}

	down := New(testConfig(), &stubCompleter{}, &stubProber{}, demo.NewResponder(demo.DefaultRules()))
	down.Initialize(context.Background())
	if down.Mode() != ModeDemo {
		t.Errorf("expected demo, got %s", down.Mode())
	}
}

func TestInitialize_ProbeBoundedByTimeout(t *testing.T) {
	c := New(testConfig(), &stubCompleter{}, blockingProber{}, demo.NewResponder(demo.DefaultRules()))

	start := time.Now()
	c.Initialize(context.Background())
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("initialize took %s", elapsed)
	}
	if c.Mode() != ModeDemo {
		t.Errorf("expected demo after probe timeout, got %s", c.Mode())
	}
}

func TestSubmit_Live(t *testing.T) {
	comp := &stubCompleter{reply: "hello back"}
	c := newLive(t, comp)

	if err := c.Submit(context.Background(), "  hello  "); err != nil {
		t.Fatalf("submit: %v", err)
	}
	msgs := c.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != api.RoleUser || msgs[0].Content != "hello" {
		t.Errorf("user turn: %+v", msgs[0])
	}
	if msgs[1].Role != api.RoleAssistant || msgs[1].Content != "hello back" {
		t.Errorf("assistant turn: %+v", msgs[1])
	}
	if c.Pending() {
		t.Error("pending should be cleared")
	}

	if err := c.Submit(context.Background(), "again"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := len(comp.last.Messages); got != 3 {
		t.Errorf("completer should see full history, got %d messages", got)
	}
	if comp.last.Temperature == nil || *comp.last.Temperature != 0.3 || comp.last.MaxTokens != 128 {
		t.Errorf("sampling parameters not applied: %+v", comp.last)
	}
}

func TestSubmit_GrowsByTwo(t *testing.T) {
	failures := []error{
		nil,
		fmt.Errorf("%w: connection refused", apierrors.ErrGatewayUnavailable),
		fmt.Errorf("%w: no message", apierrors.ErrUpstreamMalformed),
	}
	for _, failure := range failures {
		c := newLive(t, &stubCompleter{reply: "ok", err: failure})
		for i := 1; i <= 3; i++ {
			if err := c.Submit(context.Background(), "question"); err != nil {
				t.Fatalf("submit: %v", err)
			}
			if got := len(c.Messages()); got != 2*i {
				t.Fatalf("err=%v: after %d submits got %d messages", failure, i, got)
			}
		}
	}
}

func TestSubmit_LiveFailureKeepsMode(t *testing.T) {
	c := newLive(t, &stubCompleter{err: apierrors.ErrGatewayTimeout})

	if err := c.Submit(context.Background(), "hello"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	msgs := c.Messages()
	if msgs[1].Role != api.RoleAssistant || msgs[1].Content != UnavailableReply {
		t.Errorf("expected unavailable reply, got %+v", msgs[1])
	}
	if c.Mode() != ModeLive {
		t.Errorf("mode should stay live, got %s", c.Mode())
	}
}

func TestSubmit_Demo(t *testing.T) {
	comp := &stubCompleter{reply: "should not be used"}
	c := New(testConfig(), comp, &stubProber{}, demo.NewResponder(demo.DefaultRules()))
	c.Initialize(context.Background())

	if err := c.Submit(context.Background(), "Tell me about your skills"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	want := demo.NewResponder(demo.DefaultRules()).Respond("skills")
	if got := c.Messages()[1].Content; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if comp.Calls() != 0 {
		t.Errorf("demo mode must not call the gateway")
	}
}

func TestSubmit_Uninitialized(t *testing.T) {
	comp := &stubCompleter{reply: "live"}
	c := New(testConfig(), comp, &stubProber{status: api.HealthStatus{Reachable: true}}, demo.NewResponder(demo.DefaultRules()))

	if err := c.Submit(context.Background(), "hello"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if comp.Calls() != 0 {
		t.Error("uninitialized controller should answer from demo rules")
	}
	if len(c.Messages()) != 2 {
		t.Errorf("expected 2 messages")
	}
}

func TestSubmit_EmptyInput(t *testing.T) {
	c := newLive(t, &stubCompleter{reply: "x"})
	for _, in := range []string{"", "   ", "\n\t"} {
		if err := c.Submit(context.Background(), in); !errors.Is(err, ErrEmptyInput) {
			t.Errorf("Submit(%q): expected ErrEmptyInput, got %v", in, err)
		}
	}
	if len(c.Messages()) != 0 {
		t.Error("empty input must not change the transcript")
	}
}

func TestSubmit_Busy(t *testing.T) {
	comp := &stubCompleter{reply: "done", release: make(chan struct{}), started: make(chan struct{}, 1)}
	c := newLive(t, comp)

	errCh := make(chan error, 1)
	go func() { errCh <- c.Submit(context.Background(), "first") }()
	<-comp.started

	if !c.Pending() {
		t.Fatal("expected pending while reply is in flight")
	}
	if err := c.Submit(context.Background(), "second"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if got := len(c.Messages()); got != 1 {
		t.Errorf("busy submit must not change transcript, got %d messages", got)
	}

	close(comp.release)
	if err := <-errCh; err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if comp.Calls() != 1 {
		t.Errorf("expected one outbound call, got %d", comp.Calls())
	}
	msgs := c.Messages()
	if len(msgs) != 2 || msgs[1].Content != "done" {
		t.Errorf("unexpected transcript: %+v", msgs)
	}
}

func TestReset(t *testing.T) {
	c := newLive(t, &stubCompleter{reply: "ok"})
	c.Submit(context.Background(), "one")
	c.Submit(context.Background(), "two")

	c.Reset()
	if len(c.Messages()) != 0 {
		t.Error("reset should empty the transcript")
	}
	if c.Mode() != ModeLive {
		t.Errorf("reset should keep the mode, got %s", c.Mode())
	}

	demoCtl := New(testConfig(), nil, &stubProber{}, demo.NewResponder(demo.DefaultRules()))
	demoCtl.Initialize(context.Background())
	demoCtl.Reset()
	if demoCtl.Mode() != ModeDemo {
		t.Errorf("reset should keep demo mode, got %s", demoCtl.Mode())
	}
}

func TestReset_DuringExchange(t *testing.T) {
	comp := &stubCompleter{reply: "late", release: make(chan struct{}), started: make(chan struct{}, 1)}
	c := newLive(t, comp)

	errCh := make(chan error, 1)
	go func() { errCh <- c.Submit(context.Background(), "question") }()
	<-comp.started

	c.Reset()
	close(comp.release)
	if err := <-errCh; err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := c.Messages(); len(got) != 0 {
		t.Errorf("stale reply must be dropped, got %+v", got)
	}
	if c.Pending() {
		t.Error("pending should be cleared after the stale reply")
	}

	comp.mu.Lock()
	comp.release, comp.started = nil, nil
	comp.mu.Unlock()
	if err := c.Submit(context.Background(), "next"); err != nil {
		t.Fatalf("submit after reset: %v", err)
	}
	if got := len(c.Messages()); got != 2 {
		t.Errorf("expected 2 messages, got %d", got)
	}
}

func TestSubscribe(t *testing.T) {
	c := New(testConfig(), &stubCompleter{reply: "ok"}, &stubProber{status: api.HealthStatus{Reachable: true}}, demo.NewResponder(demo.DefaultRules()))

	var mu sync.Mutex
	var kinds []EventKind
	unsubscribe := c.Subscribe(func(ev Event) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
	})

	c.Initialize(context.Background())
	c.Submit(context.Background(), "hi")
	c.Reset()
	c.Submit(context.Background(), "hi again")

	want := []EventKind{
		EventModeChanged,
		EventMessageAppended, EventPendingChanged, EventMessageAppended, EventPendingChanged,
		EventTranscriptReset,
		EventMessageAppended, EventPendingChanged, EventMessageAppended, EventPendingChanged,
	}
	mu.Lock()
	got := append([]EventKind(nil), kinds...)
	mu.Unlock()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("events:\n got %v\nwant %v", got, want)
	}

	unsubscribe()
	unsubscribe()
	c.Reset()
	mu.Lock()
	defer mu.Unlock()
	if len(kinds) != len(want) {
		t.Errorf("unsubscribed handler still called")
	}
}

func TestMessages_Timestamps(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := New(testConfig(), nil, &stubProber{}, demo.NewResponder(demo.DefaultRules()), WithClock(func() time.Time { return fixed }))
	c.Initialize(context.Background())
	c.Submit(context.Background(), "hello")

	for _, m := range c.Messages() {
		if !m.Timestamp.Equal(fixed) {
			t.Errorf("timestamp: got %s", m.Timestamp)
		}
	}
}
