// Package gateway normalizes chat-completion requests into the native call of
// the configured model runtime and normalizes the reply back into the stable
// response envelope. A Gateway holds no per-request state and is safe for
// concurrent use.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/zhengjr9/edgechat/internal/api"
	apierrors "github.com/zhengjr9/edgechat/internal/errors"
	"github.com/zhengjr9/edgechat/internal/runtime"
)

const instrumentationName = "github.com/zhengjr9/edgechat/internal/gateway"

// Config holds the defaults and time bounds applied to every call.
type Config struct {
	Model          string
	Temperature    float64
	MaxTokens      int
	RequestTimeout time.Duration
	HealthTimeout  time.Duration
	ModelsTimeout  time.Duration
}

// Gateway is the stateless façade in front of one model runtime.
type Gateway struct {
	cfg     Config
	runtime runtime.Runtime
	tokens  TokenCounter
	now     func() time.Time

	tracer   trace.Tracer
	usage    metric.Int64Counter
	failures metric.Int64Counter
	latency  metric.Float64Histogram
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithTokenCounter replaces the usage estimator.
func WithTokenCounter(c TokenCounter) Option {
	return func(g *Gateway) { g.tokens = c }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// New returns a Gateway forwarding to rt.
func New(cfg Config, rt runtime.Runtime, opts ...Option) *Gateway {
	g := &Gateway{
		cfg:     cfg,
		runtime: rt,
		tokens:  NewTiktokenCounter(),
		now:     time.Now,
		tracer:  otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(g)
	}

	meter := otel.Meter(instrumentationName)
	var err error
	if g.usage, err = meter.Int64Counter("llm.usage.tokens",
		metric.WithDescription("Tokens consumed by runtime calls")); err != nil {
		slog.Warn("failed to create counter", "name", "llm.usage.tokens", "error", err)
	}
	if g.failures, err = meter.Int64Counter("llm.runtime.failures",
		metric.WithDescription("Runtime calls that returned an error")); err != nil {
		slog.Warn("failed to create counter", "name", "llm.runtime.failures", "error", err)
	}
	if g.latency, err = meter.Float64Histogram("llm.runtime.duration",
		metric.WithDescription("Runtime call duration in milliseconds")); err != nil {
		slog.Warn("failed to create histogram", "name", "llm.runtime.duration", "error", err)
	}
	return g
}

// Endpoint is the configured runtime base URL.
func (g *Gateway) Endpoint() string { return g.runtime.Endpoint() }

// DefaultModel is the model used when a request names none.
func (g *Gateway) DefaultModel() string { return g.cfg.Model }

// ChatCompletion validates req, forwards the full history to the runtime and
// wraps the reply in a ChatCompletionResponse.
func (g *Gateway) ChatCompletion(ctx context.Context, req *api.ChatCompletionRequest) (*api.ChatCompletionResponse, error) {
	if err := ValidateChat(req); err != nil {
		return nil, err
	}

	rtReq := &runtime.ChatRequest{
		Model:       g.model(req.Model),
		Messages:    req.Messages,
		Temperature: g.temperature(req.Temperature),
		MaxTokens:   g.maxTokens(req.MaxTokens),
	}

	ctx, cancel := withTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()
	ctx, span := g.tracer.Start(ctx, "runtime.chat", trace.WithAttributes(
		attribute.String("llm.model", rtReq.Model),
		attribute.Int("llm.messages", len(rtReq.Messages)),
	))
	defer span.End()

	slog.Info("chat request received", "model", rtReq.Model, "messages", len(rtReq.Messages))

	start := time.Now()
	res, err := g.runtime.Chat(ctx, rtReq)
	g.record(ctx, span, "chat", start, err)
	if err != nil {
		return nil, err
	}

	usage := g.usageFor(res, func() int { return countMessages(g.tokens, req.Messages) })
	g.addUsage(ctx, "chat", usage)

	out := &api.ChatCompletionResponse{
		ID:      NewID(),
		Model:   firstNonEmpty(res.Model, rtReq.Model),
		Created: g.now().Unix(),
		Message: api.Message{Role: api.RoleAssistant, Content: res.Content},
		Usage:   usage,
	}
	slog.Info("chat response generated", "id", out.ID, "total_tokens", usage.TotalTokens, "duration", time.Since(start).String())
	return out, nil
}

// Complete is the single-prompt counterpart of ChatCompletion.
func (g *Gateway) Complete(ctx context.Context, req *api.CompletionRequest) (*api.CompletionResponse, error) {
	if err := ValidateCompletion(req); err != nil {
		return nil, err
	}

	rtReq := &runtime.GenerateRequest{
		Model:       g.model(req.Model),
		Prompt:      req.Prompt,
		Temperature: g.temperature(req.Temperature),
		MaxTokens:   g.maxTokens(req.MaxTokens),
	}

	ctx, cancel := withTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()
	ctx, span := g.tracer.Start(ctx, "runtime.generate", trace.WithAttributes(
		attribute.String("llm.model", rtReq.Model),
	))
	defer span.End()

	slog.Info("completion request received", "model", rtReq.Model, "prompt_length", len(req.Prompt))

	start := time.Now()
	res, err := g.runtime.Generate(ctx, rtReq)
	g.record(ctx, span, "generate", start, err)
	if err != nil {
		return nil, err
	}

	usage := g.usageFor(res, func() int { return g.tokens.Count(req.Prompt) })
	g.addUsage(ctx, "generate", usage)

	return &api.CompletionResponse{
		ID:      NewID(),
		Model:   firstNonEmpty(res.Model, rtReq.Model),
		Created: g.now().Unix(),
		Text:    res.Content,
		Usage:   usage,
	}, nil
}

// ListModels proxies the runtime inventory. An empty inventory is returned as
// an empty, non-nil slice.
func (g *Gateway) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := withTimeout(ctx, g.cfg.ModelsTimeout)
	defer cancel()
	ctx, span := g.tracer.Start(ctx, "runtime.models")
	defer span.End()

	start := time.Now()
	models, err := g.runtime.Models(ctx)
	g.record(ctx, span, "models", start, err)
	if err != nil {
		return nil, err
	}
	if models == nil {
		models = []string{}
	}
	return models, nil
}

// Health reports whether the runtime answers within the health timeout.
func (g *Gateway) Health(ctx context.Context) api.HealthStatus {
	ctx, cancel := withTimeout(ctx, g.cfg.HealthTimeout)
	defer cancel()

	status := api.HealthStatus{
		Model:           g.cfg.Model,
		BackendEndpoint: g.runtime.Endpoint(),
	}
	if err := g.runtime.Ping(ctx); err != nil {
		slog.Warn("runtime health check failed", "endpoint", status.BackendEndpoint, "error", err)
		return status
	}
	status.Reachable = true
	return status
}

// NewID returns a fresh completion id of the form "chatcmpl-<12 hex>".
func NewID() string {
	return "chatcmpl-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// usageFor takes the runtime's counts and estimates whichever are missing.
func (g *Gateway) usageFor(res *runtime.Result, promptEstimate func() int) api.Usage {
	u := api.Usage{
		PromptTokens:     res.PromptTokens,
		CompletionTokens: res.CompletionTokens,
	}
	if u.PromptTokens == 0 {
		u.PromptTokens = promptEstimate()
	}
	if u.CompletionTokens == 0 {
		u.CompletionTokens = g.tokens.Count(res.Content)
	}
	u.TotalTokens = u.PromptTokens + u.CompletionTokens
	return u
}

func (g *Gateway) record(ctx context.Context, span trace.Span, op string, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("op", op))
	if g.latency != nil {
		g.latency.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	}
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if g.failures != nil {
		g.failures.Add(ctx, 1, attrs)
	}
	slog.Error("runtime call failed", "op", op, "endpoint", g.runtime.Endpoint(), "error", err)
}

func (g *Gateway) addUsage(ctx context.Context, op string, u api.Usage) {
	if g.usage == nil {
		return
	}
	g.usage.Add(ctx, int64(u.PromptTokens), metric.WithAttributes(attribute.String("op", op), attribute.String("kind", "prompt")))
	g.usage.Add(ctx, int64(u.CompletionTokens), metric.WithAttributes(attribute.String("op", op), attribute.String("kind", "completion")))
}

func (g *Gateway) model(requested string) string {
	return firstNonEmpty(requested, g.cfg.Model)
}

func (g *Gateway) temperature(requested *float64) float64 {
	if requested != nil {
		return *requested
	}
	return g.cfg.Temperature
}

func (g *Gateway) maxTokens(requested int) int {
	if requested > 0 {
		return requested
	}
	return g.cfg.MaxTokens
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// errorf wraps ErrValidation with a description.
func errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", apierrors.ErrValidation, fmt.Sprintf(format, args...))
}
