// Package runtime speaks the native protocols of locally hosted model runtimes.
package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/zhengjr9/edgechat/internal/api"
	"github.com/zhengjr9/edgechat/internal/config"
	apierrors "github.com/zhengjr9/edgechat/internal/errors"
)

// Runtime is a model runtime reachable over its native HTTP protocol.
type Runtime interface {
	// Chat runs one non-streaming chat generation over the full history.
	Chat(ctx context.Context, req *ChatRequest) (*Result, error)
	// Generate runs one non-streaming completion of a bare prompt.
	Generate(ctx context.Context, req *GenerateRequest) (*Result, error)
	// Models lists the model identifiers the runtime can serve.
	Models(ctx context.Context) ([]string, error)
	// Ping returns nil when the runtime answers.
	Ping(ctx context.Context) error
	// Endpoint is the runtime base URL.
	Endpoint() string
}

// ChatRequest is the runtime-neutral shape of a chat call.
type ChatRequest struct {
	Model       string
	Messages    []api.Message
	Temperature float64
	MaxTokens   int
}

// GenerateRequest is the runtime-neutral shape of a prompt completion.
type GenerateRequest struct {
	Model       string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Result is a generated reply. Token counts are zero when the runtime did not
// report them.
type Result struct {
	Model            string
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// New returns the adapter for kind.
func New(kind, baseURL, proxyURL string) (Runtime, error) {
	hc, err := newProxyClient(proxyURL)
	if err != nil {
		return nil, err
	}
	switch kind {
	case config.RuntimeOllama, "":
		return NewOllama(baseURL, hc), nil
	case config.RuntimeOpenAI:
		return NewOpenAI(baseURL, hc), nil
	}
	return nil, fmt.Errorf("unknown runtime %q", kind)
}

// newProxyClient builds a client without a global timeout; callers bound each
// call with their context. An empty proxyURL uses the environment proxy.
func newProxyClient(proxyURL string) (*http.Client, error) {
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid runtime proxy URL %q: %w", proxyURL, err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return nil, fmt.Errorf("invalid runtime proxy URL %q: scheme and host are required", proxyURL)
		}
		transport.Proxy = http.ProxyURL(parsed)
	}
	return &http.Client{Transport: transport}, nil
}

// httpRuntime holds what every adapter shares: the base URL and a client.
type httpRuntime struct {
	baseURL    string
	httpClient *http.Client
}

func newHTTPRuntime(baseURL string, hc *http.Client) httpRuntime {
	if hc == nil {
		hc, _ = newProxyClient("")
	}
	return httpRuntime{baseURL: strings.TrimRight(baseURL, "/"), httpClient: hc}
}

func (h httpRuntime) Endpoint() string { return h.baseURL }

// do sends a JSON request and decodes a JSON reply into out. Transport errors
// and non-2xx statuses map to ErrGatewayUnavailable (ErrGatewayTimeout on
// deadline), decode failures to ErrUpstreamMalformed.
func (h httpRuntime) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s %s: %v", apierrors.ErrGatewayTimeout, method, path, err)
		}
		return fmt.Errorf("%w: %s %s: %v", apierrors.ErrGatewayUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: runtime %d: %s", apierrors.ErrGatewayUnavailable, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: read %s: %v", apierrors.ErrGatewayTimeout, path, err)
		}
		return fmt.Errorf("%w: decode %s: %v", apierrors.ErrUpstreamMalformed, path, err)
	}
	return nil
}
