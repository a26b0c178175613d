// Package client talks to a completion gateway over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zhengjr9/edgechat/internal/api"
	apierrors "github.com/zhengjr9/edgechat/internal/errors"
)

// Client sends requests to a gateway instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New constructs a Client for the gateway at baseURL. A positive timeout caps
// every request; callers may also bound calls through ctx.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the gateway address the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// ChatCompletion sends the full conversation and returns the assistant reply.
func (c *Client) ChatCompletion(ctx context.Context, req *api.ChatCompletionRequest) (*api.ChatCompletionResponse, error) {
	var resp api.ChatCompletionResponse
	if err := c.do(ctx, http.MethodPost, "/v1/chat/completions", req, &resp); err != nil {
		return nil, err
	}
	// An empty Content is a valid (if short) model reply.
	if resp.Message.Role == "" {
		return nil, fmt.Errorf("%w: reply has no message", apierrors.ErrUpstreamMalformed)
	}
	return &resp, nil
}

// Models lists the model ids the gateway's runtime has installed.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	var models []string
	if err := c.do(ctx, http.MethodGet, "/v1/models", nil, &models); err != nil {
		return nil, err
	}
	if models == nil {
		models = []string{}
	}
	return models, nil
}

// Health fetches the gateway's view of its runtime. A 503 still carries a
// decodable status, so it is returned alongside ErrGatewayUnavailable.
func (c *Client) Health(ctx context.Context) (*api.HealthStatus, error) {
	var status api.HealthStatus
	err := c.do(ctx, http.MethodGet, "/health", nil, &status)
	if err != nil && !errors.Is(err, apierrors.ErrGatewayUnavailable) {
		return nil, err
	}
	return &status, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", apierrors.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", apierrors.ErrGatewayUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := apierrors.DecodeMessage(raw)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		// Best effort: /health sends a status body with its 503.
		_ = json.Unmarshal(raw, out)
		return fmt.Errorf("%w: gateway %d: %s", apierrors.ErrGatewayUnavailable, resp.StatusCode, msg)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", apierrors.ErrUpstreamMalformed, err)
	}
	return nil
}
