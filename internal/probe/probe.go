// Package probe checks once whether a completion gateway is reachable.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/zhengjr9/edgechat/internal/api"
	apierrors "github.com/zhengjr9/edgechat/internal/errors"
)

// Prober issues a single bounded GET {endpoint}/health. It never retries.
type Prober struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
}

// New returns a Prober for the gateway at endpoint. A non-positive timeout
// falls back to five seconds; probes are always bounded.
func New(endpoint string, timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Prober{
		endpoint:   strings.TrimRight(endpoint, "/"),
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// Probe reports reachability. Timeouts, transport errors, non-2xx replies and
// bodies reporting reachable=false all yield Reachable=false.
func (p *Prober) Probe(ctx context.Context) api.HealthStatus {
	status, err := p.check(ctx)
	if err != nil {
		slog.Info("gateway probe failed", "endpoint", p.endpoint, "error", err)
		return api.HealthStatus{BackendEndpoint: status.BackendEndpoint, Model: status.Model}
	}
	return status
}

func (p *Prober) check(ctx context.Context) (api.HealthStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"/health", nil)
	if err != nil {
		return api.HealthStatus{}, fmt.Errorf("%w: build request: %v", apierrors.ErrProbeUnreachable, err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return api.HealthStatus{}, fmt.Errorf("%w after %s", apierrors.ErrProbeTimeout, p.timeout)
		}
		return api.HealthStatus{}, fmt.Errorf("%w: %v", apierrors.ErrProbeUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return api.HealthStatus{}, fmt.Errorf("%w after %s", apierrors.ErrProbeTimeout, p.timeout)
		}
		return api.HealthStatus{}, fmt.Errorf("%w: read body: %v", apierrors.ErrProbeUnreachable, err)
	}

	var status api.HealthStatus
	decodeErr := json.Unmarshal(raw, &status)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return status, fmt.Errorf("%w: status %d", apierrors.ErrProbeUnreachable, resp.StatusCode)
	}
	if decodeErr != nil {
		return api.HealthStatus{}, fmt.Errorf("%w: decode body: %v", apierrors.ErrProbeUnreachable, decodeErr)
	}
	if !status.Reachable {
		return status, fmt.Errorf("%w: gateway reports runtime unreachable", apierrors.ErrProbeUnreachable)
	}
	return status, nil
}
