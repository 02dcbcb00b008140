// Package httpdriver implements driver.Driver over HTTP, POSTing capability
// invocations to a configured base URL per host. It stands in for the
// vendor-specific driver family (SSH shutdown, hypervisor API, switch API)
// that spec.md §1 treats as an external collaborator — the orchestrator
// core depends only on driver.Driver, never on a vendor protocol directly.
//
// Control flow (retry/backoff, 4xx-vs-5xx split) is adapted from the
// teacher's adapter/webhook package, re-pointed at capability invocation
// instead of event publication.
package httpdriver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/haltline/haltd/driver"
	"github.com/haltline/haltd/types"
)

// DefaultTimeout is the default per-request timeout.
const DefaultTimeout = 10 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Config configures an HTTP driver bound to a single host.
type Config struct {
	// BaseURL is the host's integration endpoint (required).
	BaseURL string
	// Headers are custom HTTP headers added to every request.
	Headers map[string]string
	// Timeout is the per-request timeout (default 10s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure (default 3).
	Retries int
}

// Driver invokes capability/verb pairs via HTTP POST.
type Driver struct {
	config Config
	client *http.Client
}

// New creates an HTTP driver from the given config.
func New(cfg Config) (*Driver, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("httpdriver: requires a BaseURL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("httpdriver: retries must be >= 0, got %d", cfg.Retries)
	}
	return &Driver{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// StatusError is returned for non-2xx HTTP responses. Wrapping the status
// code lets callers distinguish retriable (5xx) from non-retriable (4xx)
// failures.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// TestConnection issues a lightweight GET /health and measures latency.
func (d *Driver) TestConnection(ctx context.Context) (driver.ConnectionStatus, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.config.BaseURL+"/health", nil)
	if err != nil {
		return driver.ConnectionStatus{}, fmt.Errorf("httpdriver: build health request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return driver.ConnectionStatus{OK: false, Detail: err.Error()}, nil
	}
	defer drainAndClose(resp.Body)
	latency := time.Since(start).Milliseconds()
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	return driver.ConnectionStatus{OK: ok, LatencyMS: latency}, nil
}

// ListCapabilities fetches GET /capabilities.
func (d *Driver) ListCapabilities(ctx context.Context) ([]types.HostCapability, error) {
	var caps []types.HostCapability
	if err := d.getJSON(ctx, "/capabilities", &caps); err != nil {
		return nil, fmt.Errorf("httpdriver: list capabilities: %w", err)
	}
	return caps, nil
}

// Discover fetches GET /discover?type=...&fast=....
func (d *Driver) Discover(ctx context.Context, targetType string, fast bool) ([]types.TargetDescriptor, error) {
	path := fmt.Sprintf("/discover?type=%s&fast=%t", targetType, fast)
	var targets []types.TargetDescriptor
	if err := d.getJSON(ctx, path, &targets); err != nil {
		return nil, fmt.Errorf("httpdriver: discover: %w", err)
	}
	return targets, nil
}

// Invoke POSTs /invoke/<capability>/<verb> with retry/backoff.
func (d *Driver) Invoke(ctx context.Context, req driver.InvokeRequest) (driver.InvokeResult, error) {
	var result driver.InvokeResult
	if err := d.postWithRetry(ctx, req, &result); err != nil {
		return driver.InvokeResult{}, err
	}
	return result, nil
}

// DryRunInvoke POSTs the same path with DryRun set to true in the body.
func (d *Driver) DryRunInvoke(ctx context.Context, req driver.InvokeRequest) (types.DryRunResult, error) {
	req.DryRun = true
	var result types.DryRunResult
	if err := d.postWithRetry(ctx, req, &result); err != nil {
		return types.DryRunResult{}, err
	}
	return result, nil
}

func (d *Driver) postWithRetry(ctx context.Context, req driver.InvokeRequest, out any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("httpdriver: marshal request: %w", err)
	}

	path := fmt.Sprintf("/invoke/%s/%s", req.Capability, req.Verb)

	var lastErr error
	attempts := 1 + d.config.Retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("httpdriver: context canceled: %w", err)
		}

		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return fmt.Errorf("httpdriver: context canceled during backoff: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = d.doRequest(ctx, http.MethodPost, path, body, out)
		if lastErr == nil {
			return nil
		}

		var statusErr *StatusError
		if errors.As(lastErr, &statusErr) && statusErr.Code >= 400 && statusErr.Code < 500 {
			return fmt.Errorf("httpdriver: non-retriable error: %w", lastErr)
		}
	}

	return fmt.Errorf("httpdriver: failed after %d attempts: %w", attempts, lastErr)
}

func (d *Driver) getJSON(ctx context.Context, path string, out any) error {
	return d.doRequest(ctx, http.MethodGet, path, nil, out)
}

func (d *Driver) doRequest(ctx context.Context, method, path string, body []byte, out any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.config.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range d.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

// Close releases driver resources.
func (d *Driver) Close() error {
	d.client.CloseIdleConnections()
	return nil
}

var _ driver.Driver = (*Driver)(nil)
