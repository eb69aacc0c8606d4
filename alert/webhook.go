package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kaidoh/fluentforward/iox"
)

// DefaultWebhookTimeout is the default HTTP request timeout.
const DefaultWebhookTimeout = 10 * time.Second

// DefaultWebhookRetries is the default number of retry attempts.
const DefaultWebhookRetries = 3

// WebhookConfig configures WebhookAdapter.
type WebhookConfig struct {
	// URL is the HTTP endpoint to POST to (required).
	URL string
	// Headers are custom HTTP headers added to every request.
	Headers map[string]string
	// Timeout is the per-request timeout (default DefaultWebhookTimeout).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure. Zero means a
	// single attempt with no retries; DefaultWebhookRetries is not applied
	// automatically.
	Retries int
}

// WebhookAdapter publishes alert events via HTTP POST.
type WebhookAdapter struct {
	config WebhookConfig
	client *http.Client
}

// NewWebhook creates a WebhookAdapter from cfg. Returns an error if the URL
// is empty.
func NewWebhook(cfg WebhookConfig) (*WebhookAdapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("alert: webhook adapter requires a URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultWebhookTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("alert: retries must be >= 0, got %d", cfg.Retries)
	}

	return &WebhookAdapter{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Notify sends event as a JSON POST request, retrying with exponential
// backoff on 5xx responses and network errors. 4xx responses are
// non-retriable and fail immediately.
func (a *WebhookAdapter) Notify(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("alert: marshal event: %w", err)
	}

	var lastErr error
	attempts := 1 + a.config.Retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("alert: context canceled: %w", err)
		}

		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return fmt.Errorf("alert: context canceled during backoff: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = a.doRequest(ctx, body)
		if lastErr == nil {
			return nil
		}

		var statusErr *WebhookStatusError
		if errors.As(lastErr, &statusErr) && statusErr.Code >= 400 && statusErr.Code < 500 {
			return fmt.Errorf("alert: non-retriable webhook response: %w", lastErr)
		}
	}

	return fmt.Errorf("alert: webhook failed after %d attempts: %w", attempts, lastErr)
}

// WebhookStatusError is returned for non-2xx HTTP responses. Wrapping the
// status code lets callers distinguish retriable (5xx) from non-retriable
// (4xx) failures.
type WebhookStatusError struct {
	Code int
}

func (e *WebhookStatusError) Error() string {
	return fmt.Sprintf("alert: unexpected webhook status %d", e.Code)
}

func (a *WebhookAdapter) doRequest(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range a.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &WebhookStatusError{Code: resp.StatusCode}
	}

	return nil
}

// Close releases idle HTTP connections.
func (a *WebhookAdapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ Adapter = (*WebhookAdapter)(nil)
