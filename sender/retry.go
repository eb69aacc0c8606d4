package sender

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kaidoh/fluentforward/chunk"
	"github.com/kaidoh/fluentforward/metrics"
)

// ErrRetryOver is the terminal error raised once a Retryable sender has
// exhausted MaxRetryCount attempts for a single SendChunk call.
var ErrRetryOver = errors.New("sender: retry attempts exhausted")

// RetryConfig configures a Retryable sender's exponential backoff.
type RetryConfig struct {
	// BaseInterval is the delay before the first retry.
	BaseInterval time.Duration
	// MaxInterval caps the backoff delay.
	MaxInterval time.Duration
	// MaxRetryCount is the number of retry attempts after the initial send.
	MaxRetryCount int
}

// DefaultRetryConfig returns a 500ms base, 30s cap, 10 retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		BaseInterval:  500 * time.Millisecond,
		MaxInterval:   30 * time.Second,
		MaxRetryCount: 10,
	}
}

// NextInterval returns min(BaseInterval * 2^attempt, MaxInterval).
func (c RetryConfig) NextInterval(attempt int) time.Duration {
	d := c.BaseInterval
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= c.MaxInterval {
			return c.MaxInterval
		}
	}
	return d
}

// Retryable wraps a Sender with exponential-backoff retry. On exhaustion it
// raises a terminal ErrRetryOver, delivered both to the caller and, if set,
// to OnRetryOver.
type Retryable struct {
	inner       Sender
	cfg         RetryConfig
	metrics     *metrics.Collector
	onRetryOver func(error)
}

// NewRetryable wraps inner with cfg's backoff policy.
func NewRetryable(inner Sender, cfg RetryConfig, m *metrics.Collector) *Retryable {
	if cfg.MaxRetryCount <= 0 {
		cfg = DefaultRetryConfig()
	}
	return &Retryable{inner: inner, cfg: cfg, metrics: m}
}

// OnRetryOver registers a callback invoked (in addition to the returned
// error) whenever retries are exhausted for a send. Typically wired to an
// alert.Adapter.
func (r *Retryable) OnRetryOver(fn func(error)) {
	r.onRetryOver = fn
}

// SendChunk retries inner.SendChunk with exponential backoff until it
// succeeds, the context is canceled, or MaxRetryCount is exhausted.
func (r *Retryable) SendChunk(ctx context.Context, c *chunk.Chunk) error {
	var lastErr error
	attempts := 1 + r.cfg.MaxRetryCount

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("sender: context canceled: %w", err)
		}

		if attempt > 0 {
			wait := r.cfg.NextInterval(attempt - 1)
			select {
			case <-ctx.Done():
				return fmt.Errorf("sender: context canceled during backoff: %w", ctx.Err())
			case <-time.After(wait):
			}
		}

		lastErr = r.inner.SendChunk(ctx, c)
		if lastErr == nil {
			return nil
		}
	}

	err := fmt.Errorf("%w after %d attempts: %v", ErrRetryOver, attempts, lastErr)
	if r.metrics != nil {
		r.metrics.IncRetryOverErrors()
	}
	if r.onRetryOver != nil {
		r.onRetryOver(err)
	}
	return err
}

// IsAvailable delegates to the wrapped sender.
func (r *Retryable) IsAvailable() bool { return r.inner.IsAvailable() }

// Close delegates to the wrapped sender.
func (r *Retryable) Close() error { return r.inner.Close() }
