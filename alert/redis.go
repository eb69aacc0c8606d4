package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultChannel is the default pub/sub channel for RedisAdapter.
const DefaultChannel = "fluentforward:alerts"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// RedisConfig configures RedisAdapter.
type RedisConfig struct {
	// URL is the Redis connection URL (required). Format:
	// redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel name (default DefaultChannel).
	Channel string
	// Timeout is the per-publish timeout (default DefaultTimeout).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure. Zero means a
	// single attempt with no retries; DefaultRetries is not applied
	// automatically.
	Retries int
}

// RedisAdapter publishes alert events via Redis PUBLISH.
type RedisAdapter struct {
	config RedisConfig
	client *goredis.Client
}

// NewRedis creates a RedisAdapter from cfg. Returns an error if the URL is
// empty or invalid.
func NewRedis(cfg RedisConfig) (*RedisAdapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("alert: redis adapter requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("alert: invalid redis URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("alert: retries must be >= 0, got %d", cfg.Retries)
	}

	return &RedisAdapter{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// Notify publishes event as JSON to the configured channel, retrying with
// exponential backoff on connection errors.
func (a *RedisAdapter) Notify(ctx context.Context, event Event) error {
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

		publishCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		lastErr = a.client.Publish(publishCtx, a.config.Channel, body).Err()
		cancel()

		if lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("alert: redis publish failed after %d attempts: %w", attempts, lastErr)
}

// Close releases the underlying Redis client.
func (a *RedisAdapter) Close() error {
	return a.client.Close()
}

var _ Adapter = (*RedisAdapter)(nil)
