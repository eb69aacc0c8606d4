package sender

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kaidoh/fluentforward/chunk"
)

type flakySender struct {
	mu        sync.Mutex
	failCount int
	calls     int
}

func (s *flakySender) SendChunk(ctx context.Context, c *chunk.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failCount {
		return errors.New("transient failure")
	}
	return nil
}

func (s *flakySender) IsAvailable() bool { return true }
func (s *flakySender) Close() error      { return nil }

func TestRetryableSucceedsAfterTransientFailures(t *testing.T) {
	inner := &flakySender{failCount: 2}
	r := NewRetryable(inner, RetryConfig{BaseInterval: time.Millisecond, MaxInterval: 10 * time.Millisecond, MaxRetryCount: 5}, nil)

	if err := r.SendChunk(context.Background(), &chunk.Chunk{}); err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if inner.calls != 3 {
		t.Fatalf("expected 3 calls (2 failures + 1 success), got %d", inner.calls)
	}
}

func TestRetryableExhaustionRaisesRetryOver(t *testing.T) {
	inner := &flakySender{failCount: 100}
	r := NewRetryable(inner, RetryConfig{BaseInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, MaxRetryCount: 3}, nil)

	var callbackErr error
	r.OnRetryOver(func(err error) { callbackErr = err })

	err := r.SendChunk(context.Background(), &chunk.Chunk{})
	if !errors.Is(err, ErrRetryOver) {
		t.Fatalf("expected ErrRetryOver, got %v", err)
	}
	if callbackErr == nil {
		t.Fatal("expected OnRetryOver callback to be invoked")
	}
	if inner.calls != 4 {
		t.Fatalf("expected 4 calls (1 initial + 3 retries), got %d", inner.calls)
	}
}

func TestRetryConfigNextInterval(t *testing.T) {
	cfg := RetryConfig{BaseInterval: 100 * time.Millisecond, MaxInterval: time.Second, MaxRetryCount: 10}

	if got := cfg.NextInterval(0); got != 100*time.Millisecond {
		t.Fatalf("attempt 0: got %v, want 100ms", got)
	}
	if got := cfg.NextInterval(1); got != 200*time.Millisecond {
		t.Fatalf("attempt 1: got %v, want 200ms", got)
	}
	if got := cfg.NextInterval(10); got != time.Second {
		t.Fatalf("attempt 10: expected cap at MaxInterval, got %v", got)
	}
}

func TestRetryableContextCancellation(t *testing.T) {
	inner := &flakySender{failCount: 100}
	r := NewRetryable(inner, RetryConfig{BaseInterval: 50 * time.Millisecond, MaxInterval: time.Second, MaxRetryCount: 100}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := r.SendChunk(ctx, &chunk.Chunk{})
	if err == nil {
		t.Fatal("expected an error once the context is canceled")
	}
}
