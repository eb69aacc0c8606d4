package flusher

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/kaidoh/fluentforward/buffer"
)

// SyncConfig configures a SyncFlusher.
type SyncConfig struct {
	// WaitUntilBufferFlushed bounds how long Close spends retrying a forced
	// flush before giving up on a clean drain.
	WaitUntilBufferFlushed time.Duration
}

func (c *SyncConfig) withDefaults() {
	if c.WaitUntilBufferFlushed <= 0 {
		c.WaitUntilBufferFlushed = 10 * time.Second
	}
}

// SyncFlusher runs no background worker. The caller drives flushing
// directly: RequestFlush triggers a synchronous, non-forced flush on the
// calling goroutine, and Close performs forced flushes until the buffer
// drains or WaitUntilBufferFlushed elapses. Appending to the buffer does
// not trigger a flush; only RequestFlush and Close do.
type SyncFlusher struct {
	cfg    SyncConfig
	buf    *buffer.Buffer
	sender Sender

	terminated atomic.Bool
}

// NewSync constructs a SyncFlusher over buf, handing sealed chunks to
// sender on the caller's own cadence.
func NewSync(buf *buffer.Buffer, sender Sender, cfg SyncConfig) *SyncFlusher {
	cfg.withDefaults()
	return &SyncFlusher{cfg: cfg, buf: buf, sender: sender}
}

// Start is a no-op: SyncFlusher has no background activity.
func (f *SyncFlusher) Start() {}

// RequestFlush performs a non-forced flush inline on the calling goroutine.
func (f *SyncFlusher) RequestFlush() {
	_ = f.buf.Flush(context.Background(), f.sender, false)
}

// Close performs forced flushes until the buffer drains or
// WaitUntilBufferFlushed elapses. Idempotent.
func (f *SyncFlusher) Close(ctx context.Context) error {
	deadline := time.Now().Add(f.cfg.WaitUntilBufferFlushed)
	var lastErr error
	for {
		lastErr = f.buf.Flush(ctx, f.sender, true)
		if f.buf.BufferedChunks() == 0 {
			lastErr = nil
			break
		}
		if !time.Now().Before(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	f.terminated.Store(true)
	return lastErr
}

// IsTerminated reports whether Close has run.
func (f *SyncFlusher) IsTerminated() bool {
	return f.terminated.Load()
}

var _ Flusher = (*SyncFlusher)(nil)
