package flusher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kaidoh/fluentforward/buffer"
	"github.com/kaidoh/fluentforward/log"
)

// PeriodicConfig configures a PeriodicFlusher.
type PeriodicConfig struct {
	// FlushInterval is how often the worker wakes to flush non-forced.
	FlushInterval time.Duration
	// WaitUntilBufferFlushed bounds how long Close waits for the buffer to
	// drain under forced flushing before giving up on a clean drain.
	WaitUntilBufferFlushed time.Duration
	// WaitUntilTerminated bounds how long Close waits for the worker
	// goroutine to exit after requesting shutdown.
	WaitUntilTerminated time.Duration

	Logger *log.Logger
}

func (c *PeriodicConfig) withDefaults() {
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	if c.WaitUntilBufferFlushed <= 0 {
		c.WaitUntilBufferFlushed = 10 * time.Second
	}
	if c.WaitUntilTerminated <= 0 {
		c.WaitUntilTerminated = 10 * time.Second
	}
}

// PeriodicFlusher drives buf on a dedicated background worker: a ticker
// wakes it for a non-forced flush, and RequestFlush nudges it to flush
// immediately without waiting for the next tick.
type PeriodicFlusher struct {
	cfg    PeriodicConfig
	buf    *buffer.Buffer
	sender Sender
	logger *log.Logger

	flushRequested chan struct{}
	stopCh         chan struct{}
	doneCh         chan struct{}

	startOnce  sync.Once
	stopOnce   sync.Once
	terminated atomic.Bool
}

// NewPeriodic constructs a PeriodicFlusher over buf, handing sealed chunks
// to sender.
func NewPeriodic(buf *buffer.Buffer, sender Sender, cfg PeriodicConfig) *PeriodicFlusher {
	cfg.withDefaults()
	return &PeriodicFlusher{
		cfg:            cfg,
		buf:            buf,
		sender:         sender,
		logger:         cfg.Logger,
		flushRequested: make(chan struct{}, 1),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// Start launches the background worker. Safe to call once.
func (f *PeriodicFlusher) Start() {
	f.startOnce.Do(func() { go f.run() })
}

func (f *PeriodicFlusher) run() {
	defer close(f.doneCh)
	ticker := time.NewTicker(f.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stopCh:
			return
		case <-ticker.C:
			f.flush(false)
		case <-f.flushRequested:
			f.flush(false)
		}
	}
}

func (f *PeriodicFlusher) flush(force bool) {
	if err := f.buf.Flush(context.Background(), f.sender, force); err != nil && f.logger != nil {
		f.logger.Warn("periodic flush failed", map[string]any{"error": err.Error(), "forced": force})
	}
}

// RequestFlush wakes the worker for an immediate non-forced flush, without
// blocking if one is already pending.
func (f *PeriodicFlusher) RequestFlush() {
	select {
	case f.flushRequested <- struct{}{}:
	default:
	}
}

// Close requests shutdown: it flushes with force=true until the buffer
// drains or WaitUntilBufferFlushed elapses, then waits up to
// WaitUntilTerminated for the worker goroutine to exit. Idempotent.
func (f *PeriodicFlusher) Close(ctx context.Context) error {
	f.stopOnce.Do(func() { close(f.stopCh) })

	deadline := time.Now().Add(f.cfg.WaitUntilBufferFlushed)
	var lastErr error
	for time.Now().Before(deadline) {
		lastErr = f.buf.Flush(ctx, f.sender, true)
		if f.buf.BufferedChunks() == 0 {
			lastErr = nil
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-f.doneCh:
	case <-time.After(f.cfg.WaitUntilTerminated):
	}

	f.terminated.Store(true)
	return lastErr
}

// IsTerminated reports whether Close has completed shutdown of the worker.
func (f *PeriodicFlusher) IsTerminated() bool {
	return f.terminated.Load()
}

var _ Flusher = (*PeriodicFlusher)(nil)
