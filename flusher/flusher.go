// Package flusher drives a buffer.Buffer to hand sealed chunks to a sender
// on a schedule (PeriodicFlusher) or synchronously on the caller's own
// cadence (SyncFlusher), and coordinates termination with bounded timeouts.
package flusher

import (
	"context"

	"github.com/kaidoh/fluentforward/buffer"
)

// Sender is the capability a flusher hands sealed chunks to. Re-exported
// from package buffer so callers need not import both.
type Sender = buffer.Sender

// Flusher is the common contract both variants implement.
type Flusher interface {
	// Start begins the flusher's background activity, if any (no-op for
	// SyncFlusher).
	Start()
	// RequestFlush asks for a non-forced flush at the next opportunity.
	RequestFlush()
	// Close drains the buffer and shuts down, bounded by the configured
	// timeouts. Idempotent.
	Close(ctx context.Context) error
	// IsTerminated is monotonic: false until Close has completed shutdown.
	IsTerminated() bool
}
