// Package buffer implements the chunked, per-tag event buffer described by
// the data model: concurrent appenders coalesce MessagePack-encoded events
// into per-tag chunks under a shared byte budget, with backpressure and
// crash-resilient spill to a backing store.
package buffer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kaidoh/fluentforward/chunk"
	"github.com/kaidoh/fluentforward/serialize"
)

// ErrBufferFull is returned by Append when the global byte budget is
// exhausted and a single opportunistic flush did not free enough capacity.
// Buffer never drops events silently; producers must retry or back off.
var ErrBufferFull = errors.New("buffer: allocated capacity would exceed MaxBufferSize")

// Sender is the minimal capability buffer needs to hand a sealed chunk off.
// Defined locally (rather than importing package sender) so sender's
// richer types (TCPSender, Multi, Retryable) satisfy it structurally
// without creating an import cycle.
type Sender interface {
	SendChunk(ctx context.Context, c *chunk.Chunk) error
}

// SpillStore is the minimal capability buffer needs to persist chunks it
// could not deliver before shutdown. Satisfied structurally by
// spill.FileStore and spill.S3Store.
type SpillStore interface {
	Put(ctx context.Context, tag string, id uuid.UUID, createdAt time.Time, data []byte) error
}

type tagState struct {
	mu      sync.Mutex
	current *chunk.Chunk
}

// Buffer accumulates per-tag chunks under a global capacity budget.
type Buffer struct {
	cfg Config

	tagsMu sync.Mutex
	tags   map[string]*tagState

	queueMu sync.Mutex
	queue   []*chunk.Chunk

	allocated atomic.Int64
}

// New constructs a Buffer. Zero-value Config fields are filled from
// DefaultConfig.
func New(cfg Config) *Buffer {
	cfg.withDefaults()
	return &Buffer{
		cfg:  cfg,
		tags: make(map[string]*tagState),
	}
}

// AllocatedBytes returns the current Σ capacity(chunk) over current and
// queued chunks.
func (b *Buffer) AllocatedBytes() int64 {
	return b.allocated.Load()
}

// BufferedChunks returns the number of sealed chunks awaiting flush.
func (b *Buffer) BufferedChunks() int {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	return len(b.queue)
}

func (b *Buffer) tagStateFor(tag string) *tagState {
	b.tagsMu.Lock()
	defer b.tagsMu.Unlock()
	ts, ok := b.tags[tag]
	if !ok {
		ts = &tagState{}
		b.tags[tag] = ts
	}
	return ts
}

// Append encodes record with the configured Encode function and appends it
// to tag's current chunk, sealing and rotating as needed. Returns
// ErrBufferFull if the append would exceed MaxBufferSize.
func (b *Buffer) Append(ctx context.Context, tag string, t chunk.EventTime, record map[string]any) error {
	payload, err := b.cfg.Encode(record)
	if err != nil {
		return fmt.Errorf("buffer: encode record for tag %q: %w", tag, err)
	}
	return b.AppendSerialized(ctx, tag, t, payload)
}

// AppendSerialized appends a pre-serialized MessagePack record, skipping the
// Encode step. Used for producers that already hold MessagePack bytes.
func (b *Buffer) AppendSerialized(ctx context.Context, tag string, t chunk.EventTime, recordBytes []byte) error {
	entry := serialize.AppendEntry(nil, t, recordBytes)
	return b.appendEntry(ctx, tag, entry)
}

// appendEntry implements the append algorithm: grow-or-seal under the
// tag-local lock, then budget-check the capacity delta before committing.
// The tag lock is released before any opportunistic flush is attempted —
// sealCurrents locks every tag's state in turn (including this one) and
// Flush's drain may block on a network send, so holding ts.mu across that
// call would both self-deadlock and serialize unrelated producers on this
// tag behind a round-trip. At most one opportunistic flush is attempted
// per call; the capacity decision is recomputed from fresh state after
// reacquiring the lock, since another appender may have run while
// unlocked.
func (b *Buffer) appendEntry(ctx context.Context, tag string, entry []byte) error {
	entryLen := int64(len(entry))
	ts := b.tagStateFor(tag)
	flushed := false

	for {
		ts.mu.Lock()

		cur := ts.current
		var toSeal *chunk.Chunk
		var newCap int64

		switch {
		case cur == nil:
			newCap = b.cfg.ChunkInitialSize
			if entryLen > newCap {
				newCap = entryLen
			}
		case int64(cur.Size())+entryLen <= int64(cur.Cap()):
			// fits in already-allocated capacity; no budget delta.
		case int64(cur.Cap()) < b.cfg.ChunkRetentionSize:
			grown := growCapacity(int64(cur.Cap()), b.cfg.ChunkExpandRatio, b.cfg.ChunkRetentionSize)
			for grown < int64(cur.Size())+entryLen && grown < b.cfg.ChunkRetentionSize {
				grown = growCapacity(grown, b.cfg.ChunkExpandRatio, b.cfg.ChunkRetentionSize)
			}
			if grown < int64(cur.Size())+entryLen {
				// still insufficient even at the retention ceiling: seal and rotate.
				toSeal = cur
				newCap = b.cfg.ChunkInitialSize
				if entryLen > newCap {
					newCap = entryLen
				}
			} else {
				newCap = grown - int64(cur.Cap())
			}
		default:
			toSeal = cur
			newCap = b.cfg.ChunkInitialSize
			if entryLen > newCap {
				newCap = entryLen
			}
		}

		if newCap > 0 && !b.tryReserve(newCap) {
			ts.mu.Unlock()

			if flushed {
				return ErrBufferFull
			}
			flushed = true
			if sender, ok := ctx.Value(opportunisticSenderKey{}).(Sender); ok && sender != nil {
				_ = b.Flush(ctx, sender, false)
			}
			// Re-evaluate the decision against post-flush state: the
			// opportunistic flush may have sealed or released this very
			// tag's current chunk.
			continue
		}

		if toSeal != nil {
			toSeal.Seal()
			b.enqueue(toSeal)
			cur = chunk.New(tag, int(newCap))
			ts.current = cur
		} else if cur == nil {
			cur = chunk.New(tag, int(newCap))
			ts.current = cur
		} else if newCap > 0 {
			cur.Grow(cur.Cap() + int(newCap))
		}

		cur.Append(entry)

		if int64(cur.Size()) >= b.cfg.ChunkRetentionSize || cur.Age(time.Now()) >= b.cfg.ChunkRetentionTime {
			cur.Seal()
			b.enqueue(cur)
			ts.current = nil
		}

		ts.mu.Unlock()
		return nil
	}
}

func (b *Buffer) tryReserve(delta int64) bool {
	for {
		cur := b.allocated.Load()
		if cur+delta > b.cfg.MaxBufferSize {
			return false
		}
		if b.allocated.CompareAndSwap(cur, cur+delta) {
			return true
		}
	}
}

func (b *Buffer) release(delta int64) {
	b.allocated.Add(-delta)
}

func (b *Buffer) enqueue(c *chunk.Chunk) {
	b.queueMu.Lock()
	b.queue = append(b.queue, c)
	b.queueMu.Unlock()
	if b.cfg.Metrics != nil {
		b.cfg.Metrics.IncChunksSealed()
	}
}

// growCapacity returns cap scaled by ratio, rounded up to at least cap+1 to
// guarantee progress, and capped at ceiling.
func growCapacity(cap int64, ratio float64, ceiling int64) int64 {
	if cap <= 0 {
		cap = 1
	}
	next := int64(float64(cap) * ratio)
	if next <= cap {
		next = cap + 1
	}
	if next > ceiling {
		next = ceiling
	}
	return next
}

type opportunisticSenderKey struct{}

// WithOpportunisticSender attaches a sender to ctx so that Append calls can
// perform a single best-effort flush before failing with ErrBufferFull, per
// the data model's "blocks only long enough to attempt a single
// opportunistic flush" invariant.
func WithOpportunisticSender(ctx context.Context, s Sender) context.Context {
	return context.WithValue(ctx, opportunisticSenderKey{}, s)
}

// Flush seals every current chunk (when force is true, or when a chunk's
// age already exceeds ChunkRetentionTime) and hands all sealed chunks to
// sender in FIFO order. A chunk that fails to send is returned to the head
// of the queue and stops the flush loop, preserving order for the next
// attempt.
func (b *Buffer) Flush(ctx context.Context, sender Sender, force bool) error {
	b.sealCurrents(force)
	return b.drain(ctx, sender)
}

func (b *Buffer) sealCurrents(force bool) {
	b.tagsMu.Lock()
	states := make([]*tagState, 0, len(b.tags))
	for _, ts := range b.tags {
		states = append(states, ts)
	}
	b.tagsMu.Unlock()

	now := time.Now()
	for _, ts := range states {
		ts.mu.Lock()
		cur := ts.current
		if cur != nil && (force || cur.Age(now) >= b.cfg.ChunkRetentionTime) {
			cur.Seal()
			b.enqueue(cur)
			ts.current = nil
		}
		ts.mu.Unlock()
	}
}

func (b *Buffer) drain(ctx context.Context, sender Sender) error {
	for {
		c := b.dequeue()
		if c == nil {
			return nil
		}
		if err := sender.SendChunk(ctx, c); err != nil {
			b.requeueFront(c)
			if b.cfg.Metrics != nil {
				b.cfg.Metrics.IncChunksFailed()
			}
			return fmt.Errorf("buffer: send chunk for tag %q: %w", c.Tag(), err)
		}
		b.release(int64(c.Cap()))
		if b.cfg.Metrics != nil {
			b.cfg.Metrics.IncChunksSent()
		}
	}
}

func (b *Buffer) dequeue() *chunk.Chunk {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	if len(b.queue) == 0 {
		return nil
	}
	c := b.queue[0]
	b.queue = b.queue[1:]
	return c
}

func (b *Buffer) requeueFront(c *chunk.Chunk) {
	b.queueMu.Lock()
	b.queue = append([]*chunk.Chunk{c}, b.queue...)
	b.queueMu.Unlock()
}

// Close forces a full flush, then spills any chunks that remain queued
// (because sending failed) to store, if configured, and releases their
// budget. Rehydration of spilled chunks back into the flush queue at
// startup is performed by the caller via Restore, before Close is ever
// reachable again.
func (b *Buffer) Close(ctx context.Context, sender Sender, store SpillStore) error {
	flushErr := b.Flush(ctx, sender, true)

	remaining := b.drainQueueForSpill()
	if len(remaining) == 0 {
		return flushErr
	}
	if store == nil {
		// No backup configured: chunks are lost, matching a forwarder run
		// with no fileBackupDir configured. Budget is still released so the
		// process doesn't report stale allocation after Close.
		if b.cfg.Logger != nil {
			b.cfg.Logger.Warn("no spill store configured; dropping undelivered chunks", map[string]any{"chunks": len(remaining)})
		}
		for _, c := range remaining {
			b.release(int64(c.Cap()))
		}
		return flushErr
	}

	var spillErr error
	for _, c := range remaining {
		if err := store.Put(ctx, c.Tag(), c.ID(), c.CreatedAt(), c.Bytes()); err != nil {
			spillErr = errors.Join(spillErr, fmt.Errorf("buffer: spill chunk for tag %q: %w", c.Tag(), err))
			continue
		}
		if b.cfg.Metrics != nil {
			b.cfg.Metrics.IncChunksSpilled()
		}
		b.release(int64(c.Cap()))
	}
	return errors.Join(flushErr, spillErr)
}

func (b *Buffer) drainQueueForSpill() []*chunk.Chunk {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	remaining := b.queue
	b.queue = nil
	return remaining
}

// Restore re-enqueues a chunk rehydrated from a spill store, appending it
// to the tail of the flush queue and adding its capacity to the budget.
// forwarder.New calls it once per rehydrated entry before accepting new
// events, so rehydrated chunks drain before newly buffered traffic.
func (b *Buffer) Restore(c *chunk.Chunk) {
	b.queueMu.Lock()
	b.queue = append(b.queue, c)
	b.queueMu.Unlock()
	b.allocated.Add(int64(c.Cap()))
}
