// Package chunk implements the per-tag MessagePack byte region described in
// the buffer's data model: a growable concatenation of [timestamp, record]
// entries, sealed once it reaches a retention size or age.
package chunk

import (
	"bytes"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// Chunk is a single tag's accumulated PackedForward payload. Once sealed it
// is never mutated again; callers must not call Append after Seal.
//
// Chunk itself holds no lock: mutation is serialized by the buffer's
// tag-local lock, per the concurrency model in §5.
type Chunk struct {
	tag       string
	id        uuid.UUID
	buf       []byte
	createdAt time.Time
	count     int64
	sealed    bool
}

// New allocates a chunk for tag with the given initial capacity.
func New(tag string, capacity int) *Chunk {
	if capacity < 0 {
		capacity = 0
	}
	return &Chunk{
		tag:       tag,
		id:        uuid.New(),
		buf:       make([]byte, 0, capacity),
		createdAt: time.Now(),
	}
}

// Restore reconstructs a chunk from previously spilled bytes, preserving
// its original tag, id, and creation time. Used when rehydrating spill
// files at startup. The entry count is recomputed by walking the
// [EventTime, record] array stream, since spill stores persist only the
// raw entry bytes, not the in-memory count.
func Restore(tag string, id uuid.UUID, createdAt time.Time, data []byte) *Chunk {
	return &Chunk{
		tag:       tag,
		id:        id,
		buf:       data,
		createdAt: createdAt,
		count:     countEntries(data),
		sealed:    true,
	}
}

// countEntries returns the number of [EventTime, record] entries encoded
// in data, by skipping each entry's array elements in turn.
func countEntries(data []byte) int64 {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	var n int64
	for {
		l, err := dec.DecodeArrayLen()
		if err != nil {
			return n
		}
		skipped := true
		for i := 0; i < l; i++ {
			if err := dec.Skip(); err != nil {
				skipped = false
				break
			}
		}
		if !skipped {
			return n
		}
		n++
	}
}

// Tag returns the chunk's routing tag.
func (c *Chunk) Tag() string { return c.tag }

// ID returns the chunk's opaque ack-token identifier.
func (c *Chunk) ID() uuid.UUID { return c.id }

// CreatedAt returns the chunk's creation timestamp.
func (c *Chunk) CreatedAt() time.Time { return c.createdAt }

// Age returns how long ago the chunk was created, relative to now.
func (c *Chunk) Age(now time.Time) time.Duration { return now.Sub(c.createdAt) }

// Size returns the number of bytes currently held.
func (c *Chunk) Size() int { return len(c.buf) }

// Cap returns the current backing capacity.
func (c *Chunk) Cap() int { return cap(c.buf) }

// Count returns the number of entries appended.
func (c *Chunk) Count() int64 { return c.count }

// Bytes returns the chunk's raw PackedForward payload. The caller must not
// mutate the returned slice.
func (c *Chunk) Bytes() []byte { return c.buf }

// Append adds one pre-built [timestamp, record] entry to the chunk and
// increments its event count. Caller must hold the owning tag lock and
// must not call Append after Seal.
func (c *Chunk) Append(entry []byte) {
	c.buf = append(c.buf, entry...)
	c.count++
}

// Grow extends the backing array to newCap, copying existing bytes. A
// no-op if newCap does not exceed the current capacity.
func (c *Chunk) Grow(newCap int) {
	if newCap <= cap(c.buf) {
		return
	}
	next := make([]byte, len(c.buf), newCap)
	copy(next, c.buf)
	c.buf = next
}

// Seal marks the chunk immutable. Idempotent.
func (c *Chunk) Seal() { c.sealed = true }

// Sealed reports whether the chunk has been sealed.
func (c *Chunk) Sealed() bool { return c.sealed }

// AckToken returns the base64 encoding of the chunk's 16 raw UUID bytes,
// the wire representation of the ack-mode "chunk" option per §9.
func (c *Chunk) AckToken() string {
	raw, _ := c.id.MarshalBinary()
	return base64.StdEncoding.EncodeToString(raw)
}
