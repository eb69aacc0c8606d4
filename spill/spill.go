// Package spill persists chunks that could not be delivered before shutdown
// so they survive a process restart and can be rehydrated back into a
// buffer.Buffer's flush queue.
package spill

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Entry describes one spilled chunk as discovered by List.
type Entry struct {
	Tag       string
	ID        uuid.UUID
	CreatedAt time.Time
	Data      []byte
}

// Store persists chunks a buffer.Buffer could not deliver (buffer.Buffer.Close
// calls Put) and hands them back for rehydration (forwarder.New calls List
// and Delete).
type Store interface {
	// Put persists one chunk's raw MessagePack bytes.
	Put(ctx context.Context, tag string, id uuid.UUID, createdAt time.Time, data []byte) error
	// List returns every spilled chunk currently known to the store, in no
	// particular order.
	List(ctx context.Context) ([]Entry, error)
	// Delete removes one previously-listed entry, e.g. after it has been
	// rehydrated into a buffer's flush queue.
	Delete(ctx context.Context, e Entry) error
	// Clear removes every spilled entry.
	Clear(ctx context.Context) error
}
