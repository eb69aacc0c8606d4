package sender

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/kaidoh/fluentforward/chunk"
	"github.com/kaidoh/fluentforward/metrics"
)

// Multi round-robins sends across an ordered list of child senders,
// skipping any that report unavailable, per the failure-aware failover
// contract. Ordering is preserved within a single child but not across a
// failover boundary.
type Multi struct {
	children []Sender
	hint     atomic.Uint64
	metrics  *metrics.Collector
}

// NewMulti constructs a Multi sender over children, in the order they
// should be tried.
func NewMulti(children []Sender, m *metrics.Collector) *Multi {
	return &Multi{children: children, metrics: m}
}

// SendChunk tries each child in round-robin order starting from the last
// successful hint, skipping unavailable children. Returns the last error
// seen if every child is unavailable or fails.
func (m *Multi) SendChunk(ctx context.Context, c *chunk.Chunk) error {
	if len(m.children) == 0 {
		return errors.New("sender: multi has no child senders")
	}

	start := int(m.hint.Load()) % len(m.children)
	var lastErr error
	tried := 0

	for i := 0; i < len(m.children); i++ {
		idx := (start + i) % len(m.children)
		child := m.children[idx]
		if !child.IsAvailable() {
			continue
		}
		tried++
		if tried > 1 && m.metrics != nil {
			m.metrics.IncFailovers()
		}
		err := child.SendChunk(ctx, c)
		if err == nil {
			m.hint.Store(uint64(idx))
			return nil
		}
		lastErr = err
	}

	if tried == 0 {
		return fmt.Errorf("sender: all %d child senders unavailable", len(m.children))
	}
	return fmt.Errorf("sender: all available child senders failed: %w", lastErr)
}

// IsAvailable reports true if at least one child is available.
func (m *Multi) IsAvailable() bool {
	for _, c := range m.children {
		if c.IsAvailable() {
			return true
		}
	}
	return false
}

// Close closes every child sender, joining their errors.
func (m *Multi) Close() error {
	var err error
	for _, c := range m.children {
		if cerr := c.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	return err
}
