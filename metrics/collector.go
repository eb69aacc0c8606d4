// Package metrics provides per-process metrics collection for the forwarder.
//
// The Collector accumulates counters for the lifetime of a forwarder
// Client. It is a leaf package with no internal dependencies.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all forwarder metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Ingestion
	EventsEmitted    int64 `json:"events_emitted"`
	BufferFullErrors int64 `json:"buffer_full_errors"`

	// Buffer / chunk lifecycle
	ChunksSealed  int64 `json:"chunks_sealed"`
	ChunksSent    int64 `json:"chunks_sent"`
	ChunksFailed  int64 `json:"chunks_failed"`
	ChunksSpilled int64 `json:"chunks_spilled"`

	// Sender
	SendAttempts    int64 `json:"send_attempts"`
	AckMismatches   int64 `json:"ack_mismatches"`
	AckTimeouts     int64 `json:"ack_timeouts"`
	RetryOverErrors int64 `json:"retry_over_errors"`
	Failovers       int64 `json:"failovers"`

	// Failure detector
	DetectorStateChanges int64 `json:"detector_state_changes"`

	// Dimensions (informational, set at construction)
	Endpoint string `json:"endpoint,omitempty"`
}

// Collector accumulates forwarder metrics. Thread-safe via sync.Mutex. All
// increment methods are nil-receiver safe so a Client built without metrics
// enabled can pass around a nil *Collector without branching at call sites.
type Collector struct {
	mu sync.Mutex

	eventsEmitted    int64
	bufferFullErrors int64

	chunksSealed  int64
	chunksSent    int64
	chunksFailed  int64
	chunksSpilled int64

	sendAttempts    int64
	ackMismatches   int64
	ackTimeouts     int64
	retryOverErrors int64
	failovers       int64

	detectorStateChanges int64

	endpoint string
}

// NewCollector creates a Collector labeled with the forwarder's primary
// endpoint (informational only; all child endpoints share one collector).
func NewCollector(endpoint string) *Collector {
	return &Collector{endpoint: endpoint}
}

// IncEventsEmitted records one successfully buffered event.
func (c *Collector) IncEventsEmitted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.eventsEmitted++
	c.mu.Unlock()
}

// IncBufferFullErrors records one rejected emit due to backpressure.
func (c *Collector) IncBufferFullErrors() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.bufferFullErrors++
	c.mu.Unlock()
}

// IncChunksSealed records one chunk transitioning from current to sealed.
func (c *Collector) IncChunksSealed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.chunksSealed++
	c.mu.Unlock()
}

// IncChunksSent records one chunk successfully delivered upstream.
func (c *Collector) IncChunksSent() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.chunksSent++
	c.mu.Unlock()
}

// IncChunksFailed records one chunk that exhausted retries (RetryOver) or
// otherwise could not be delivered.
func (c *Collector) IncChunksFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.chunksFailed++
	c.mu.Unlock()
}

// IncChunksSpilled records one chunk written to a spill store on shutdown.
func (c *Collector) IncChunksSpilled() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.chunksSpilled++
	c.mu.Unlock()
}

// IncSendAttempts records one call into the sender stack, successful or not.
func (c *Collector) IncSendAttempts() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sendAttempts++
	c.mu.Unlock()
}

// IncAckMismatches records one ack response whose token did not match the
// request's chunk id.
func (c *Collector) IncAckMismatches() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.ackMismatches++
	c.mu.Unlock()
}

// IncAckTimeouts records one ack response that did not arrive within the
// configured read timeout.
func (c *Collector) IncAckTimeouts() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.ackTimeouts++
	c.mu.Unlock()
}

// IncRetryOverErrors records one terminal RetryOver error surfaced from the
// retryable sender.
func (c *Collector) IncRetryOverErrors() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.retryOverErrors++
	c.mu.Unlock()
}

// IncFailovers records one attempt on a further child sender after an
// earlier child failed within the same send. Skipping a child that reports
// unavailable is not counted.
func (c *Collector) IncFailovers() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.failovers++
	c.mu.Unlock()
}

// IncDetectorStateChanges records one availability transition observed by a
// failure detector.
func (c *Collector) IncDetectorStateChanges() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.detectorStateChanges++
	c.mu.Unlock()
}

// Snapshot returns an immutable point-in-time view of all metrics. Safe to
// read concurrently; the Collector can continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		EventsEmitted:    c.eventsEmitted,
		BufferFullErrors: c.bufferFullErrors,

		ChunksSealed:  c.chunksSealed,
		ChunksSent:    c.chunksSent,
		ChunksFailed:  c.chunksFailed,
		ChunksSpilled: c.chunksSpilled,

		SendAttempts:    c.sendAttempts,
		AckMismatches:   c.ackMismatches,
		AckTimeouts:     c.ackTimeouts,
		RetryOverErrors: c.retryOverErrors,
		Failovers:       c.failovers,

		DetectorStateChanges: c.detectorStateChanges,

		Endpoint: c.endpoint,
	}
}
