package forwarder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kaidoh/fluentforward/alert"
	"github.com/kaidoh/fluentforward/buffer"
	"github.com/kaidoh/fluentforward/chunk"
	"github.com/kaidoh/fluentforward/detector"
	"github.com/kaidoh/fluentforward/flusher"
	"github.com/kaidoh/fluentforward/log"
	"github.com/kaidoh/fluentforward/metrics"
	"github.com/kaidoh/fluentforward/sender"
	"github.com/kaidoh/fluentforward/spill"
)

// EndpointStats reports one configured endpoint's current failure-detector
// verdict.
type EndpointStats struct {
	Addr      string `json:"addr"`
	Available bool   `json:"available"`
}

// Stats is a point-in-time snapshot of a Client's internal state, intended
// for polling by a CLI or monitoring surface.
type Stats struct {
	Metrics              metrics.Snapshot `json:"metrics"`
	AllocatedBufferBytes int64            `json:"allocated_buffer_bytes"`
	BufferedChunks       int              `json:"buffered_chunks"`
	Endpoints            []EndpointStats  `json:"endpoints"`
}

// Client is the forwarder's public façade: application code calls Emit
// (or EmitAt / EmitSerialized) to hand it records, and it handles
// buffering, flushing, retrying, failing over between endpoints, and
// spilling undelivered chunks to disk or S3 across Close.
type Client struct {
	cfg Config

	buf     *buffer.Buffer
	flusher flusher.Flusher
	top     sender.Sender

	detectors  []*detector.Detector
	heartbeats []*detector.Heartbeat
	endpoints  []EndpointConfig

	spillStore spill.Store
	alerts     alert.Adapter
	logger     *log.Logger
	metrics    *metrics.Collector
}

// New builds a Client from cfg: one TCPSender (plus heartbeat-driven
// failure detector) per configured endpoint, wrapped in a round-robin
// Multi sender, wrapped in a retrying Retryable sender, driving a
// buffer.Buffer via a flusher.PeriodicFlusher. If cfg.Spill is set, any
// chunks left over from a prior process's Close are rehydrated into the
// buffer before New returns.
func New(cfg Config) (*Client, error) {
	cfg.withDefaults()
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("forwarder: at least one endpoint is required")
	}

	buf := buffer.New(cfg.Buffer)

	children := make([]sender.Sender, 0, len(cfg.Endpoints))
	detectors := make([]*detector.Detector, 0, len(cfg.Endpoints))
	heartbeats := make([]*detector.Heartbeat, 0, len(cfg.Endpoints))

	c := &Client{
		cfg:        cfg,
		buf:        buf,
		spillStore: cfg.Spill,
		alerts:     cfg.Alerts,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		endpoints:  cfg.Endpoints,
	}

	for _, ep := range cfg.Endpoints {
		det := detector.New(ep.Detector)
		det.OnStateChange(c.onDetectorStateChange(ep.Addr))
		detectors = append(detectors, det)

		ts := sender.NewTCP(sender.Config{
			Addr:            ep.Addr,
			AckMode:         ep.AckMode,
			DialTimeout:     ep.DialTimeout,
			WriteTimeout:    ep.WriteTimeout,
			ReadTimeout:     ep.ReadTimeout,
			WaitBeforeClose: ep.WaitBeforeClose,
			Detector:        det,
			Logger:          cfg.Logger,
			Metrics:         cfg.Metrics,
		})
		children = append(children, ts)

		network := ep.HeartbeatNetwork
		if network == "" {
			network = "tcp"
		}
		interval := ep.HeartbeatInterval
		if interval <= 0 {
			interval = time.Second
		}
		hb := detector.NewHeartbeat(network, ep.Addr, interval, det, cfg.Logger)
		hb.Start()
		heartbeats = append(heartbeats, hb)
	}

	multi := sender.NewMulti(children, cfg.Metrics)
	retryable := sender.NewRetryable(multi, cfg.Retry, cfg.Metrics)
	retryable.OnRetryOver(c.onRetryOver)

	c.top = retryable
	c.detectors = detectors
	c.heartbeats = heartbeats
	c.flusher = flusher.NewPeriodic(buf, retryable, flusher.PeriodicConfig{
		FlushInterval:          cfg.FlushInterval,
		WaitUntilBufferFlushed: cfg.WaitUntilBufferFlushed,
		WaitUntilTerminated:    cfg.WaitUntilTerminated,
		Logger:                 cfg.Logger,
	})

	if cfg.Spill != nil {
		if err := c.rehydrate(context.Background()); err != nil {
			return nil, fmt.Errorf("forwarder: rehydrate spilled chunks: %w", err)
		}
	}

	c.flusher.Start()
	return c, nil
}

func (c *Client) rehydrate(ctx context.Context) error {
	entries, err := c.spillStore.List(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		restored := chunk.Restore(e.Tag, e.ID, e.CreatedAt, e.Data)
		c.buf.Restore(restored)
		if err := c.spillStore.Delete(ctx, e); err != nil && c.logger != nil {
			c.logger.Warn("failed to delete rehydrated spill entry", map[string]any{"tag": e.Tag, "error": err.Error()})
		}
	}
	if len(entries) > 0 && c.logger != nil {
		c.logger.Info("rehydrated spilled chunks", map[string]any{"count": len(entries)})
	}
	return nil
}

func (c *Client) onDetectorStateChange(addr string) func(bool) {
	return func(available bool) {
		if c.metrics != nil {
			c.metrics.IncDetectorStateChanges()
		}
		if c.alerts != nil {
			_ = c.alerts.Notify(context.Background(), alert.Event{
				Kind:      alert.KindDetectorStateChange,
				Endpoint:  addr,
				Available: available,
				Message:   fmt.Sprintf("endpoint %s availability changed", addr),
				Time:      time.Now(),
			})
		}
	}
}

func (c *Client) onRetryOver(err error) {
	if c.alerts != nil {
		_ = c.alerts.Notify(context.Background(), alert.Event{
			Kind:    alert.KindRetryOver,
			Message: err.Error(),
			Time:    time.Now(),
		})
	}
}

// Emit encodes record with the configured Encode function and appends it
// to tag's chunk, timestamped now.
func (c *Client) Emit(ctx context.Context, tag string, record map[string]any) error {
	return c.EmitAt(ctx, tag, chunk.Now(), record)
}

// EmitAt is Emit with an explicit event time.
func (c *Client) EmitAt(ctx context.Context, tag string, t chunk.EventTime, record map[string]any) error {
	err := c.buf.Append(buffer.WithOpportunisticSender(ctx, c.top), tag, t, record)
	if c.metrics != nil {
		if err == nil {
			c.metrics.IncEventsEmitted()
		} else if errors.Is(err, buffer.ErrBufferFull) {
			c.metrics.IncBufferFullErrors()
		}
	}
	return err
}

// EmitSerialized appends a record that has already been encoded to
// MessagePack bytes, bypassing Config.Encode.
func (c *Client) EmitSerialized(ctx context.Context, tag string, t chunk.EventTime, recordBytes []byte) error {
	err := c.buf.AppendSerialized(buffer.WithOpportunisticSender(ctx, c.top), tag, t, recordBytes)
	if c.metrics != nil {
		if err == nil {
			c.metrics.IncEventsEmitted()
		} else if errors.Is(err, buffer.ErrBufferFull) {
			c.metrics.IncBufferFullErrors()
		}
	}
	return err
}

// Flush requests an immediate flush of any sealed chunks.
func (c *Client) Flush() {
	c.flusher.RequestFlush()
}

// Close drains the buffer (forcing every current chunk sealed and sent),
// then spills whatever remains undelivered to Config.Spill if configured,
// and shuts down every heartbeat prober.
func (c *Client) Close(ctx context.Context) error {
	flushErr := c.flusher.Close(ctx)
	closeErr := c.buf.Close(ctx, c.top, c.spillStore)

	for _, hb := range c.heartbeats {
		_ = hb.Close()
	}
	senderErr := c.top.Close()

	if flushErr != nil {
		return flushErr
	}
	if closeErr != nil {
		return closeErr
	}
	return senderErr
}

// IsTerminated reports whether Close has completed the flusher's shutdown.
func (c *Client) IsTerminated() bool {
	return c.flusher.IsTerminated()
}

// WaitUntilAllBufferFlushed blocks until the buffer has no queued chunks
// or ctx is done, whichever comes first.
func (c *Client) WaitUntilAllBufferFlushed(ctx context.Context) error {
	for c.buf.BufferedChunks() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	return nil
}

// WaitUntilFlusherTerminated blocks until IsTerminated reports true or ctx
// is done.
func (c *Client) WaitUntilFlusherTerminated(ctx context.Context) error {
	for !c.IsTerminated() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	return nil
}

// AllocatedBufferSize returns the buffer's current allocated byte budget.
func (c *Client) AllocatedBufferSize() int64 {
	return c.buf.AllocatedBytes()
}

// BufferedChunks returns the number of chunks currently queued for send.
func (c *Client) BufferedChunks() int {
	return c.buf.BufferedChunks()
}

// ClearBackupFiles removes every entry from the configured spill store, if
// any. A no-op when spill is disabled.
func (c *Client) ClearBackupFiles(ctx context.Context) error {
	if c.spillStore == nil {
		return nil
	}
	return c.spillStore.Clear(ctx)
}

// Stats returns a point-in-time snapshot of metrics, buffer occupancy, and
// per-endpoint availability.
func (c *Client) Stats() Stats {
	snapshot := metrics.Snapshot{}
	if c.metrics != nil {
		snapshot = c.metrics.Snapshot()
	}

	endpoints := make([]EndpointStats, len(c.endpoints))
	for i, ep := range c.endpoints {
		endpoints[i] = EndpointStats{Addr: ep.Addr, Available: c.detectors[i].IsAvailable()}
	}

	return Stats{
		Metrics:              snapshot,
		AllocatedBufferBytes: c.buf.AllocatedBytes(),
		BufferedChunks:       c.buf.BufferedChunks(),
		Endpoints:            endpoints,
	}
}
