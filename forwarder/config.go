// Package forwarder wires together the buffer, flusher, sender, and
// detector stacks into the library's public façade: a Client that accepts
// application records on Emit and delivers them to a Fluentd Forward
// Protocol aggregator.
package forwarder

import (
	"time"

	"github.com/kaidoh/fluentforward/alert"
	"github.com/kaidoh/fluentforward/buffer"
	"github.com/kaidoh/fluentforward/detector"
	"github.com/kaidoh/fluentforward/log"
	"github.com/kaidoh/fluentforward/metrics"
	"github.com/kaidoh/fluentforward/sender"
	"github.com/kaidoh/fluentforward/serialize"
	"github.com/kaidoh/fluentforward/spill"
)

// EndpointConfig configures one upstream Fluentd Forward Protocol
// endpoint within a Client's failover set.
type EndpointConfig struct {
	Addr              string
	AckMode           bool
	DialTimeout       time.Duration
	WriteTimeout      time.Duration
	ReadTimeout       time.Duration
	WaitBeforeClose   time.Duration
	HeartbeatNetwork  string // "tcp" or "udp"; default "tcp"
	HeartbeatInterval time.Duration
	Detector          detector.Config
}

// Config aggregates every sub-component's configuration into the single
// struct forwarder.New consumes.
type Config struct {
	Endpoints []EndpointConfig

	Buffer                 buffer.Config
	Retry                  sender.RetryConfig
	FlushInterval          time.Duration
	WaitUntilBufferFlushed time.Duration
	WaitUntilTerminated    time.Duration

	// Encode converts an application record into MessagePack bytes.
	// Defaults to serialize.EncodeMap.
	Encode serialize.EncodeFunc

	// Spill persists undelivered chunks across Close. Optional: nil
	// disables spill entirely (chunks queued at Close are dropped with a
	// logged warning when Logger is set).
	Spill spill.Store

	// Alerts are notified on retry exhaustion and detector state changes.
	Alerts alert.Adapter

	Logger  *log.Logger
	Metrics *metrics.Collector
}

func (c *Config) withDefaults() {
	if c.Encode == nil {
		c.Encode = serialize.EncodeMap
	}
	c.Buffer.Encode = c.Encode
	if c.Logger != nil {
		c.Buffer.Logger = c.Logger
	}
	if c.Metrics != nil {
		c.Buffer.Metrics = c.Metrics
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	if c.WaitUntilBufferFlushed <= 0 {
		c.WaitUntilBufferFlushed = 10 * time.Second
	}
	if c.WaitUntilTerminated <= 0 {
		c.WaitUntilTerminated = 10 * time.Second
	}
	if c.Retry.MaxRetryCount <= 0 {
		c.Retry = sender.DefaultRetryConfig()
	}
}
