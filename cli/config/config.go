// Package config handles YAML config file loading for fluentforward run.
package config

import (
	"fmt"
	"time"
)

// Config represents a fluentforward.yaml configuration file.
type Config struct {
	Endpoints []EndpointConfig `yaml:"endpoints"`

	Buffer   BufferConfig   `yaml:"buffer"`
	Retry    RetryConfig    `yaml:"retry"`
	Detector DetectorConfig `yaml:"detector"`
	Flusher  FlusherConfig  `yaml:"flusher"`
	Spill    SpillConfig    `yaml:"spill"`
	Alert    AlertConfig    `yaml:"alert"`
}

// EndpointConfig is one upstream Fluentd Forward Protocol endpoint.
type EndpointConfig struct {
	Addr              string   `yaml:"addr"`
	AckMode           bool     `yaml:"ack_mode"`
	DialTimeout       Duration `yaml:"dial_timeout"`
	WriteTimeout      Duration `yaml:"write_timeout"`
	ReadTimeout       Duration `yaml:"read_timeout"`
	HeartbeatNetwork  string   `yaml:"heartbeat_network"`
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`
}

// BufferConfig configures package buffer's Config.
type BufferConfig struct {
	MaxBufferSize      int64    `yaml:"max_buffer_size"`
	ChunkInitialSize   int64    `yaml:"chunk_initial_size"`
	ChunkRetentionSize int64    `yaml:"chunk_retention_size"`
	ChunkExpandRatio   float64  `yaml:"chunk_expand_ratio"`
	ChunkRetentionTime Duration `yaml:"chunk_retention_time"`
}

// RetryConfig configures package sender's RetryConfig.
type RetryConfig struct {
	BaseInterval  Duration `yaml:"base_interval"`
	MaxInterval   Duration `yaml:"max_interval"`
	MaxRetryCount int      `yaml:"max_retry_count"`
}

// DetectorConfig configures package detector's Config.
type DetectorConfig struct {
	Threshold       float64  `yaml:"threshold"`
	FailureInterval Duration `yaml:"failure_interval"`
	MaxSampleWindow int      `yaml:"max_sample_window"`
	MinStdDeviation Duration `yaml:"min_std_deviation"`
}

// FlusherConfig configures the periodic flusher's scheduling.
type FlusherConfig struct {
	FlushInterval          Duration `yaml:"flush_interval"`
	WaitUntilBufferFlushed Duration `yaml:"wait_until_buffer_flushed"`
	WaitUntilTerminated    Duration `yaml:"wait_until_terminated"`
}

// SpillConfig selects and configures a spill backend.
type SpillConfig struct {
	Backend string `yaml:"backend"` // "", "file", or "s3"

	Dir    string `yaml:"dir"`
	Prefix string `yaml:"prefix"`

	Bucket      string `yaml:"bucket"`
	S3Prefix    string `yaml:"s3_prefix"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AlertConfig selects and configures an alert adapter.
type AlertConfig struct {
	Type    string            `yaml:"type"` // "", "redis", or "webhook"
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries int               `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
