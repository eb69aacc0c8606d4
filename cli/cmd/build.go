package cmd

import (
	"context"
	"fmt"

	"github.com/kaidoh/fluentforward/alert"
	"github.com/kaidoh/fluentforward/buffer"
	"github.com/kaidoh/fluentforward/cli/config"
	"github.com/kaidoh/fluentforward/detector"
	"github.com/kaidoh/fluentforward/forwarder"
	"github.com/kaidoh/fluentforward/log"
	"github.com/kaidoh/fluentforward/metrics"
	"github.com/kaidoh/fluentforward/sender"
	"github.com/kaidoh/fluentforward/spill"
)

// buildForwarderConfig translates a loaded YAML config into the
// forwarder.Config that forwarder.New consumes, constructing whichever
// spill store and alert adapter the config selects.
func buildForwarderConfig(cfg *config.Config) (forwarder.Config, error) {
	logger := log.NewLogger(map[string]any{"component": "fluentforward"})
	coll := metrics.NewCollector("")

	detCfg := detector.Config{
		Threshold:       cfg.Detector.Threshold,
		FailureInterval: cfg.Detector.FailureInterval.Duration,
		MaxSampleWindow: cfg.Detector.MaxSampleWindow,
		MinStdDeviation: cfg.Detector.MinStdDeviation.Duration,
	}

	endpoints := make([]forwarder.EndpointConfig, len(cfg.Endpoints))
	for i, ep := range cfg.Endpoints {
		endpoints[i] = forwarder.EndpointConfig{
			Addr:              ep.Addr,
			AckMode:           ep.AckMode,
			DialTimeout:       ep.DialTimeout.Duration,
			WriteTimeout:      ep.WriteTimeout.Duration,
			ReadTimeout:       ep.ReadTimeout.Duration,
			HeartbeatNetwork:  ep.HeartbeatNetwork,
			HeartbeatInterval: ep.HeartbeatInterval.Duration,
			Detector:          detCfg,
		}
	}

	spillStore, err := buildSpillStore(cfg.Spill, logger)
	if err != nil {
		return forwarder.Config{}, fmt.Errorf("build spill store: %w", err)
	}

	alertAdapter, err := buildAlertAdapter(cfg.Alert)
	if err != nil {
		return forwarder.Config{}, fmt.Errorf("build alert adapter: %w", err)
	}

	return forwarder.Config{
		Endpoints: endpoints,
		Buffer: buffer.Config{
			MaxBufferSize:      cfg.Buffer.MaxBufferSize,
			ChunkInitialSize:   cfg.Buffer.ChunkInitialSize,
			ChunkRetentionSize: cfg.Buffer.ChunkRetentionSize,
			ChunkExpandRatio:   cfg.Buffer.ChunkExpandRatio,
			ChunkRetentionTime: cfg.Buffer.ChunkRetentionTime.Duration,
		},
		Retry: sender.RetryConfig{
			BaseInterval:  cfg.Retry.BaseInterval.Duration,
			MaxInterval:   cfg.Retry.MaxInterval.Duration,
			MaxRetryCount: cfg.Retry.MaxRetryCount,
		},
		FlushInterval:          cfg.Flusher.FlushInterval.Duration,
		WaitUntilBufferFlushed: cfg.Flusher.WaitUntilBufferFlushed.Duration,
		WaitUntilTerminated:    cfg.Flusher.WaitUntilTerminated.Duration,
		Spill:                  spillStore,
		Alerts:                 alertAdapter,
		Logger:                 logger,
		Metrics:                coll,
	}, nil
}

func buildSpillStore(cfg config.SpillConfig, logger *log.Logger) (spill.Store, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "file":
		return spill.NewFile(spill.FileConfig{Dir: cfg.Dir, Prefix: cfg.Prefix, Logger: logger})
	case "s3":
		return spill.NewS3(context.Background(), spill.S3Config{
			Bucket:       cfg.Bucket,
			Prefix:       cfg.S3Prefix,
			Region:       cfg.Region,
			Endpoint:     cfg.Endpoint,
			UsePathStyle: cfg.S3PathStyle,
			Logger:       logger,
		})
	default:
		return nil, fmt.Errorf("unsupported spill backend: %q (must be file or s3)", cfg.Backend)
	}
}

func buildAlertAdapter(cfg config.AlertConfig) (alert.Adapter, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "redis":
		return alert.NewRedis(alert.RedisConfig{
			URL:     cfg.URL,
			Channel: cfg.Channel,
			Timeout: cfg.Timeout.Duration,
			Retries: cfg.Retries,
		})
	case "webhook":
		return alert.NewWebhook(alert.WebhookConfig{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Timeout: cfg.Timeout.Duration,
			Retries: cfg.Retries,
		})
	default:
		return nil, fmt.Errorf("unsupported alert type: %q (must be redis or webhook)", cfg.Type)
	}
}
