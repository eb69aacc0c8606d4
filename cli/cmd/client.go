package cmd

import (
	"context"

	"github.com/kaidoh/fluentforward/forwarder"
)

// emitCloser is the subset of forwarder.Client the demo emitter needs.
type emitCloser interface {
	Emit(ctx context.Context, tag string, record map[string]any) error
}

// statser is the subset of forwarder.Client the stats HTTP handler needs.
type statser interface {
	Stats() forwarder.Stats
}

func newClient(cfg forwarder.Config) (*forwarder.Client, error) {
	return forwarder.New(cfg)
}
