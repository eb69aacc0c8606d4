package cmd

import (
	"testing"

	"github.com/kaidoh/fluentforward/cli/config"
)

func TestBuildForwarderConfig_Minimal(t *testing.T) {
	cfg := &config.Config{
		Endpoints: []config.EndpointConfig{{Addr: "127.0.0.1:24224"}},
	}

	fcfg, err := buildForwarderConfig(cfg)
	if err != nil {
		t.Fatalf("buildForwarderConfig: %v", err)
	}
	if len(fcfg.Endpoints) != 1 || fcfg.Endpoints[0].Addr != "127.0.0.1:24224" {
		t.Fatalf("unexpected endpoints: %+v", fcfg.Endpoints)
	}
	if fcfg.Spill != nil {
		t.Error("expected no spill store when backend is unset")
	}
	if fcfg.Alerts != nil {
		t.Error("expected no alert adapter when type is unset")
	}
	if fcfg.Logger == nil {
		t.Error("expected a logger to always be constructed")
	}
}

func TestBuildSpillStore_UnknownBackend(t *testing.T) {
	_, err := buildSpillStore(config.SpillConfig{Backend: "bogus"}, nil)
	if err == nil {
		t.Fatal("expected an error for an unknown spill backend")
	}
}

func TestBuildSpillStore_File(t *testing.T) {
	dir := t.TempDir()
	store, err := buildSpillStore(config.SpillConfig{Backend: "file", Dir: dir}, nil)
	if err != nil {
		t.Fatalf("buildSpillStore: %v", err)
	}
	if store == nil {
		t.Fatal("expected a non-nil file store")
	}
}

func TestBuildAlertAdapter_UnknownType(t *testing.T) {
	_, err := buildAlertAdapter(config.AlertConfig{Type: "bogus"})
	if err == nil {
		t.Fatal("expected an error for an unknown alert type")
	}
}

func TestBuildAlertAdapter_Webhook(t *testing.T) {
	adapter, err := buildAlertAdapter(config.AlertConfig{Type: "webhook", URL: "https://example.com/hook"})
	if err != nil {
		t.Fatalf("buildAlertAdapter: %v", err)
	}
	if adapter == nil {
		t.Fatal("expected a non-nil webhook adapter")
	}
}
