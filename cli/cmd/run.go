package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/kaidoh/fluentforward/cli/config"
)

// Exit codes.
const (
	exitSuccess      = 0
	exitConfigError  = 1
	exitRuntimeError = 2
)

// RunCommand returns the run command: it builds a full forwarder stack
// from a YAML config file, exposes a stats endpoint, emits a synthetic
// heartbeat record on an interval for smoke-testing, and blocks until
// SIGINT/SIGTERM.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Start a forwarder and block until signaled",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Path to fluentforward.yaml", Required: true},
			&cli.StringFlag{Name: "listen", Usage: "Address the stats HTTP endpoint listens on", Value: "127.0.0.1:24220"},
			&cli.StringFlag{Name: "demo-tag", Usage: "Tag used for the synthetic smoke-test emitter", Value: "fluentforward.heartbeat"},
			&cli.DurationFlag{Name: "demo-interval", Usage: "Interval between synthetic emits (0 disables)", Value: 30 * time.Second},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to load config: %v", err), exitConfigError)
	}

	fcfg, err := buildForwarderConfig(cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to build forwarder: %v", err), exitConfigError)
	}

	client, err := newClient(fcfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to start forwarder: %v", err), exitRuntimeError)
	}

	srv := startStatsServer(c.String("listen"), client)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stopDemo := make(chan struct{})
	if interval := c.Duration("demo-interval"); interval > 0 {
		go runDemoEmitter(ctx, client, c.String("demo-tag"), interval, stopDemo)
	} else {
		close(stopDemo)
	}

	<-ctx.Done()
	<-stopDemo

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	if err := client.Close(shutdownCtx); err != nil {
		return cli.Exit(fmt.Sprintf("error during shutdown: %v", err), exitRuntimeError)
	}
	return nil
}

func runDemoEmitter(ctx context.Context, client emitCloser, tag string, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = client.Emit(ctx, tag, map[string]any{"status": "alive"})
		}
	}
}

func startStatsServer(addr string, client statser) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(client.Stats())
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "stats server error: %v\n", err)
		}
	}()
	return srv
}
