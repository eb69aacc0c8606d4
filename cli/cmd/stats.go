package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/kaidoh/fluentforward/cli/render"
	"github.com/kaidoh/fluentforward/forwarder"
)

// StatsCommand returns the stats command: it polls the /stats HTTP
// endpoint exposed by a running `fluentforward run` process and renders
// the resulting forwarder.Stats snapshot.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Poll a running forwarder's stats endpoint",
		Flags: append(TUIReadOnlyFlags(),
			&cli.StringFlag{Name: "endpoint", Usage: "Stats HTTP endpoint", Value: "http://127.0.0.1:24220/stats"},
			&cli.DurationFlag{Name: "timeout", Usage: "HTTP request timeout", Value: 5 * time.Second},
		),
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	stats, err := fetchStats(c.String("endpoint"), c.Duration("timeout"))
	if err != nil {
		return fmt.Errorf("failed to fetch stats: %w", err)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI("stats", stats)
	}
	return r.Render(stats)
}

func fetchStats(endpoint string, timeout time.Duration) (forwarder.Stats, error) {
	client := &http.Client{Timeout: timeout}

	resp, err := client.Get(endpoint)
	if err != nil {
		return forwarder.Stats{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return forwarder.Stats{}, fmt.Errorf("stats endpoint returned status %d", resp.StatusCode)
	}

	var stats forwarder.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return forwarder.Stats{}, fmt.Errorf("decode stats response: %w", err)
	}
	return stats, nil
}
