package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Rendezvous/internal/config"
	"github.com/BioHazard786/Rendezvous/internal/logging"
	"github.com/BioHazard786/Rendezvous/internal/matching"
	"github.com/BioHazard786/Rendezvous/internal/ui"
)

var flagStatsServer string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show how many people are online, waiting and chatting",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(slog.LevelError)

		cfg, err := config.LoadClient(config.ClientOptions{Server: flagStatsServer})
		if err != nil {
			return err
		}

		sp := ui.NewSimpleSpinner("Fetching stats from " + cfg.ServerURL + "...")
		sp.Start()
		stats, err := fetchStats(cmd.Context(), cfg.StatsURL)
		sp.Stop()
		if err != nil {
			return err
		}

		ui.RenderStats(os.Stdout, ui.ServerStats{
			Server:    cfg.ServerURL,
			Connected: stats.Connected,
			Waiting:   stats.Waiting,
			Paired:    stats.Paired,
			Matches:   stats.Matches,
		})
		return nil
	},
}

func fetchStats(ctx context.Context, url string) (*matching.Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch stats: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch stats: server returned %s", resp.Status)
	}

	var s matching.Stats
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	return &s, nil
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().StringVarP(&flagStatsServer, "server", "S", "", "Server URL (env RENDEZVOUS_SERVER)")
}
