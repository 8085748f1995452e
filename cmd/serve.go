package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Rendezvous/internal/config"
	"github.com/BioHazard786/Rendezvous/internal/logging"
	"github.com/BioHazard786/Rendezvous/internal/matching"
	"github.com/BioHazard786/Rendezvous/internal/metrics"
	"github.com/BioHazard786/Rendezvous/internal/server"
	"github.com/BioHazard786/Rendezvous/internal/signaling"
	"github.com/BioHazard786/Rendezvous/internal/ui"
)

var (
	flagAddr         string
	flagMatchDelay   time.Duration
	flagRematchDelay time.Duration
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the rendezvous server",
	Long: `Run the matchmaking and signaling server.

Examples:
  rendezvous serve
  rendezvous serve --addr :9000 --match-delay 2s`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(slog.LevelInfo)
		return serve(cmd.Context())
	},
}

func serve(ctx context.Context) error {
	cfg, err := config.LoadServer(config.ServerOptions{
		Addr:         flagAddr,
		MatchDelay:   flagMatchDelay,
		RematchDelay: flagRematchDelay,
	})
	if err != nil {
		return err
	}

	m := metrics.New(cfg.MetricsNamespace)

	// 1. Create the Hub
	hub := signaling.NewHub(matching.Options{
		MatchDelay:   cfg.MatchDelay,
		RematchDelay: cfg.RematchDelay,
	}, m)

	// 2. Run the Hub in a separate goroutine
	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		hub.Run(hubCtx)
		close(hubDone)
	}()

	// 3. Register our handlers
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.NewRouter(cfg, hub, m),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 4. Start the server
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		stopHub()
		<-hubDone
		return fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}
	ui.PrintSuccess("Rendezvous server listening on " + ln.Addr().String())
	ui.PrintInfof("Match delay %s, rematch delay %s", cfg.MatchDelay, cfg.RematchDelay)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting rendezvous server",
			"addr", ln.Addr().String(),
			"match_delay", cfg.MatchDelay,
			"rematch_delay", cfg.RematchDelay,
		)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		err = srv.Shutdown(shutdownCtx)
		cancel()
	}

	stopHub()
	<-hubDone

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&flagAddr, "addr", "a", "", "Listen address (default :8080, env ADDR or PORT)")
	serveCmd.Flags().DurationVar(&flagMatchDelay, "match-delay", 0, "Delay before a match attempt (default 1s, env MATCH_DELAY)")
	serveCmd.Flags().DurationVar(&flagRematchDelay, "rematch-delay", 0, "Delay before re-queueing after next partner (default 500ms, env REMATCH_DELAY)")
}
