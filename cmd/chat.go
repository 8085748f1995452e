package cmd

import (
	"context"
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/Rendezvous/internal/chat"
	"github.com/BioHazard786/Rendezvous/internal/client"
	"github.com/BioHazard786/Rendezvous/internal/config"
	"github.com/BioHazard786/Rendezvous/internal/logging"
	"github.com/BioHazard786/Rendezvous/internal/netutil"
	"github.com/BioHazard786/Rendezvous/internal/p2p"
	"github.com/BioHazard786/Rendezvous/internal/ui"
)

var (
	flagServer    string
	flagInterests []string
	flagSTUN      string
	flagTURN      string
	flagTURNUser  string
	flagTURNPass  string
	flagRelay     bool
	flagNoDirect  bool
)

var chatCmd = &cobra.Command{
	Use:     "chat",
	Aliases: []string{"c"},
	Short:   "Meet a random stranger and chat",
	Long: `Connect to a rendezvous server, wait for a partner and chat.

Inside the chat:
  /next   leave this stranger and find another
  /stop   leave and stay idle
  /find   look for a partner again
  /quit   exit

Examples:
  rendezvous chat
  rendezvous chat --interest music --interest go
  rendezvous chat --server https://chat.example.com --relay`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Keep logs below the TUI's notice unless asked for.
		logging.Init(slog.LevelError)
		return runChat(cmd.Context())
	},
}

func loadClientConfig() (*config.Client, error) {
	cfg, err := config.LoadClient(config.ClientOptions{
		Server:     flagServer,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
		ForceRelay: flagRelay,
	})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}
	return cfg, nil
}

func runChat(ctx context.Context) error {
	cfg, err := loadClientConfig()
	if err != nil {
		return err
	}

	sp := ui.NewConnectionSpinner("Connecting to " + cfg.ServerURL + "...")
	sp.Start()
	conn, err := client.Dial(ctx, cfg.WebSocketURL)
	if err != nil {
		sp.Error("Could not reach " + cfg.ServerURL)
		return err
	}
	sp.Success("Connected to " + cfg.ServerURL)
	defer conn.Close()

	var peers chat.PeerFactory
	if flagNoDirect {
		ui.PrintInfof("Direct chat disabled, messages go through %s", cfg.ServerURL)
	} else {
		if cfg.GetTURNServers() == nil && netutil.ShouldForceRelay() {
			ui.PrintWarning("VPN detected and no TURN server set, chat may stay on the server relay")
		}
		peers = chat.NewPeerFactory(p2p.OptionsFrom(cfg))
	}

	handler := client.NewHandler(conn)
	ref := &programRef{}
	session := chat.NewSession(ctx, conn, ref, peers, flagInterests)
	program := tea.NewProgram(ui.NewChatModel(session))
	ref.program = program

	go handler.Run(ctx)
	go session.Run(handler.Events())
	go func() {
		select {
		case <-ctx.Done():
			session.Quit()
			program.Quit()
		case <-session.Done():
		}
	}()

	_, err = program.Run()
	session.Quit()
	if err != nil {
		return fmt.Errorf("chat UI: %w", err)
	}
	return nil
}

// programRef lets the session be built before the program that displays it.
type programRef struct {
	program *tea.Program
}

func (r *programRef) Send(msg tea.Msg) {
	r.program.Send(msg)
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVarP(&flagServer, "server", "S", "", "Server URL (env RENDEZVOUS_SERVER)")
	chatCmd.Flags().StringArrayVarP(&flagInterests, "interest", "i", nil, "Interest to share with the server (repeatable)")
	chatCmd.Flags().StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN server")
	chatCmd.Flags().StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	chatCmd.Flags().StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username")
	chatCmd.Flags().StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password")
	chatCmd.Flags().BoolVarP(&flagRelay, "relay", "r", false, "Force relay mode")
	chatCmd.Flags().BoolVar(&flagNoDirect, "no-direct", false, "Keep all chat on the server relay")
}
