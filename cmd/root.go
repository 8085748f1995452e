package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Rendezvous/internal/ui"
	"github.com/BioHazard786/Rendezvous/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rendezvous",
	Short: "Random one-to-one chat with strangers, over WebRTC",
	Long: `Rendezvous pairs strangers for one-to-one chat. The server keeps a
first-come first-served waiting pool, introduces two clients to each other and
relays their WebRTC signaling. Once paired, clients talk over a direct data
channel when the network allows and through the server otherwise.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}
