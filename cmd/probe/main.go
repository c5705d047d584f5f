package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	flagServer  string
	flagSTUN    []string
	flagStream  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "live-probe",
	Short: "Broadcast or watch a stream through a Live relay",
	Long: `live-probe speaks the relay's signaling protocol and exchanges real
WebRTC media, so a relay can be checked end to end without a browser.

Examples:
  live-probe broadcast --stream demo
  live-probe watch --stream demo --user alice --say "hello"`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagVerbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "ws://localhost:8080/api/ws/signal", "relay signaling endpoint")
	rootCmd.PersistentFlags().StringSliceVar(&flagSTUN, "stun", nil, "STUN server URLs")
	rootCmd.PersistentFlags().StringVar(&flagStream, "stream", "", "stream id")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	_ = rootCmd.MarkPersistentFlagRequired("stream")

	rootCmd.AddCommand(broadcastCmd, watchCmd)
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
