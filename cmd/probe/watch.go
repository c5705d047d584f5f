package main

import (
	"time"

	"github.com/dkeye/Live/internal/adapters/rtc"
	"github.com/dkeye/Live/internal/probe"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	flagUser   string
	flagSay    string
	flagReport time.Duration
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w"},
	Short:   "Join a stream and count received media",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		user := flagUser
		if user == "" {
			user = "probe-" + uuid.NewString()[:8]
		}
		client, err := probe.Dial(ctx, flagServer)
		if err != nil {
			return err
		}
		defer client.Close()

		v := probe.NewViewer(client, probe.ViewerOptions{
			StreamID:    flagStream,
			UserID:      user,
			WebRTC:      rtc.DefaultWebRTCConfig(flagSTUN...),
			Say:         flagSay,
			ReportEvery: flagReport,
		})
		log.Info().Str("stream", flagStream).Str("user", user).Msg("watching")
		err = v.Run(ctx)
		log.Info().Uint64("packets", v.Packets()).Msg("watch stopped")
		return err
	},
}

func init() {
	watchCmd.Flags().StringVar(&flagUser, "user", "", "user id, random if empty")
	watchCmd.Flags().StringVar(&flagSay, "say", "", "chat message to send after joining")
	watchCmd.Flags().DurationVar(&flagReport, "report", 5*time.Second, "packet report period, 0 disables")
}
