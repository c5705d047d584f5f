package main

import (
	"time"

	"github.com/dkeye/Live/internal/adapters/rtc"
	"github.com/dkeye/Live/internal/probe"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var flagInterval time.Duration

var broadcastCmd = &cobra.Command{
	Use:     "broadcast",
	Aliases: []string{"b"},
	Short:   "Publish a synthetic VP8 stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, err := probe.Dial(ctx, flagServer)
		if err != nil {
			return err
		}
		defer client.Close()

		b := probe.NewBroadcaster(client, probe.BroadcasterOptions{
			StreamID: flagStream,
			WebRTC:   rtc.DefaultWebRTCConfig(flagSTUN...),
			Interval: flagInterval,
		})
		log.Info().Str("stream", flagStream).Str("server", flagServer).Msg("broadcasting")
		err = b.Run(ctx)
		log.Info().Int("viewers", b.Viewers()).Msg("broadcast stopped")
		return err
	},
}

func init() {
	broadcastCmd.Flags().DurationVar(&flagInterval, "interval", 33*time.Millisecond, "time between RTP packets")
}
