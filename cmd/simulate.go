package cmd

import (
	"fmt"
	"time"

	"github.com/illmade-knight/pi-broadcast/pkg/helpers/loadgen"
	"github.com/illmade-knight/pi-broadcast/pkg/pinevents"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newSimulateCmd(o *options) *cobra.Command {
	var duration time.Duration

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Toggle the configured devices at their rate_hz for a while.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.cfg.Validate(true); err != nil {
				return err
			}

			broadcasters, err := o.dialAll(cmd.Context(), o.cfg.DeviceKeys())
			if err != nil {
				return err
			}
			defer closeAll(broadcasters)

			devices := make([]*loadgen.Device, 0, len(o.cfg.Devices))
			for _, d := range o.cfg.Devices {
				devices = append(devices, &loadgen.Device{
					Key:     d.Key,
					RateHz:  d.RateHz,
					Handler: pinevents.NewHandler(broadcasters[d.Key], log.Logger),
				})
			}

			stats := loadgen.NewLoadGenerator(devices, log.Logger).Run(cmd.Context(), duration)
			fmt.Fprintf(cmd.OutOrStdout(), "sent %d, failed %d\n", stats.Sent, stats.Failed)
			return nil
		},
	}
	simulateCmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "How long to run the simulation")
	return simulateCmd
}
