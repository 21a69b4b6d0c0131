package cmd

import (
	"fmt"

	"github.com/illmade-knight/pi-broadcast/pkg/pinevents"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newSendCmd(o *options) *cobra.Command {
	var devices []string

	sendCmd := &cobra.Command{
		Use:   "send STATE",
		Short: "Broadcast one pin state (ON/OFF) for each device.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := pinevents.ParseState(args[0])
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				devices = o.cfg.DeviceKeys()
			}
			devices = dedupe(devices)
			if err := o.cfg.Validate(len(devices) == 0); err != nil {
				return err
			}

			ctx := cmd.Context()
			broadcasters, err := o.dialAll(ctx, devices)
			if err != nil {
				return err
			}
			defer closeAll(broadcasters)

			var g errgroup.Group
			for _, key := range devices {
				h := pinevents.NewHandler(broadcasters[key], log.Logger)
				g.Go(func() error {
					return h.OnStateChange(ctx, state)
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "broadcast %s to %d device(s)\n", state, len(devices))
			return nil
		},
	}
	sendCmd.Flags().StringSliceVarP(&devices, "device", "d", nil, "Device key to broadcast for (repeatable); defaults to the configured devices")
	return sendCmd
}

func dedupe(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := keys[:0:0]
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
