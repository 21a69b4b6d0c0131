package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/illmade-knight/pi-broadcast/pkg/pinevents"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newPipeCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "pipe",
		Short: "Read 'DEVICE STATE' lines from stdin and broadcast each one.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.cfg.Validate(true); err != nil {
				return err
			}

			ctx := cmd.Context()
			broadcasters, err := o.dialAll(ctx, o.cfg.DeviceKeys())
			if err != nil {
				return err
			}
			defer closeAll(broadcasters)

			handlers := make(map[string]*pinevents.Handler, len(broadcasters))
			for key, b := range broadcasters {
				handlers[key] = pinevents.NewHandler(b, log.Logger.With().Str("device_key", key).Logger())
			}

			var sent, failed int
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for lineNo := 1; scanner.Scan(); lineNo++ {
				fields := strings.Fields(scanner.Text())
				if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
					continue
				}
				if len(fields) != 2 {
					log.Warn().Int("line", lineNo).Msg("Expected 'DEVICE STATE', line skipped")
					failed++
					continue
				}
				h, ok := handlers[fields[0]]
				if !ok {
					log.Warn().Int("line", lineNo).Str("device_key", fields[0]).Msg("Unknown device, line skipped")
					failed++
					continue
				}
				state, err := pinevents.ParseState(fields[1])
				if err != nil {
					log.Warn().Int("line", lineNo).Err(err).Msg("Line skipped")
					failed++
					continue
				}
				if err := h.OnStateChange(ctx, state); err != nil {
					log.Error().Err(err).Int("line", lineNo).Str("device_key", fields[0]).Msg("Broadcast failed")
					failed++
					continue
				}
				sent++
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "sent %d, failed %d\n", sent, failed)
			if failed > 0 {
				return fmt.Errorf("%d event(s) were not broadcast", failed)
			}
			return nil
		},
	}
}
