package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/illmade-knight/pi-broadcast/pkg/broadcast"
	"github.com/illmade-knight/pi-broadcast/pkg/config"
	"github.com/illmade-knight/pi-broadcast/pkg/messaging"
	"github.com/illmade-knight/pi-broadcast/pkg/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// options carries the persistent flags and the loaded configuration to subcommands.
type options struct {
	cfgFile  string
	logLevel string
	endpoint string
	exchange string

	opener messaging.Opener
	cfg    *config.Config
}

// NewRootCmd builds the pibroadcast command tree. opener is used to open every
// broker connection; production code passes transport.Open.
func NewRootCmd(opener messaging.Opener) *cobra.Command {
	o := &options{opener: opener}

	rootCmd := &cobra.Command{
		Use:   "pibroadcast",
		Short: "Broadcast Raspberry Pi pin events onto a message exchange.",
		Long: `pibroadcast publishes pin state changes to a broker exchange, one routing
key per device.

Supported endpoints: ` + joinSchemes(transport.DefaultRegistry().Schemes()),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
			consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
			log.Logger = zerolog.New(consoleWriter).With().Timestamp().Logger()

			cfg, err := config.Load(o.cfgFile)
			if err != nil {
				return err
			}
			if o.endpoint != "" {
				cfg.Broker.Endpoint = o.endpoint
			}
			if o.exchange != "" {
				cfg.Broker.Exchange = o.exchange
			}
			if o.logLevel != "" {
				cfg.LogLevel = o.logLevel
			}
			o.cfg = cfg

			level, err := zerolog.ParseLevel(cfg.LogLevel)
			if err != nil {
				log.Warn().Str("provided_level", cfg.LogLevel).Msg("Invalid log level provided. Defaulting to 'info'.")
				level = zerolog.InfoLevel
			}
			zerolog.SetGlobalLevel(level)
			log.Debug().Msg("Logger initialized.")
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&o.cfgFile, "config", "c", "", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&o.endpoint, "endpoint", "", "Broker endpoint URL, overrides the configuration")
	rootCmd.PersistentFlags().StringVar(&o.exchange, "exchange", "", "Exchange name, overrides the configuration")

	rootCmd.AddCommand(newSendCmd(o), newPipeCmd(o), newSimulateCmd(o))
	return rootCmd
}

// Execute runs the command tree against the real broker clients.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd(transport.Open).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func joinSchemes(schemes []string) string {
	return strings.Join(schemes, "://, ") + "://"
}

// dialAll opens one broadcaster per device key concurrently. If any dial fails
// the broadcasters already opened are closed.
func (o *options) dialAll(ctx context.Context, keys []string) (map[string]*broadcast.EventBroadcaster, error) {
	var (
		mu  sync.Mutex
		g   errgroup.Group
		out = make(map[string]*broadcast.EventBroadcaster, len(keys))
	)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			b, err := broadcast.Dial(ctx, o.opener, o.cfg.Broker.Endpoint, o.cfg.Broker.Exchange, key, log.Logger)
			if err != nil {
				return err
			}
			mu.Lock()
			out[key] = b
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		closeAll(out)
		return nil, err
	}
	return out, nil
}

func closeAll(broadcasters map[string]*broadcast.EventBroadcaster) {
	var errs []error
	for _, b := range broadcasters {
		errs = append(errs, b.Close())
	}
	if err := errors.Join(errs...); err != nil {
		log.Warn().Err(err).Msg("Error closing broadcasters")
	}
}
