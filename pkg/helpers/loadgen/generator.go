// Package loadgen simulates pins toggling so a broker setup can be exercised
// without hardware.
package loadgen

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/illmade-knight/pi-broadcast/pkg/pinevents"
	"github.com/rs/zerolog"
)

// StateHandler receives simulated pin transitions. *pinevents.Handler implements it.
type StateHandler interface {
	OnStateChange(ctx context.Context, state pinevents.PinState) error
}

// Device represents a single simulated pin.
type Device struct {
	Key     string
	RateHz  float64
	Handler StateHandler
}

// Stats counts the transitions reported during a run.
type Stats struct {
	Sent   int64
	Failed int64
}

// LoadGenerator toggles every device at its own rate.
type LoadGenerator struct {
	devices []*Device
	logger  zerolog.Logger
}

// NewLoadGenerator creates a new LoadGenerator.
func NewLoadGenerator(devices []*Device, logger zerolog.Logger) *LoadGenerator {
	return &LoadGenerator{
		devices: devices,
		logger:  logger.With().Str("component", "LoadGenerator").Logger(),
	}
}

// Run starts a goroutine per device and returns when duration elapses or ctx
// is cancelled. Failed transitions are logged and counted; the device keeps going.
func (lg *LoadGenerator) Run(ctx context.Context, duration time.Duration) Stats {
	lg.logger.Info().Int("num_devices", len(lg.devices)).Dur("duration", duration).Msg("Starting load generator")

	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	var stats Stats
	var wg sync.WaitGroup
	for _, device := range lg.devices {
		wg.Add(1)
		go func(d *Device) {
			defer wg.Done()
			lg.runDevice(ctx, d, &stats)
		}(device)
	}

	wg.Wait()
	lg.logger.Info().Int64("sent", stats.Sent).Int64("failed", stats.Failed).Msg("Load generator finished")
	return stats
}

// TickInterval converts a rate in Hz to a ticker interval. It reports false
// when the rate is not finite and positive or the interval falls outside
// (0, math.MaxInt64] nanoseconds.
func TickInterval(rateHz float64) (time.Duration, bool) {
	if math.IsNaN(rateHz) || math.IsInf(rateHz, 0) || rateHz <= 0 {
		return 0, false
	}
	ns := float64(time.Second) / rateHz
	// float64(math.MaxInt64) rounds up to 2^63, which does not fit.
	if ns < 1 || ns >= float64(math.MaxInt64) {
		return 0, false
	}
	return time.Duration(ns), true
}

// runDevice toggles one device until ctx ends. The first transition is to High.
func (lg *LoadGenerator) runDevice(ctx context.Context, device *Device, stats *Stats) {
	if device.RateHz <= 0 {
		lg.logger.Warn().Str("device_key", device.Key).Msg("Device has a rate of 0, no events will be sent")
		return
	}

	interval, ok := TickInterval(device.RateHz)
	if !ok {
		lg.logger.Warn().Str("device_key", device.Key).Float64("rate_hz", device.RateHz).Msg("Device rate gives no usable tick interval, no events will be sent")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lg.logger.Info().Str("device_key", device.Key).Float64("rate_hz", device.RateHz).Dur("interval", interval).Msg("Device starting")

	state := pinevents.Low
	for {
		select {
		case <-ctx.Done():
			lg.logger.Info().Str("device_key", device.Key).Msg("Device stopping")
			return
		case <-ticker.C:
			state = !state
			if err := device.Handler.OnStateChange(ctx, state); err != nil {
				atomic.AddInt64(&stats.Failed, 1)
				lg.logger.Error().Err(err).Str("device_key", device.Key).Msg("Failed to broadcast pin event")
				continue
			}
			atomic.AddInt64(&stats.Sent, 1)
		}
	}
}
