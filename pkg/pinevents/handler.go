// Package pinevents turns GPIO pin transitions into device broadcasts.
package pinevents

import (
	"context"
	"fmt"
	"strings"

	"github.com/illmade-knight/pi-broadcast/pkg/broadcast"
	"github.com/rs/zerolog"
)

// PinState is the logical level of a pin.
type PinState bool

const (
	Low  PinState = false
	High PinState = true
)

// String returns the message broadcast for the state: "ON" or "OFF".
func (s PinState) String() string {
	if s == High {
		return "ON"
	}
	return "OFF"
}

// ParseState accepts on/off, high/low and 1/0 in any case.
func ParseState(s string) (PinState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "high", "1":
		return High, nil
	case "off", "low", "0":
		return Low, nil
	}
	return Low, fmt.Errorf("invalid pin state %q", s)
}

// Handler reports pin events for one device through a Broadcaster.
type Handler struct {
	broadcaster broadcast.Broadcaster
	logger      zerolog.Logger
}

// NewHandler creates a Handler that sends through b.
func NewHandler(b broadcast.Broadcaster, logger zerolog.Logger) *Handler {
	return &Handler{
		broadcaster: b,
		logger:      logger.With().Str("component", "PinEventHandler").Logger(),
	}
}

// OnHigh handles a rising edge.
func (h *Handler) OnHigh(ctx context.Context) error {
	return h.OnStateChange(ctx, High)
}

// OnLow handles a falling edge.
func (h *Handler) OnLow(ctx context.Context) error {
	return h.OnStateChange(ctx, Low)
}

// OnStateChange broadcasts the new state. Broadcast errors are returned unchanged.
func (h *Handler) OnStateChange(ctx context.Context, state PinState) error {
	h.logger.Debug().Stringer("state", state).Msg("Pin state changed")
	return h.broadcaster.Broadcast(ctx, []byte(state.String()))
}
