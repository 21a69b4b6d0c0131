// Package broadcast publishes device events onto a message exchange, routed by
// the key of the device that raised them.
package broadcast

import (
	"context"
	"errors"

	"github.com/illmade-knight/pi-broadcast/pkg/messaging"
	"github.com/rs/zerolog"
)

// Broadcaster is the capability event handlers compose to send device events.
type Broadcaster interface {
	Broadcast(ctx context.Context, message []byte) error
}

// EventBroadcaster sends every message through one publisher using a fixed
// device key as the routing key.
type EventBroadcaster struct {
	publisher messaging.Publisher
	deviceKey string
	owned     bool
	logger    zerolog.Logger
}

var _ Broadcaster = (*EventBroadcaster)(nil)

// New creates an EventBroadcaster over an already opened publisher.
// The broadcaster does not close an injected publisher.
func New(publisher messaging.Publisher, deviceKey string, logger zerolog.Logger) (*EventBroadcaster, error) {
	if publisher == nil {
		return nil, errors.New("publisher cannot be nil for broadcaster")
	}
	return &EventBroadcaster{
		publisher: publisher,
		deviceKey: deviceKey,
		logger:    logger.With().Str("component", "EventBroadcaster").Str("device_key", deviceKey).Logger(),
	}, nil
}

// Dial opens a publisher bound to endpoint/exchange with opener and returns a
// broadcaster that owns it. Errors from opener are returned as is.
func Dial(ctx context.Context, opener messaging.Opener, endpoint, exchange, deviceKey string, logger zerolog.Logger) (*EventBroadcaster, error) {
	if opener == nil {
		return nil, errors.New("opener cannot be nil for broadcaster")
	}
	publisher, err := opener(ctx, endpoint, exchange, logger)
	if err != nil {
		return nil, err
	}
	b, err := New(publisher, deviceKey, logger)
	if err != nil {
		return nil, err
	}
	b.owned = true
	return b, nil
}

// DeviceKey returns the routing key used for every broadcast.
func (b *EventBroadcaster) DeviceKey() string {
	return b.deviceKey
}

// Broadcast sends message once, keyed by the device key. Publisher errors are
// returned unchanged.
func (b *EventBroadcaster) Broadcast(ctx context.Context, message []byte) error {
	if err := b.publisher.Send(ctx, b.deviceKey, message); err != nil {
		return err
	}
	b.logger.Debug().Int("bytes", len(message)).Msg("Event broadcast.")
	return nil
}

// Close releases the publisher if this broadcaster opened it through Dial.
func (b *EventBroadcaster) Close() error {
	if !b.owned {
		return nil
	}
	return b.publisher.Close()
}
