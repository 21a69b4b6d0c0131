// Package natspublisher publishes device events as core NATS messages on the
// subject <exchange>.<routing key>.
package natspublisher

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/illmade-knight/pi-broadcast/pkg/messaging"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const connectTimeout = 10 * time.Second

// conn is the subset of *nats.Conn the publisher uses.
type conn interface {
	Publish(subj string, data []byte) error
	Close()
}

// Publisher implements messaging.Publisher for NATS.
type Publisher struct {
	nc       conn
	exchange string
	closed   atomic.Bool
	logger   zerolog.Logger
}

// Open connects to the NATS server at endpoint.
func Open(ctx context.Context, endpoint, exchange string, logger zerolog.Logger) (*Publisher, error) {
	if err := ctx.Err(); err != nil {
		return nil, &messaging.ConnectionError{Endpoint: endpoint, Exchange: exchange, Err: err}
	}
	nc, err := nats.Connect(endpoint,
		nats.Name("pi-broadcast"),
		nats.Timeout(connectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Error().Err(err).Msg("NATS disconnected")
			}
		}),
	)
	if err != nil {
		return nil, &messaging.ConnectionError{Endpoint: endpoint, Exchange: exchange, Err: fmt.Errorf("nats connect: %w", err)}
	}

	logger.Info().Str("url", messaging.RedactEndpoint(endpoint)).Str("exchange", exchange).Msg("NATS publisher connected")
	return newPublisher(nc, exchange, logger), nil
}

func newPublisher(nc conn, exchange string, logger zerolog.Logger) *Publisher {
	return &Publisher{
		nc:       nc,
		exchange: exchange,
		logger:   logger.With().Str("component", "NATSPublisher").Str("exchange", exchange).Logger(),
	}
}

// Subject returns the subject a routing key is published on.
func (p *Publisher) Subject(routingKey string) string {
	if p.exchange == "" {
		return routingKey
	}
	return p.exchange + "." + routingKey
}

// Send publishes message on the routing key's subject.
func (p *Publisher) Send(ctx context.Context, routingKey string, message []byte) error {
	if p.closed.Load() {
		return &messaging.PublishError{Exchange: p.exchange, RoutingKey: routingKey, Err: messaging.ErrPublisherClosed}
	}
	if err := ctx.Err(); err != nil {
		return &messaging.PublishError{Exchange: p.exchange, RoutingKey: routingKey, Err: err}
	}
	subject := p.Subject(routingKey)
	if err := p.nc.Publish(subject, message); err != nil {
		return &messaging.PublishError{Exchange: p.exchange, RoutingKey: routingKey, Err: fmt.Errorf("nats publish %s: %w", subject, err)}
	}
	p.logger.Debug().Str("subject", subject).Msg("Message published")
	return nil
}

// Close shuts down the NATS connection.
func (p *Publisher) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.nc.Close()
	return nil
}
