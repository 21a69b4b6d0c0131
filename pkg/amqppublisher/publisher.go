// Package amqppublisher publishes to a RabbitMQ exchange over AMQP 0-9-1.
package amqppublisher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/pi-broadcast/pkg/messaging"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const dialTimeout = 10 * time.Second

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher implements messaging.Publisher for an AMQP exchange. The exchange
// must already exist; the publisher does not declare topology.
type Publisher struct {
	conn     *amqp.Connection
	mu       sync.Mutex
	ch       channel
	exchange string
	closed   bool
	logger   zerolog.Logger
}

// Open dials the broker at endpoint and opens a channel for publishing to exchange.
func Open(ctx context.Context, endpoint, exchange string, logger zerolog.Logger) (*Publisher, error) {
	connErr := func(err error) error {
		return &messaging.ConnectionError{Endpoint: endpoint, Exchange: exchange, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, connErr(err)
	}

	conn, err := amqp.DialConfig(endpoint, amqp.Config{
		Dial:       amqp.DefaultDial(dialTimeout),
		Properties: amqp.Table{"connection_name": "pi-broadcast"},
	})
	if err != nil {
		return nil, connErr(fmt.Errorf("amqp dial: %w", err))
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, connErr(fmt.Errorf("amqp channel: %w", err))
	}

	logger.Info().Str("endpoint", messaging.RedactEndpoint(endpoint)).Str("exchange", exchange).Msg("AMQP publisher connected")
	p := newPublisher(ch, exchange, logger)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, exchange string, logger zerolog.Logger) *Publisher {
	return &Publisher{
		ch:       ch,
		exchange: exchange,
		logger:   logger.With().Str("component", "AMQPPublisher").Str("exchange", exchange).Logger(),
	}
}

// Send publishes message to the exchange with routingKey. amqp091 channels are
// not safe for concurrent publishing, so sends are serialised.
func (p *Publisher) Send(ctx context.Context, routingKey string, message []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return &messaging.PublishError{Exchange: p.exchange, RoutingKey: routingKey, Err: messaging.ErrPublisherClosed}
	}

	msg := amqp.Publishing{
		MessageId: uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Body:      message,
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg); err != nil {
		return &messaging.PublishError{Exchange: p.exchange, RoutingKey: routingKey, Err: err}
	}
	p.logger.Debug().Str("routing_key", routingKey).Str("message_id", msg.MessageId).Msg("Message published")
	return nil
}

// Close closes the channel and the connection. It is safe to call more than once.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	if err := p.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, fmt.Errorf("close channel: %w", err))
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}
	p.logger.Info().Msg("AMQP publisher closed")
	return errors.Join(errs...)
}
