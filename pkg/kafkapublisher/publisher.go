// Package kafkapublisher publishes device events to a Kafka topic, using the
// routing key as the message key so one device's events share a partition.
package kafkapublisher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/illmade-knight/pi-broadcast/pkg/messaging"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements messaging.Publisher for Kafka.
type Publisher struct {
	writer messageWriter
	topic  string
	closed atomic.Bool
	logger zerolog.Logger
}

// BrokersFromEndpoint parses kafka://host:port[,host:port...]. The scheme is
// matched case-insensitively.
func BrokersFromEndpoint(endpoint string) ([]string, error) {
	scheme, rest, ok := strings.Cut(endpoint, "://")
	if !ok || !strings.EqualFold(scheme, "kafka") {
		return nil, fmt.Errorf("expected kafka://<brokers>, got %q", endpoint)
	}
	if i := strings.IndexAny(rest, "/?"); i >= 0 {
		rest = rest[:i]
	}
	var brokers []string
	for _, b := range strings.Split(rest, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, errors.New("no kafka brokers in endpoint")
	}
	return brokers, nil
}

// Open checks that at least one broker is reachable and returns a publisher
// writing to the topic named by exchange.
func Open(ctx context.Context, endpoint, exchange string, logger zerolog.Logger) (*Publisher, error) {
	connErr := func(err error) error {
		return &messaging.ConnectionError{Endpoint: endpoint, Exchange: exchange, Err: err}
	}

	brokers, err := BrokersFromEndpoint(endpoint)
	if err != nil {
		return nil, connErr(err)
	}

	var dialErrs []error
	reachable := false
	for _, broker := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			dialErrs = append(dialErrs, err)
			continue
		}
		_ = conn.Close()
		reachable = true
		break
	}
	if !reachable {
		return nil, connErr(fmt.Errorf("kafka dial: %w", errors.Join(dialErrs...)))
	}

	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    exchange,
		Balancer: &kafka.Hash{},
	}
	logger.Info().Strs("brokers", brokers).Str("topic", exchange).Msg("Kafka publisher initialized")
	return newPublisher(w, exchange, logger), nil
}

func newPublisher(w messageWriter, topic string, logger zerolog.Logger) *Publisher {
	return &Publisher{
		writer: w,
		topic:  topic,
		logger: logger.With().Str("component", "KafkaPublisher").Str("topic", topic).Logger(),
	}
}

// Send writes one message keyed by routingKey.
func (p *Publisher) Send(ctx context.Context, routingKey string, message []byte) error {
	if p.closed.Load() {
		return &messaging.PublishError{Exchange: p.topic, RoutingKey: routingKey, Err: messaging.ErrPublisherClosed}
	}
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(routingKey),
		Value: message,
	})
	if err != nil {
		return &messaging.PublishError{Exchange: p.topic, RoutingKey: routingKey, Err: err}
	}
	p.logger.Debug().Str("routing_key", routingKey).Msg("Message written to kafka")
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}
