// Package mqttpublisher publishes device events to an MQTT broker. The exchange
// is used as a topic prefix and the routing key as the last topic level.
package mqttpublisher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/illmade-knight/pi-broadcast/pkg/messaging"
	"github.com/rs/zerolog"
)

const (
	connectTimeout = 10 * time.Second
	// qos 0: fire and forget.
	qos byte = 0
	// quiesce is the time in milliseconds Disconnect waits for in-flight work.
	quiesce uint = 250
)

// client is the subset of mqtt.Client the publisher uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher implements messaging.Publisher for MQTT.
type Publisher struct {
	client   client
	exchange string
	closed   atomic.Bool
	logger   zerolog.Logger
}

// Open connects to the broker at endpoint. Accepted schemes are those paho
// understands: tcp, ssl, ws, wss, mqtt and mqtts.
func Open(ctx context.Context, endpoint, exchange string, logger zerolog.Logger) (*Publisher, error) {
	connErr := func(err error) error {
		return &messaging.ConnectionError{Endpoint: endpoint, Exchange: exchange, Err: err}
	}

	opts := mqtt.NewClientOptions().
		AddBroker(endpoint).
		SetClientID(fmt.Sprintf("pibroadcast-%s", uuid.New().String())).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Error().Err(err).Msg("MQTT connection lost")
		})

	c := mqtt.NewClient(opts)
	token := c.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return nil, connErr(fmt.Errorf("mqtt connect: %w", err))
		}
	case <-time.After(connectTimeout):
		c.Disconnect(0)
		return nil, connErr(errors.New("mqtt connect: timed out"))
	case <-ctx.Done():
		c.Disconnect(0)
		return nil, connErr(ctx.Err())
	}
	if !c.IsConnected() {
		return nil, connErr(fmt.Errorf("failed to connect to %s", messaging.RedactEndpoint(endpoint)))
	}

	logger.Info().Str("broker", messaging.RedactEndpoint(endpoint)).Str("exchange", exchange).Msg("Successfully connected to MQTT broker")
	return newPublisher(c, exchange, logger), nil
}

func newPublisher(c client, exchange string, logger zerolog.Logger) *Publisher {
	return &Publisher{
		client:   c,
		exchange: exchange,
		logger:   logger.With().Str("component", "MQTTPublisher").Str("exchange", exchange).Logger(),
	}
}

// Topic returns the MQTT topic a routing key is published to.
func (p *Publisher) Topic(routingKey string) string {
	if p.exchange == "" {
		return routingKey
	}
	return strings.TrimSuffix(p.exchange, "/") + "/" + routingKey
}

// Send publishes message to the routing key's topic and waits for the write
// to complete or ctx to end.
func (p *Publisher) Send(ctx context.Context, routingKey string, message []byte) error {
	if p.closed.Load() {
		return &messaging.PublishError{Exchange: p.exchange, RoutingKey: routingKey, Err: messaging.ErrPublisherClosed}
	}

	topic := p.Topic(routingKey)
	token := p.client.Publish(topic, qos, false, message)

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return &messaging.PublishError{Exchange: p.exchange, RoutingKey: routingKey, Err: err}
		}
		p.logger.Debug().Str("topic", topic).Msg("Message published")
		return nil
	case <-ctx.Done():
		return &messaging.PublishError{Exchange: p.exchange, RoutingKey: routingKey, Err: ctx.Err()}
	}
}

// Close disconnects from the broker.
func (p *Publisher) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.client.Disconnect(quiesce)
	p.logger.Info().Msg("MQTT client disconnected")
	return nil
}
