// Package redispublisher publishes device events with Redis PUBLISH on the
// channel <exchange>.<routing key>.
package redispublisher

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/go-redis/redis/v8"
	"github.com/illmade-knight/pi-broadcast/pkg/messaging"
	"github.com/rs/zerolog"
)

// publishClient is the subset of *redis.Client the publisher uses.
type publishClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// Publisher implements messaging.Publisher for Redis pub/sub.
type Publisher struct {
	client   publishClient
	exchange string
	closed   atomic.Bool
	logger   zerolog.Logger
}

// Open parses a redis:// or rediss:// endpoint and pings the server.
func Open(ctx context.Context, endpoint, exchange string, logger zerolog.Logger) (*Publisher, error) {
	connErr := func(err error) error {
		return &messaging.ConnectionError{Endpoint: endpoint, Exchange: exchange, Err: err}
	}

	opts, err := redis.ParseURL(endpoint)
	if err != nil {
		return nil, connErr(err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, connErr(fmt.Errorf("failed to connect to redis: %w", err))
	}

	logger.Info().Str("redis_address", opts.Addr).Str("exchange", exchange).Msg("Successfully connected to Redis")
	return newPublisher(rdb, exchange, logger), nil
}

func newPublisher(c publishClient, exchange string, logger zerolog.Logger) *Publisher {
	return &Publisher{
		client:   c,
		exchange: exchange,
		logger:   logger.With().Str("component", "RedisPublisher").Str("exchange", exchange).Logger(),
	}
}

// Channel returns the channel a routing key is published on.
func (p *Publisher) Channel(routingKey string) string {
	if p.exchange == "" {
		return routingKey
	}
	return p.exchange + "." + routingKey
}

// Send publishes message on the routing key's channel.
func (p *Publisher) Send(ctx context.Context, routingKey string, message []byte) error {
	if p.closed.Load() {
		return &messaging.PublishError{Exchange: p.exchange, RoutingKey: routingKey, Err: messaging.ErrPublisherClosed}
	}
	channel := p.Channel(routingKey)
	receivers, err := p.client.Publish(ctx, channel, message).Result()
	if err != nil {
		return &messaging.PublishError{Exchange: p.exchange, RoutingKey: routingKey, Err: err}
	}
	p.logger.Debug().Str("channel", channel).Int64("receivers", receivers).Msg("Message published")
	return nil
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.client.Close()
}
