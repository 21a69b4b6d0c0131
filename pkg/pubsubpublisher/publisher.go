// Package pubsubpublisher publishes device events to a Google Cloud Pub/Sub
// topic. Pub/Sub has no routing keys, so the key travels as a message attribute
// subscribers can filter on.
package pubsubpublisher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sync/atomic"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/pi-broadcast/pkg/messaging"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// RoutingKeyAttribute is the message attribute carrying the routing key.
const RoutingKeyAttribute = "routing_key"

// Publisher implements messaging.Publisher for a single Pub/Sub topic.
type Publisher struct {
	client     *pubsub.Client
	topic      *pubsub.Topic
	ownsClient bool
	closed     atomic.Bool
	logger     zerolog.Logger
}

// ProjectFromEndpoint extracts the project ID from a pubsub://<project> endpoint.
func ProjectFromEndpoint(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	if u.Scheme != "pubsub" || u.Host == "" {
		return "", fmt.Errorf("expected pubsub://<project-id>, got %q", endpoint)
	}
	return u.Host, nil
}

// Open creates a Pub/Sub client for the endpoint's project and binds it to the
// topic named by exchange. GCP_PUBSUB_CREDENTIALS_FILE selects a credentials
// file; PUBSUB_EMULATOR_HOST is honoured by the client library.
func Open(ctx context.Context, endpoint, exchange string, logger zerolog.Logger, opts ...option.ClientOption) (*Publisher, error) {
	connErr := func(err error) error {
		return &messaging.ConnectionError{Endpoint: endpoint, Exchange: exchange, Err: err}
	}

	projectID, err := ProjectFromEndpoint(endpoint)
	if err != nil {
		return nil, connErr(err)
	}
	if credentialsFile := os.Getenv("GCP_PUBSUB_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, connErr(fmt.Errorf("pubsub.NewClient: %w", err))
	}
	p, err := bind(ctx, client, exchange, logger)
	if err != nil {
		_ = client.Close()
		return nil, connErr(err)
	}
	p.ownsClient = true
	logger.Info().Str("project_id", projectID).Str("topic_id", exchange).Msg("Pub/Sub publisher initialized")
	return p, nil
}

// NewWithClient binds an existing client to topicID. The publisher does not
// close an injected client.
func NewWithClient(ctx context.Context, client *pubsub.Client, topicID string, logger zerolog.Logger) (*Publisher, error) {
	if client == nil {
		return nil, errors.New("pubsub client cannot be nil for publisher")
	}
	p, err := bind(ctx, client, topicID, logger)
	if err != nil {
		return nil, &messaging.ConnectionError{Endpoint: "pubsub://" + client.Project(), Exchange: topicID, Err: err}
	}
	return p, nil
}

func bind(ctx context.Context, client *pubsub.Client, topicID string, logger zerolog.Logger) (*Publisher, error) {
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check topic %s: %w", topicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("topic %s: %w", topicID, messaging.ErrExchangeNotFound)
	}
	return &Publisher{
		client: client,
		topic:  topic,
		logger: logger.With().Str("component", "PubsubPublisher").Str("topic_id", topicID).Logger(),
	}, nil
}

// Send publishes message with the routing key attribute and waits for the
// server to assign a message ID.
func (p *Publisher) Send(ctx context.Context, routingKey string, message []byte) error {
	if p.closed.Load() {
		return &messaging.PublishError{Exchange: p.topic.ID(), RoutingKey: routingKey, Err: messaging.ErrPublisherClosed}
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       message,
		Attributes: map[string]string{RoutingKeyAttribute: routingKey},
	})
	msgID, err := result.Get(ctx)
	if err != nil {
		return &messaging.PublishError{Exchange: p.topic.ID(), RoutingKey: routingKey, Err: err}
	}
	p.logger.Debug().Str("message_id", msgID).Str("routing_key", routingKey).Msg("Message published to Pub/Sub")
	return nil
}

// Close flushes the topic and, for publishers created by Open, closes the client.
func (p *Publisher) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.topic.Stop()
	if !p.ownsClient {
		return nil
	}
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	p.logger.Info().Msg("Pub/Sub client closed.")
	return nil
}
