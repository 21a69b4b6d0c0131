// Package transport selects a broker client from an endpoint URL's scheme.
package transport

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/illmade-knight/pi-broadcast/pkg/amqppublisher"
	"github.com/illmade-knight/pi-broadcast/pkg/kafkapublisher"
	"github.com/illmade-knight/pi-broadcast/pkg/messaging"
	"github.com/illmade-knight/pi-broadcast/pkg/mqttpublisher"
	"github.com/illmade-knight/pi-broadcast/pkg/natspublisher"
	"github.com/illmade-knight/pi-broadcast/pkg/pubsubpublisher"
	"github.com/illmade-knight/pi-broadcast/pkg/redispublisher"
	"github.com/rs/zerolog"
)

// Registry maps lower-case endpoint schemes to the opener that handles them.
type Registry map[string]messaging.Opener

// DefaultRegistry returns a registry with every supported broker client.
//
// tls:// is routed to NATS, which uses it for TLS connections. paho also
// accepts tls:// for MQTT, but here MQTT over TLS must be written as
// mqtts://, ssl:// or wss://.
func DefaultRegistry() Registry {
	amqpOpener := func(ctx context.Context, endpoint, exchange string, logger zerolog.Logger) (messaging.Publisher, error) {
		return nilSafe(amqppublisher.Open(ctx, endpoint, exchange, logger))
	}
	mqttOpener := func(ctx context.Context, endpoint, exchange string, logger zerolog.Logger) (messaging.Publisher, error) {
		return nilSafe(mqttpublisher.Open(ctx, endpoint, exchange, logger))
	}
	pubsubOpener := func(ctx context.Context, endpoint, exchange string, logger zerolog.Logger) (messaging.Publisher, error) {
		return nilSafe(pubsubpublisher.Open(ctx, endpoint, exchange, logger))
	}
	kafkaOpener := func(ctx context.Context, endpoint, exchange string, logger zerolog.Logger) (messaging.Publisher, error) {
		return nilSafe(kafkapublisher.Open(ctx, endpoint, exchange, logger))
	}
	natsOpener := func(ctx context.Context, endpoint, exchange string, logger zerolog.Logger) (messaging.Publisher, error) {
		return nilSafe(natspublisher.Open(ctx, endpoint, exchange, logger))
	}
	redisOpener := func(ctx context.Context, endpoint, exchange string, logger zerolog.Logger) (messaging.Publisher, error) {
		return nilSafe(redispublisher.Open(ctx, endpoint, exchange, logger))
	}

	return Registry{
		"amqp":   amqpOpener,
		"amqps":  amqpOpener,
		"mqtt":   mqttOpener,
		"mqtts":  mqttOpener,
		"tcp":    mqttOpener,
		"ssl":    mqttOpener,
		"ws":     mqttOpener,
		"wss":    mqttOpener,
		"pubsub": pubsubOpener,
		"kafka":  kafkaOpener,
		"nats":   natsOpener,
		"tls":    natsOpener,
		"redis":  redisOpener,
		"rediss": redisOpener,
	}
}

// nilSafe keeps a typed nil pointer from becoming a non-nil interface.
func nilSafe[P messaging.Publisher](p P, err error) (messaging.Publisher, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Schemes lists the registered schemes in sorted order.
func (r Registry) Schemes() []string {
	schemes := make([]string, 0, len(r))
	for s := range r {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	return schemes
}

// Open dispatches to the opener registered for endpoint's scheme.
func (r Registry) Open(ctx context.Context, endpoint, exchange string, logger zerolog.Logger) (messaging.Publisher, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" {
		return nil, &messaging.ConnectionError{Endpoint: endpoint, Exchange: exchange, Err: fmt.Errorf("%w: cannot parse endpoint", messaging.ErrUnsupportedScheme)}
	}
	opener, ok := r[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, &messaging.ConnectionError{Endpoint: endpoint, Exchange: exchange, Err: fmt.Errorf("%w: %s", messaging.ErrUnsupportedScheme, u.Scheme)}
	}
	return opener(ctx, endpoint, exchange, logger)
}

// Open opens a publisher using the default registry. It satisfies messaging.Opener.
func Open(ctx context.Context, endpoint, exchange string, logger zerolog.Logger) (messaging.Publisher, error) {
	return DefaultRegistry().Open(ctx, endpoint, exchange, logger)
}

var _ messaging.Opener = Open
