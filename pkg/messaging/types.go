package messaging

import (
	"context"
	"net/url"

	"github.com/rs/zerolog"
)

// Publisher is the contract every broker client satisfies. A Publisher is bound
// to a single exchange at open time; Send chooses only the routing key.
type Publisher interface {
	// Send writes one message to the bound exchange under routingKey.
	Send(ctx context.Context, routingKey string, message []byte) error
	// Close releases the underlying connection.
	Close() error
}

// Opener opens a Publisher bound to endpoint/exchange.
type Opener func(ctx context.Context, endpoint, exchange string, logger zerolog.Logger) (Publisher, error)

// RedactEndpoint removes any credentials from an endpoint URL so it can be
// logged. Endpoints that do not parse are returned as "<invalid endpoint>".
func RedactEndpoint(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "<invalid endpoint>"
	}
	return u.Redacted()
}
