package messaging

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedScheme is returned when no publisher is registered for an endpoint scheme.
	ErrUnsupportedScheme = errors.New("unsupported endpoint scheme")
	// ErrExchangeNotFound is returned when the broker reports the exchange does not exist.
	ErrExchangeNotFound = errors.New("exchange not found")
	// ErrPublisherClosed is returned by Send after Close.
	ErrPublisherClosed = errors.New("publisher closed")
)

// ConnectionError reports that a publisher could not be opened.
type ConnectionError struct {
	Endpoint string
	Exchange string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to %s (exchange %q): %v", RedactEndpoint(e.Endpoint), e.Exchange, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// PublishError reports that the transport rejected or could not deliver a send.
type PublishError struct {
	Exchange   string
	RoutingKey string
	Err        error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to exchange %q with key %q: %v", e.Exchange, e.RoutingKey, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}
