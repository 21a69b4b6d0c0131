package mqttpublisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/illmade-knight/pi-broadcast/pkg/messaging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

// fakeToken is an mqtt.Token that completes when finish is called.
type fakeToken struct {
	done chan struct{}
	err  error
}

func newFakeToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func (t *fakeToken) finish(err error) *fakeToken {
	t.err = err
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }

func (t *fakeToken) Error() error { return t.err }

type publishedMessage struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// MockClient records publishes and hands back the configured token.
type MockClient struct {
	mu           sync.Mutex
	Published    []publishedMessage
	Token        func() mqtt.Token
	disconnected bool
}

func (m *MockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, publishedMessage{Topic: topic, QoS: qos, Retained: retained, Payload: payload.([]byte)})
	if m.Token != nil {
		return m.Token()
	}
	return newFakeToken().finish(nil)
}

func (m *MockClient) Disconnect(_ uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnected = true
}

// --- Tests ---

func TestPublisher_Topic(t *testing.T) {
	testCases := []struct {
		exchange string
		key      string
		expected string
	}{
		{"events", "pin-7", "events/pin-7"},
		{"home/pi/", "pin-7", "home/pi/pin-7"},
		{"", "pin-7", "pin-7"},
	}
	for _, tc := range testCases {
		p := newPublisher(&MockClient{}, tc.exchange, zerolog.Nop())
		assert.Equal(t, tc.expected, p.Topic(tc.key))
	}
}

func TestPublisher_Send(t *testing.T) {
	t.Run("publishes to device topic", func(t *testing.T) {
		c := &MockClient{}
		p := newPublisher(c, "events", zerolog.Nop())

		require.NoError(t, p.Send(context.Background(), "pin-7", []byte("ON")))

		require.Len(t, c.Published, 1)
		assert.Equal(t, publishedMessage{Topic: "events/pin-7", QoS: 0, Payload: []byte("ON")}, c.Published[0])
	})

	t.Run("token error is a PublishError", func(t *testing.T) {
		tokenErr := errors.New("not connected")
		c := &MockClient{Token: func() mqtt.Token { return newFakeToken().finish(tokenErr) }}
		p := newPublisher(c, "events", zerolog.Nop())

		err := p.Send(context.Background(), "pin-7", []byte("ON"))

		var pubErr *messaging.PublishError
		require.True(t, errors.As(err, &pubErr))
		assert.ErrorIs(t, err, tokenErr)
	})

	t.Run("context cancelled before token completes", func(t *testing.T) {
		c := &MockClient{Token: func() mqtt.Token { return newFakeToken() }}
		p := newPublisher(c, "events", zerolog.Nop())
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := p.Send(ctx, "pin-7", []byte("ON"))

		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestPublisher_Close(t *testing.T) {
	c := &MockClient{}
	p := newPublisher(c, "events", zerolog.Nop())

	require.NoError(t, p.Close())
	assert.True(t, c.disconnected)

	err := p.Send(context.Background(), "pin-7", []byte("ON"))
	assert.ErrorIs(t, err, messaging.ErrPublisherClosed)
	assert.Empty(t, c.Published)
}
