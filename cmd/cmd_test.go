package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/illmade-knight/pi-broadcast/pkg/messaging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBroker hands out recording publishers and remembers every send.
type fakeBroker struct {
	mu        sync.Mutex
	sends     []string
	opened    []string
	closed    int
	sendErr   error
	openErr   error
	endpoints []string
}

type fakePublisher struct {
	broker   *fakeBroker
	exchange string
}

func (p *fakePublisher) Send(_ context.Context, routingKey string, message []byte) error {
	p.broker.mu.Lock()
	defer p.broker.mu.Unlock()
	p.broker.sends = append(p.broker.sends, p.exchange+"/"+routingKey+"="+string(message))
	return p.broker.sendErr
}

func (p *fakePublisher) Close() error {
	p.broker.mu.Lock()
	defer p.broker.mu.Unlock()
	p.broker.closed++
	return nil
}

func (f *fakeBroker) open(_ context.Context, endpoint, exchange string, _ zerolog.Logger) (messaging.Publisher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened = append(f.opened, exchange)
	f.endpoints = append(f.endpoints, endpoint)
	return &fakePublisher{broker: f, exchange: exchange}, nil
}

func (f *fakeBroker) sortedSends() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.sends...)
	sort.Strings(out)
	return out
}

const testConfig = `
broker:
  endpoint: amqp://x
  exchange: events
log_level: error
devices:
  - key: pin-7
    rate_hz: 50
  - key: pin-8
    rate_hz: 50
`

func runCmd(t *testing.T, broker *fakeBroker, stdin string, args ...string) (string, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))

	root := NewRootCmd(broker.open)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", path}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSendCmd(t *testing.T) {
	t.Run("configured devices", func(t *testing.T) {
		broker := &fakeBroker{}
		out, err := runCmd(t, broker, "", "send", "on")

		require.NoError(t, err)
		assert.Contains(t, out, "broadcast ON to 2 device(s)")
		assert.Equal(t, []string{"events/pin-7=ON", "events/pin-8=ON"}, broker.sortedSends())
		assert.Len(t, broker.opened, 2, "one publisher per device")
		assert.Equal(t, 2, broker.closed)
	})

	t.Run("device flag and overrides", func(t *testing.T) {
		broker := &fakeBroker{}
		_, err := runCmd(t, broker, "", "send", "off", "-d", "pin-3", "-d", "pin-3", "--exchange", "garden", "--endpoint", "nats://n")

		require.NoError(t, err)
		assert.Equal(t, []string{"garden/pin-3=OFF"}, broker.sortedSends())
		assert.Equal(t, []string{"nats://n"}, broker.endpoints)
	})

	t.Run("invalid state", func(t *testing.T) {
		_, err := runCmd(t, &fakeBroker{}, "", "send", "maybe")
		assert.ErrorContains(t, err, "invalid pin state")
	})

	t.Run("connection error", func(t *testing.T) {
		connErr := &messaging.ConnectionError{Endpoint: "amqp://x", Exchange: "events", Err: errors.New("refused")}
		_, err := runCmd(t, &fakeBroker{openErr: connErr}, "", "send", "on")

		var got *messaging.ConnectionError
		assert.True(t, errors.As(err, &got))
	})

	t.Run("publish error", func(t *testing.T) {
		broker := &fakeBroker{sendErr: errors.New("nack")}
		_, err := runCmd(t, broker, "", "send", "on")

		assert.ErrorContains(t, err, "nack")
		assert.Equal(t, 2, broker.closed)
	})
}

func TestPipeCmd(t *testing.T) {
	t.Run("valid lines", func(t *testing.T) {
		broker := &fakeBroker{}
		stdin := "# pin log\npin-7 ON\n\npin-8 low\npin-7 0\n"
		out, err := runCmd(t, broker, stdin, "pipe")

		require.NoError(t, err)
		assert.Contains(t, out, "sent 3, failed 0")
		assert.Equal(t, []string{"events/pin-7=OFF", "events/pin-7=ON", "events/pin-8=OFF"}, broker.sortedSends())
	})

	t.Run("bad lines are skipped and reported", func(t *testing.T) {
		broker := &fakeBroker{}
		stdin := "pin-9 ON\npin-7\npin-7 maybe\npin-8 ON\n"
		out, err := runCmd(t, broker, stdin, "pipe")

		assert.ErrorContains(t, err, "3 event(s) were not broadcast")
		assert.Contains(t, out, "sent 1, failed 3")
		assert.Equal(t, []string{"events/pin-8=ON"}, broker.sortedSends())
	})
}

func TestSimulateCmd(t *testing.T) {
	broker := &fakeBroker{}
	out, err := runCmd(t, broker, "", "simulate", "--duration", "120ms")

	require.NoError(t, err)
	assert.Contains(t, out, "failed 0")
	assert.NotEmpty(t, broker.sortedSends())
	assert.Equal(t, 2, broker.closed)
}

func TestJoinSchemes(t *testing.T) {
	assert.Equal(t, "amqp://, nats://", joinSchemes([]string{"amqp", "nats"}))
}
