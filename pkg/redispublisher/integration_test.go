//go:build integration

package redispublisher_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/illmade-knight/pi-broadcast/pkg/broadcast"
	"github.com/illmade-knight/pi-broadcast/pkg/helpers/emulators"
	"github.com/illmade-knight/pi-broadcast/pkg/redispublisher"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisPublisher_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	endpoint, cleanup := emulators.SetupRedisContainer(t, ctx, emulators.GetDefaultRedisConfig())
	defer cleanup()

	opts, err := redis.ParseURL(endpoint)
	require.NoError(t, err)
	sub := redis.NewClient(opts).Subscribe(ctx, "pin-events.pin-7")
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	pub, err := redispublisher.Open(ctx, endpoint, "pin-events", zerolog.Nop())
	require.NoError(t, err)
	defer pub.Close()

	b, err := broadcast.New(pub, "pin-7", zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Broadcast(ctx, []byte("ON")))

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "pin-events.pin-7", msg.Channel)
		assert.Equal(t, "ON", msg.Payload)
	case <-ctx.Done():
		t.Fatal("timed out waiting for redis message")
	}
}
