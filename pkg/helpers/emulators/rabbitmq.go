package emulators

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	testRabbitMQImage = "rabbitmq:3.13-alpine"
	testRabbitMQPort  = "5672"
)

type RabbitMQConfig struct {
	ImageContainer
}

func GetDefaultRabbitMQConfig() RabbitMQConfig {
	return RabbitMQConfig{ImageContainer: ImageContainer{EmulatorImage: testRabbitMQImage, EmulatorPort: testRabbitMQPort}}
}

// SetupRabbitMQContainer starts RabbitMQ and returns an amqp:// endpoint for it.
func SetupRabbitMQContainer(t *testing.T, ctx context.Context, cfg RabbitMQConfig) (endpoint string, cleanupFunc func()) {
	t.Helper()
	addr, cleanup := startContainer(t, ctx, cfg.ImageContainer, testcontainers.ContainerRequest{
		WaitingFor: wait.ForLog("Server startup complete").WithStartupTimeout(60 * time.Second),
	})
	endpoint = fmt.Sprintf("amqp://guest:guest@%s/", addr)
	t.Logf("RabbitMQ container started, listening on: %s", addr)
	return endpoint, cleanup
}
