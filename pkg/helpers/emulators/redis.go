package emulators

import (
	"context"
	"fmt"
	"testing"

	"github.com/testcontainers/testcontainers-go"
)

const (
	testRedisImage = "redis:7-alpine"
	testRedisPort  = "6379"
)

type RedisConfig struct {
	ImageContainer
}

func GetDefaultRedisConfig() RedisConfig {
	return RedisConfig{ImageContainer: ImageContainer{EmulatorImage: testRedisImage, EmulatorPort: testRedisPort}}
}

// SetupRedisContainer starts Redis and returns a redis:// endpoint for it.
func SetupRedisContainer(t *testing.T, ctx context.Context, cfg RedisConfig) (endpoint string, cleanupFunc func()) {
	t.Helper()
	addr, cleanup := startContainer(t, ctx, cfg.ImageContainer, testcontainers.ContainerRequest{})
	t.Logf("Redis container started, listening on: %s", addr)
	return fmt.Sprintf("redis://%s/0", addr), cleanup
}
