// Package emulators starts broker containers for integration tests.
package emulators

import (
	"context"
	"fmt"
	"testing"

	"github.com/docker/go-connections/nat"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type ImageContainer struct {
	EmulatorImage string
	EmulatorPort  string
}

type GCImageContainer struct {
	ImageContainer
	ProjectID string
}

// startContainer runs req and returns host:port for the mapped emulator port.
func startContainer(t *testing.T, ctx context.Context, cfg ImageContainer, req testcontainers.ContainerRequest) (string, func()) {
	t.Helper()
	req.Image = cfg.EmulatorImage
	req.ExposedPorts = []string{fmt.Sprintf("%s/tcp", cfg.EmulatorPort)}
	if req.WaitingFor == nil {
		req.WaitingFor = wait.ForListeningPort(nat.Port(cfg.EmulatorPort))
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, nat.Port(cfg.EmulatorPort))
	require.NoError(t, err)

	return fmt.Sprintf("%s:%s", host, port.Port()), func() {
		if err := container.Terminate(ctx); err != nil {
			log.Warn().Err(err).Str("image", cfg.EmulatorImage).Msg("Failed to terminate emulator container")
		}
	}
}
