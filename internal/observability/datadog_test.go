package observability

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestSetupDatadog_DefaultAgentHost(t *testing.T) {
	t.Parallel()

	cfg := Config{
		AgentHost:   "", // empty should fall back to DefaultAgentHost
		Environment: "test",
		ServiceName: "test-service",
	}

	ctx := context.Background()
	shutdown, err := SetupDatadog(ctx, cfg, testLogger())

	require.NoError(t, err)
	require.NotNil(t, shutdown)

	err = shutdown(ctx)
	assert.NoError(t, err)
}

func TestSetupDatadog_CustomAgentHost(t *testing.T) {
	t.Parallel()

	cfg := Config{
		AgentHost:   "custom-host:4318",
		Environment: "staging",
		ServiceName: "custom-service",
	}

	ctx := context.Background()
	shutdown, err := SetupDatadog(ctx, cfg, testLogger())

	require.NoError(t, err)
	require.NotNil(t, shutdown)

	err = shutdown(ctx)
	assert.NoError(t, err)
}

func TestSetupDatadog_AgentUnavailable_GracefulDegradation(t *testing.T) {
	t.Parallel()

	// Exporter construction does not dial; spans to a dead agent fail at
	// export time and are dropped. Setup must still hand back a working
	// shutdown func.
	cfg := Config{
		AgentHost:   "localhost:99999",
		Environment: "test",
		ServiceName: "graceful-test",
	}

	ctx := context.Background()
	shutdown, err := SetupDatadog(ctx, cfg, testLogger())

	require.NoError(t, err)
	require.NotNil(t, shutdown)

	err = shutdown(ctx)
	assert.NoError(t, err)
}

func TestSetupDatadog_NilLogger(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	shutdown, err := SetupDatadog(ctx, Config{}, nil)

	require.NoError(t, err)
	require.NotNil(t, shutdown)

	err = shutdown(ctx)
	assert.NoError(t, err)
}

func TestDefaultAgentHost_Value(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "localhost:4318", DefaultAgentHost)
}
