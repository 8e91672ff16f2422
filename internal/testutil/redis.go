package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// TestRedisContainer wraps a Redis test container with a connected client.
//
// Usage:
//
//	rd, cleanup := testutil.SetupTestRedis(t)
//	defer cleanup()
//	// Use rd.Client for Redis operations
type TestRedisContainer struct {
	Container *tcredis.RedisContainer
	Client    *redis.Client
	URL       string
}

// SetupTestRedis creates a Redis container for testing.
//
// Returns:
//   - TestRedisContainer: Container with connected client
//   - cleanup function: Must be called to terminate container
func SetupTestRedis(t *testing.T) (*TestRedisContainer, func()) {
	t.Helper()

	ctx := context.Background()

	redisContainer, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	url, err := redisContainer.ConnectionString(ctx)
	if err != nil {
		_ = redisContainer.Terminate(ctx)
		t.Fatalf("Failed to get connection string: %v", err)
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		_ = redisContainer.Terminate(ctx)
		t.Fatalf("Failed to parse connection string: %v", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		_ = redisContainer.Terminate(ctx)
		t.Fatalf("Failed to ping Redis: %v", err)
	}

	container := &TestRedisContainer{
		Container: redisContainer,
		Client:    client,
		URL:       url,
	}

	cleanup := func() {
		_ = client.Close()
		_ = redisContainer.Terminate(context.Background())
	}

	return container, cleanup
}
