package capital

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a connected client.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisPool(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	p, err := NewRedisPool(ctx, RedisPoolOptions{Client: client, Key: "test:pool", Logger: zerolog.Nop()})
	require.NoError(t, err)

	bal, err := p.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, bal, "missing key is an empty pool")

	require.NoError(t, p.Reset(ctx, 1000))

	granted, ok, err := p.Allocate(ctx, 250.25)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 250.25, granted)

	_, ok, err = p.Allocate(ctx, 800)
	require.NoError(t, err)
	assert.False(t, ok, "allocation above balance is refused")

	require.NoError(t, p.Return(ctx, 50))

	bal, err = p.Balance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 799.75, bal, 1e-9)
}

func TestRedisPool_NegativeBalanceIsFatal(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	p, err := NewRedisPool(ctx, RedisPoolOptions{Client: client, Key: "test:negative", Logger: zerolog.Nop()})
	require.NoError(t, err)

	// Corrupt the balance from outside
	require.NoError(t, client.Set(ctx, "test:negative", "-5", 0).Err())

	_, _, err = p.Allocate(ctx, 1)
	assert.ErrorIs(t, err, ErrNegativePool)

	_, err = p.Balance(ctx)
	assert.ErrorIs(t, err, ErrNegativePool)
}

func TestNewRedisPool_RequiresClient(t *testing.T) {
	_, err := NewRedisPool(context.Background(), RedisPoolOptions{})
	assert.Error(t, err)
}
