package ratelimit

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Интеграционные тесты RedisStore: поднимают реальный Redis через
// testcontainers-go. Запуск:
//
//	GO_TEST_INTEGRATION=1 go test ./internal/ratelimit -v -race -count=1

func startRedis(t *testing.T) *RedisStore {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, _ := c.Host(ctx)
	port, _ := c.MappedPort(ctx, "6379/tcp")

	store, err := NewRedisStore(fmt.Sprintf("redis://%s:%s/0", host, port.Port()), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestIntegration_RedisStore_Incr(t *testing.T) {
	store := startRedis(t)
	ctx := context.Background()

	n, err := store.Incr(ctx, "test:incr:k", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = store.Incr(ctx, "test:incr:k", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func TestIntegration_RedisStore_WindowExpiry(t *testing.T) {
	store := startRedis(t)
	ctx := context.Background()

	_, err := store.Incr(ctx, "test:expiry:k", time.Second)
	require.NoError(t, err)

	time.Sleep(1500 * time.Millisecond)

	// Окно истекло, счётчик начинается заново.
	n, err := store.Incr(ctx, "test:expiry:k", time.Second)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestIntegration_RedisStore_ConcurrentIncr(t *testing.T) {
	store := startRedis(t)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Incr(ctx, "test:race:k", time.Minute)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	n, err := store.Incr(ctx, "test:race:k", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, workers+1, n)
}

func TestIntegration_RedisStore_Reset(t *testing.T) {
	store := startRedis(t)
	ctx := context.Background()

	_, err := store.Incr(ctx, "ns-a:login:k", time.Minute)
	require.NoError(t, err)
	_, err = store.Incr(ctx, "ns-b:login:k", time.Minute)
	require.NoError(t, err)

	require.NoError(t, store.Reset(ctx, "ns-a:"))

	// ns-a очищен, ns-b не задет.
	n, err := store.Incr(ctx, "ns-a:login:k", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = store.Incr(ctx, "ns-b:login:k", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}
