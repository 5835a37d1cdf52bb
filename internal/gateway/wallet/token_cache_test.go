package wallet_test

import (
	"context"
	"testing"
	"time"

	"ms-settlement/internal/gateway/wallet"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestTokenCacheValidity(t *testing.T) {
	var nilCache *wallet.TokenCache
	assert.False(t, nilCache.IsValid())

	empty := &wallet.TokenCache{}
	assert.False(t, empty.IsValid())

	fresh := &wallet.TokenCache{
		Token:     "tok_1",
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}
	assert.True(t, fresh.IsValid())

	// Inside the refresh buffer counts as expired.
	nearlyExpired := &wallet.TokenCache{
		Token:     "tok_2",
		ExpiresAt: time.Now().Add(30 * time.Second),
	}
	assert.False(t, nearlyExpired.IsValid())
}

// TestTokenCacheIntegration exercises the cache against a real Redis container
func TestTokenCacheIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Redis integration test in short mode")
	}

	ctx := context.Background()
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:latest",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	defer redisContainer.Terminate(ctx)

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)

	port, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cache := wallet.NewRedisTokenCache(client)

	// Cold cache misses cleanly.
	cached, err := cache.GetToken(ctx)
	require.NoError(t, err)
	assert.Nil(t, cached)

	// Round-trip a token.
	err = cache.SaveToken(ctx, "access-token-abc", 10*time.Minute)
	require.NoError(t, err)

	cached, err = cache.GetToken(ctx)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "access-token-abc", cached.Token)
	assert.True(t, cached.IsValid())

	// Invalidation forces the next caller to fetch a fresh token.
	err = cache.InvalidateToken(ctx)
	require.NoError(t, err)

	cached, err = cache.GetToken(ctx)
	require.NoError(t, err)
	assert.Nil(t, cached)
}
