package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// tokenKey is the Redis key the cached gateway access token lives under.
	tokenKey = "wallet:access_token"
	// tokenExpiryBuffer is refreshed-early headroom before actual expiry (seconds).
	tokenExpiryBuffer = 60
)

// TokenCache is a cached OAuth2 access token with its expiry time.
type TokenCache struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsValid reports whether the token is still usable with the buffer period
// before expiry taken into account.
func (tc *TokenCache) IsValid() bool {
	if tc == nil || tc.Token == "" {
		return false
	}
	return time.Now().Add(tokenExpiryBuffer * time.Second).Before(tc.ExpiresAt)
}

// RedisTokenCache caches wallet access tokens in Redis so concurrent
// handler instances share one token instead of fetching per call.
type RedisTokenCache struct {
	Client *redis.Client
}

func NewRedisTokenCache(client *redis.Client) *RedisTokenCache {
	return &RedisTokenCache{Client: client}
}

// GetToken retrieves a cached token, returning (nil, nil) on cache miss.
func (c *RedisTokenCache) GetToken(ctx context.Context) (*TokenCache, error) {
	if c.Client == nil {
		return nil, fmt.Errorf("redis client not initialized")
	}

	tokenJSON, err := c.Client.Get(ctx, tokenKey).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get token from Redis: %w", err)
	}

	var cached TokenCache
	if err := json.Unmarshal([]byte(tokenJSON), &cached); err != nil {
		return nil, fmt.Errorf("failed to decode cached token: %w", err)
	}

	return &cached, nil
}

// SaveToken stores a token with a TTL matching its remaining lifetime.
func (c *RedisTokenCache) SaveToken(ctx context.Context, token string, expiresIn time.Duration) error {
	if c.Client == nil {
		return fmt.Errorf("redis client not initialized")
	}

	cached := TokenCache{
		Token:     token,
		ExpiresAt: time.Now().Add(expiresIn),
	}

	tokenJSON, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	return c.Client.Set(ctx, tokenKey, tokenJSON, expiresIn).Err()
}

// InvalidateToken drops the cached token, forcing the next call to fetch.
func (c *RedisTokenCache) InvalidateToken(ctx context.Context) error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Del(ctx, tokenKey).Err()
}
