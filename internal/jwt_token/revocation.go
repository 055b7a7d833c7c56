package jwttoken

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "signbridge:revoked:jti:"

// RedisRevocations records revoked token ids until the token would have
// expired anyway, so every process behind the same Redis rejects them.
type RedisRevocations struct {
	client redis.Cmdable
}

func NewRedisRevocations(client redis.Cmdable) *RedisRevocations {
	return &RedisRevocations{client: client}
}

// Revoke is a no-op for an empty jti or a token already past its expiry.
func (r *RedisRevocations) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, revokedKeyPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token %s: %w", jti, err)
	}
	return nil
}

func (r *RedisRevocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	n, err := r.client.Exists(ctx, revokedKeyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("check token revocation: %w", err)
	}
	return n > 0, nil
}

// InMemoryRevocations is the development-mode list. Entries are pruned lazily
// once their token has expired.
type InMemoryRevocations struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

func NewInMemoryRevocations() *InMemoryRevocations {
	return &InMemoryRevocations{until: make(map[string]time.Time), now: time.Now}
}

func (r *InMemoryRevocations) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.until[jti] = r.now().Add(ttl)
	return nil
}

func (r *InMemoryRevocations) IsRevoked(_ context.Context, jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	until, ok := r.until[jti]
	if !ok {
		return false, nil
	}
	if !r.now().Before(until) {
		delete(r.until, jti)
		return false, nil
	}
	return true, nil
}
