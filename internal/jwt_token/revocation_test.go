package jwttoken

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type revocationList interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

func TestRevocations(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Date(2026, 4, 10, 8, 0, 0, 0, time.UTC)
	memory := NewInMemoryRevocations()
	memory.now = func() time.Time { return now }

	lists := map[string]struct {
		list    revocationList
		advance func(time.Duration)
	}{
		"redis":  {NewRedisRevocations(client), mr.FastForward},
		"memory": {memory, func(d time.Duration) { now = now.Add(d) }},
	}

	for name, tc := range lists {
		t.Run(name, func(t *testing.T) {
			revoked, err := tc.list.IsRevoked(ctx, "jti-1")
			require.NoError(t, err)
			assert.False(t, revoked)

			require.NoError(t, tc.list.Revoke(ctx, "jti-1", time.Minute))
			revoked, err = tc.list.IsRevoked(ctx, "jti-1")
			require.NoError(t, err)
			assert.True(t, revoked)

			tc.advance(2 * time.Minute)
			revoked, err = tc.list.IsRevoked(ctx, "jti-1")
			require.NoError(t, err)
			assert.False(t, revoked, "entry outlives the token")

			require.NoError(t, tc.list.Revoke(ctx, "", time.Minute))
			require.NoError(t, tc.list.Revoke(ctx, "jti-2", 0))
			revoked, err = tc.list.IsRevoked(ctx, "jti-2")
			require.NoError(t, err)
			assert.False(t, revoked, "expired token is not recorded")
		})
	}
}

func TestRedisRevocationsSurfacesErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	_, err := NewRedisRevocations(client).IsRevoked(context.Background(), "jti-1")
	assert.ErrorContains(t, err, "check token revocation")
}
