package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"signbridge/internal/profile/models"
	"signbridge/pkg/platform/sentinel"
)

const keyPrefix = "signup:pending:"

// RedisStore keeps pending-signup payloads as JSON values with a TTL, so a
// signup abandoned before its profile exists does not linger forever.
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedis(client redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, identityID string) (*models.PendingSignup, error) {
	raw, err := s.client.Get(ctx, keyPrefix+identityID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pending signup: %w", err)
	}
	var ps models.PendingSignup
	if err := json.Unmarshal(raw, &ps); err != nil {
		return nil, fmt.Errorf("decode pending signup %s: %w", identityID, err)
	}
	return &ps, nil
}

func (s *RedisStore) Set(ctx context.Context, ps *models.PendingSignup) error {
	if ps == nil || ps.IdentityID == "" {
		return fmt.Errorf("pending signup requires an identity id: %w", sentinel.ErrInvalidState)
	}
	raw, err := json.Marshal(ps)
	if err != nil {
		return fmt.Errorf("encode pending signup: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+ps.IdentityID, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("set pending signup: %w", err)
	}
	return nil
}

// Delete is idempotent: deleting an absent payload is not an error.
func (s *RedisStore) Delete(ctx context.Context, identityID string) error {
	if err := s.client.Del(ctx, keyPrefix+identityID).Err(); err != nil {
		return fmt.Errorf("delete pending signup: %w", err)
	}
	return nil
}
