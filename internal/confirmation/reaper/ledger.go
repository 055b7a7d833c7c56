package reaper

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/redis/go-redis/v9"
)

const orphanKey = "signup:orphans"

// RedisLedger keeps orphaned identity ids in a Redis set so the record survives
// restarts and is shared by every process sweeping the same stores.
type RedisLedger struct {
	client redis.Cmdable
}

func NewRedisLedger(client redis.Cmdable) *RedisLedger {
	return &RedisLedger{client: client}
}

func (l *RedisLedger) Add(ctx context.Context, identityID string) error {
	if err := l.client.SAdd(ctx, orphanKey, identityID).Err(); err != nil {
		return fmt.Errorf("record orphan %s: %w", identityID, err)
	}
	return nil
}

func (l *RedisLedger) List(ctx context.Context, limit int) ([]string, error) {
	ids, err := l.client.SMembers(ctx, orphanKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list orphans: %w", err)
	}
	slices.Sort(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (l *RedisLedger) Remove(ctx context.Context, identityID string) error {
	if err := l.client.SRem(ctx, orphanKey, identityID).Err(); err != nil {
		return fmt.Errorf("clear orphan %s: %w", identityID, err)
	}
	return nil
}

type InMemoryLedger struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{ids: make(map[string]struct{})}
}

func (l *InMemoryLedger) Add(_ context.Context, identityID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids[identityID] = struct{}{}
	return nil
}

func (l *InMemoryLedger) List(_ context.Context, limit int) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.ids))
	for id := range l.ids {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (l *InMemoryLedger) Remove(_ context.Context, identityID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.ids, identityID)
	return nil
}
