package audit

import (
	"context"
	"slices"
	"sync"
)

// InMemoryStore keeps a bounded trail per identity for development mode and tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	events   map[string][]Event
	capacity int
}

func NewInMemoryStore(capacity int) *InMemoryStore {
	if capacity <= 0 {
		capacity = 100
	}
	return &InMemoryStore{events: make(map[string][]Event), capacity: capacity}
}

func (s *InMemoryStore) Append(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	trail := append(s.events[ev.IdentityID], ev)
	if len(trail) > s.capacity {
		trail = trail[len(trail)-s.capacity:]
	}
	s.events[ev.IdentityID] = trail
	return nil
}

func (s *InMemoryStore) ListByIdentity(_ context.Context, identityID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events[identityID]), nil
}
