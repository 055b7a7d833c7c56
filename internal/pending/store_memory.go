package pending

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"signbridge/internal/profile/models"
	"signbridge/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]models.PendingSignup
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]models.PendingSignup)}
}

func (s *InMemoryStore) Get(_ context.Context, identityID string) (*models.PendingSignup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ps, ok := s.entries[identityID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	ps.Attributes = maps.Clone(ps.Attributes)
	return &ps, nil
}

func (s *InMemoryStore) Set(_ context.Context, ps *models.PendingSignup) error {
	if ps == nil || ps.IdentityID == "" {
		return fmt.Errorf("pending signup requires an identity id: %w", sentinel.ErrInvalidState)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ps
	cp.Attributes = maps.Clone(ps.Attributes)
	s.entries[ps.IdentityID] = cp
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, identityID)
	return nil
}
