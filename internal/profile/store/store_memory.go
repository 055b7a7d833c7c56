package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"signbridge/internal/profile/models"
	"signbridge/pkg/platform/sentinel"
)

// InMemoryStore keeps profiles in a map for development mode and tests.
// Records are cloned on the way in and out so callers never alias stored state.
type InMemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*models.Profile
	byRoll   map[string]string
	now      func() time.Time
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		profiles: make(map[string]*models.Profile),
		byRoll:   make(map[string]string),
		now:      time.Now,
	}
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *InMemoryStore) FindByRollNumber(_ context.Context, rollNumber string) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byRoll[rollNumber]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.profiles[id].Clone(), nil
}

func (s *InMemoryStore) ExistsRollNumber(_ context.Context, rollNumber string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byRoll[rollNumber]
	return ok, nil
}

// Upsert inserts or replaces the record keyed by id, making repeated backfills
// idempotent. A roll number held by a different id is a conflict.
func (s *InMemoryStore) Upsert(_ context.Context, p *models.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.byRoll[p.RollNumber]; ok && owner != p.ID {
		return fmt.Errorf("roll number %s: %w", p.RollNumber, sentinel.ErrConflict)
	}
	rec := p.Clone()
	if prev, ok := s.profiles[p.ID]; ok {
		// overwrite, except that confirmation never regresses
		if prev.EmailConfirmed {
			rec.EmailConfirmed = true
			rec.EmailConfirmedAt = prev.Clone().EmailConfirmedAt
		}
		delete(s.byRoll, prev.RollNumber)
		rec.CreatedAt = prev.CreatedAt
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	rec.UpdatedAt = s.now()
	s.profiles[rec.ID] = rec
	s.byRoll[rec.RollNumber] = rec.ID
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, id string, u models.Update) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	next := p.Clone()
	if err := next.Apply(u, s.now()); err != nil {
		return nil, err
	}
	s.profiles[id] = next
	return next.Clone(), nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byRoll, p.RollNumber)
	delete(s.profiles, id)
	return nil
}

// ListExpiredUnconfirmed returns ids of unconfirmed profiles whose confirmation
// was sent before cutoff, oldest first.
func (s *InMemoryStore) ListExpiredUnconfirmed(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var expired []*models.Profile
	for _, p := range s.profiles {
		if !p.EmailConfirmed && p.ConfirmationSentAt != nil && p.ConfirmationSentAt.Before(cutoff) {
			expired = append(expired, p)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].ConfirmationSentAt.Before(*expired[j].ConfirmationSentAt)
	})
	ids := make([]string, 0, len(expired))
	for _, p := range expired {
		if limit > 0 && len(ids) == limit {
			break
		}
		ids = append(ids, p.ID)
	}
	return ids, nil
}

// DeleteUnconfirmed removes the listed profiles that are still unconfirmed and
// returns the ids actually removed.
func (s *InMemoryStore) DeleteUnconfirmed(_ context.Context, ids []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := make([]string, 0, len(ids))
	for _, id := range ids {
		p, ok := s.profiles[id]
		if !ok || p.EmailConfirmed {
			continue
		}
		delete(s.byRoll, p.RollNumber)
		delete(s.profiles, id)
		deleted = append(deleted, id)
	}
	return deleted, nil
}
