// Package profile holds the store-boundary adapter that turns any profile lookup
// shape into exactly one canonical record or a not-found signal.
package profile

import (
	"fmt"

	"signbridge/internal/profile/models"
	"signbridge/pkg/platform/sentinel"
)

// Single collapses a row set into one record. Ids are primary keys, so more than
// one row means the store is inconsistent.
func Single(records []*models.Profile) (*models.Profile, error) {
	switch len(records) {
	case 0:
		return nil, sentinel.ErrNotFound
	case 1:
		if records[0] == nil {
			return nil, sentinel.ErrNotFound
		}
		return records[0], nil
	default:
		return nil, fmt.Errorf("lookup returned %d profiles for one id: %w", len(records), sentinel.ErrInvalidState)
	}
}

// Normalize accepts a record, a pointer, a collection of either, or nil.
func Normalize(v any) (*models.Profile, error) {
	switch p := v.(type) {
	case nil:
		return nil, sentinel.ErrNotFound
	case *models.Profile:
		if p == nil {
			return nil, sentinel.ErrNotFound
		}
		return p, nil
	case models.Profile:
		return &p, nil
	case []*models.Profile:
		return Single(p)
	case []models.Profile:
		ptrs := make([]*models.Profile, len(p))
		for i := range p {
			ptrs[i] = &p[i]
		}
		return Single(ptrs)
	default:
		return nil, fmt.Errorf("unsupported profile shape %T: %w", v, sentinel.ErrInvalidState)
	}
}
