// Package ports declares the collaborators the confirmation lifecycle depends on.
package ports

//go:generate mockgen -source=ports.go -destination=../mocks/mocks.go -package=mocks ProfileStore,IdentityDirectory,PendingStore,RollNumberAllocator,Reaper,OrphanLedger,AuditPublisher

import (
	"context"
	"time"

	"signbridge/internal/audit"
	"signbridge/internal/identity"
	"signbridge/internal/profile/models"
)

type ProfileStore interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
	Upsert(ctx context.Context, p *models.Profile) error
	Update(ctx context.Context, id string, u models.Update) (*models.Profile, error)
	DeleteUnconfirmed(ctx context.Context, ids []string) ([]string, error)
	ListExpiredUnconfirmed(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// IdentityDirectory is the admin side of the identity provider.
type IdentityDirectory interface {
	GetIdentity(ctx context.Context, id string) (*identity.Identity, error)
	DeleteIdentity(ctx context.Context, id string) error
}

type PendingStore interface {
	Get(ctx context.Context, identityID string) (*models.PendingSignup, error)
	Delete(ctx context.Context, identityID string) error
}

type RollNumberAllocator interface {
	Allocate(ctx context.Context) (string, error)
}

type Reaper interface {
	Reap(ctx context.Context, identityID string) bool
}

// OrphanLedger remembers identities whose profile is gone but whose identity
// record could not be deleted yet.
type OrphanLedger interface {
	Add(ctx context.Context, identityID string) error
	List(ctx context.Context, limit int) ([]string, error)
	Remove(ctx context.Context, identityID string) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, ev audit.Event) error
}
