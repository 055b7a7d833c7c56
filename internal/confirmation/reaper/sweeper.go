package reaper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"signbridge/internal/audit"
	"signbridge/internal/confirmation/models"
	"signbridge/internal/confirmation/ports"
	"signbridge/pkg/platform/sentinel"
)

const defaultBatch = 100

// Sweeper is the idempotent cleanup pass behind the Reaper. Each sweep retries
// identity deletion for recorded orphans and reaps unconfirmed profiles whose
// window lapsed while nobody was polling.
type Sweeper struct {
	profiles   ports.ProfileStore
	identities ports.IdentityDirectory
	ledger     ports.OrphanLedger
	reaper     ports.Reaper
	auditor    ports.AuditPublisher
	logger     *slog.Logger
	interval   time.Duration
	window     time.Duration
	batch      int
	now        func() time.Time
}

type SweeperOption func(*Sweeper)

func WithSweepLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithSweepAuditPublisher(p ports.AuditPublisher) SweeperOption {
	return func(s *Sweeper) {
		s.auditor = p
	}
}

func WithSweepWindow(window time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if window > 0 {
			s.window = window
		}
	}
}

func WithSweepBatch(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.batch = n
		}
	}
}

func WithSweepClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSweeper(profiles ports.ProfileStore, identities ports.IdentityDirectory, ledger ports.OrphanLedger, reaper ports.Reaper, interval time.Duration, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		profiles:   profiles,
		identities: identities,
		ledger:     ledger,
		reaper:     reaper,
		logger:     slog.Default(),
		interval:   interval,
		window:     models.Window,
		batch:      defaultBatch,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SweepResult counts what one pass resolved.
type SweepResult struct {
	OrphansCleared int
	Reaped         int
	Failed         int
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		res := s.Sweep(ctx)
		if res.OrphansCleared+res.Reaped+res.Failed > 0 {
			s.logger.InfoContext(ctx, "confirmation sweep finished",
				"orphans_cleared", res.OrphansCleared,
				"reaped", res.Reaped,
				"failed", res.Failed,
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) Sweep(ctx context.Context) SweepResult {
	var res SweepResult
	s.clearOrphans(ctx, &res)
	s.reapExpired(ctx, &res)
	return res
}

func (s *Sweeper) clearOrphans(ctx context.Context, res *SweepResult) {
	if s.ledger == nil {
		return
	}
	ids, err := s.ledger.List(ctx, s.batch)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list orphaned identities", "error", err)
		return
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		// a profile created since the reap means the identity is in use again
		_, err := s.profiles.FindByID(ctx, id)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			res.Failed++
			continue
		}
		if err == nil {
			s.forget(ctx, id, res, "identity_reclaimed")
			continue
		}

		if err := s.identities.DeleteIdentity(ctx, id); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "orphaned identity still not deletable",
				"identity_id", id,
				"error", err,
			)
			res.Failed++
			continue
		}
		s.forget(ctx, id, res, "identity_deleted")
	}
}

func (s *Sweeper) forget(ctx context.Context, id string, res *SweepResult, reason string) {
	if err := s.ledger.Remove(ctx, id); err != nil {
		s.logger.ErrorContext(ctx, "failed to clear orphan record", "identity_id", id, "error", err)
		res.Failed++
		return
	}
	res.OrphansCleared++
	audit.LogAudit(ctx, s.logger, s.auditor, audit.ActionOrphanCleared,
		"identity_id", id,
		"source", string(models.SourceSweep),
		"reason", reason,
	)
}

func (s *Sweeper) reapExpired(ctx context.Context, res *SweepResult) {
	cutoff := s.now().Add(-s.window)
	ids, err := s.profiles.ListExpiredUnconfirmed(ctx, cutoff, s.batch)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list expired profiles", "error", err)
		return
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		if s.reaper.Reap(ctx, id) {
			res.Reaped++
		} else {
			res.Failed++
		}
	}
}
