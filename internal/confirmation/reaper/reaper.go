// Package reaper removes accounts whose confirmation window lapsed. Profile and
// identity live in different stores, so deletion is two steps; an identity that
// outlives its profile is recorded as an orphan and retried by the Sweeper.
package reaper

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"signbridge/internal/audit"
	"signbridge/internal/confirmation/ports"
	"signbridge/internal/platform/metrics"
	"signbridge/pkg/platform/sentinel"
)

var tracer = otel.Tracer("signbridge/confirmation/reaper")

type Reaper struct {
	profiles   ports.ProfileStore
	identities ports.IdentityDirectory
	ledger     ports.OrphanLedger
	auditor    ports.AuditPublisher
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Reaper)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reaper) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reaper) {
		r.metrics = m
	}
}

func WithAuditPublisher(p ports.AuditPublisher) Option {
	return func(r *Reaper) {
		r.auditor = p
	}
}

// WithOrphanLedger records identities left behind by a failed second step.
func WithOrphanLedger(l ports.OrphanLedger) Option {
	return func(r *Reaper) {
		r.ledger = l
	}
}

func New(profiles ports.ProfileStore, identities ports.IdentityDirectory, opts ...Option) *Reaper {
	r := &Reaper{
		profiles:   profiles,
		identities: identities,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reap deletes the unconfirmed profile, then the identity. Nothing is rolled back
// or retried inline; the result reports whether both records are gone. A profile
// confirmed concurrently is left alone and reported as false.
func (r *Reaper) Reap(ctx context.Context, identityID string) bool {
	ctx, span := tracer.Start(ctx, "confirmation.reap",
		trace.WithAttributes(attribute.String("identity.id", identityID)))
	defer span.End()

	deleted, err := r.profiles.DeleteUnconfirmed(ctx, []string{identityID})
	if err != nil {
		r.fail(ctx, span, identityID, "profile_delete_failed", err)
		return false
	}
	if len(deleted) == 0 {
		_, err := r.profiles.FindByID(ctx, identityID)
		switch {
		case err == nil:
			r.logger.InfoContext(ctx, "profile confirmed before reap, keeping account", "identity_id", identityID)
			span.SetAttributes(attribute.Bool("reap.skipped", true))
			return false
		case !errors.Is(err, sentinel.ErrNotFound):
			r.fail(ctx, span, identityID, "profile_lookup_failed", err)
			return false
		}
	}

	if err := r.identities.DeleteIdentity(ctx, identityID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		r.fail(ctx, span, identityID, "identity_delete_failed", err)
		r.recordOrphan(ctx, identityID)
		return false
	}

	r.metrics.IncReap(true)
	audit.LogAudit(ctx, r.logger, r.auditor, audit.ActionReaped, "identity_id", identityID)
	return true
}

func (r *Reaper) fail(ctx context.Context, span trace.Span, identityID, reason string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	r.metrics.IncReap(false)
	audit.LogAudit(ctx, r.logger, r.auditor, audit.ActionReapFailed,
		"identity_id", identityID,
		"reason", reason,
		"error", err.Error(),
	)
}

func (r *Reaper) recordOrphan(ctx context.Context, identityID string) {
	if r.ledger == nil {
		r.logger.WarnContext(ctx, "orphaned identity left behind", "identity_id", identityID)
		return
	}
	if err := r.ledger.Add(ctx, identityID); err != nil {
		r.logger.ErrorContext(ctx, "failed to record orphaned identity",
			"identity_id", identityID,
			"error", err,
		)
		return
	}
	audit.LogAudit(ctx, r.logger, r.auditor, audit.ActionOrphanRecorded, "identity_id", identityID)
}
