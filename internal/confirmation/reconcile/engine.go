// Package reconcile makes sure every identity has a profile row, deriving one
// from identity metadata and any pending signup payload when it is missing.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"signbridge/internal/audit"
	"signbridge/internal/confirmation/ports"
	"signbridge/internal/identity"
	"signbridge/internal/platform/metrics"
	"signbridge/internal/profile/models"
	"signbridge/pkg/email"
	"signbridge/pkg/platform/sentinel"
	"signbridge/pkg/requestcontext"
)

var tracer = otel.Tracer("signbridge/confirmation/reconcile")

// maxRollNumberAttempts bounds how often a roll number lost to a concurrent
// insert is redrawn before giving up.
const maxRollNumberAttempts = 3

type Engine struct {
	profiles  ports.ProfileStore
	pending   ports.PendingStore
	allocator ports.RollNumberAllocator
	auditor   ports.AuditPublisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithAuditPublisher(p ports.AuditPublisher) Option {
	return func(e *Engine) {
		e.auditor = p
	}
}

func New(profiles ports.ProfileStore, pending ports.PendingStore, allocator ports.RollNumberAllocator, opts ...Option) *Engine {
	e := &Engine{
		profiles:  profiles,
		pending:   pending,
		allocator: allocator,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EnsureProfile returns the identity's profile, creating it when absent. It never
// fails the caller: any error is logged and reported as a nil profile so the
// session can proceed without one.
func (e *Engine) EnsureProfile(ctx context.Context, ident *identity.Identity) *models.Profile {
	if ident == nil || ident.ID == "" {
		return nil
	}
	ctx, span := tracer.Start(ctx, "confirmation.ensure_profile",
		trace.WithAttributes(attribute.String("identity.id", ident.ID)))
	defer span.End()

	existing, err := e.profiles.FindByID(ctx, ident.ID)
	if err == nil {
		return existing
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "profile lookup failed")
		e.logger.ErrorContext(ctx, "profile lookup failed during reconciliation",
			"identity_id", ident.ID,
			"error", err,
		)
		return nil
	}

	created, err := e.Synthesize(ctx, ident, ident.EmailVerified, requestcontext.Now(ctx))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "profile synthesis failed")
		e.logger.ErrorContext(ctx, "profile reconciliation failed",
			"identity_id", ident.ID,
			"error", err,
		)
		return nil
	}
	return created
}

// Synthesize derives a profile for ident, persists it and clears the pending
// payload. The confirmation clock starts at now; confirmed profiles are stamped
// confirmed at now as well.
func (e *Engine) Synthesize(ctx context.Context, ident *identity.Identity, confirmed bool, now time.Time) (*models.Profile, error) {
	if ident == nil || ident.ID == "" {
		return nil, fmt.Errorf("identity is required: %w", sentinel.ErrInvalidState)
	}

	p := &models.Profile{
		ID:                 ident.ID,
		Email:              ident.Email,
		Name:               strings.TrimSpace(ident.Metadata.Name),
		Role:               models.ParseRole(ident.Metadata.Role),
		ConfirmationSentAt: &now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if confirmed {
		p.EmailConfirmed = true
		p.EmailConfirmedAt = &now
	}

	payload, err := e.pending.Get(ctx, ident.ID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		payload = nil
	case err != nil:
		e.logger.WarnContext(ctx, "pending signup unreadable, deriving profile from identity only",
			"identity_id", ident.ID,
			"error", err,
		)
		payload = nil
	default:
		payload.MergeInto(p)
	}
	if p.Name == "" {
		p.Name = email.DisplayName(p.Email)
	}

	if err := e.insert(ctx, p); err != nil {
		return nil, err
	}

	if payload != nil {
		if err := e.pending.Delete(ctx, ident.ID); err != nil {
			e.logger.WarnContext(ctx, "failed to clear pending signup",
				"identity_id", ident.ID,
				"error", err,
			)
		}
	}

	e.metrics.IncSynthesized()
	audit.LogAudit(ctx, e.logger, e.auditor, audit.ActionProfileSynthesized,
		"identity_id", p.ID,
		"role", string(p.Role),
		"roll_number", p.RollNumber,
		"confirmed", p.EmailConfirmed,
		"from_pending", payload != nil,
	)
	return p, nil
}

func (e *Engine) insert(ctx context.Context, p *models.Profile) error {
	var lastErr error
	for range maxRollNumberAttempts {
		roll, err := e.allocator.Allocate(ctx)
		if err != nil {
			return fmt.Errorf("allocate roll number: %w", err)
		}
		p.RollNumber = roll
		lastErr = e.profiles.Upsert(ctx, p)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, sentinel.ErrConflict) {
			return fmt.Errorf("upsert profile %s: %w", p.ID, lastErr)
		}
		e.logger.WarnContext(ctx, "roll number taken concurrently, redrawing",
			"identity_id", p.ID,
			"roll_number", roll,
		)
	}
	return fmt.Errorf("upsert profile %s: %w", p.ID, lastErr)
}
