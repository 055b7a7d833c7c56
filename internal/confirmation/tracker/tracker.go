// Package tracker classifies an identity's confirmation lifecycle as confirmed,
// pending with time left, expired, or missing its profile row.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"signbridge/internal/audit"
	"signbridge/internal/confirmation/models"
	"signbridge/internal/confirmation/ports"
	"signbridge/internal/platform/metrics"
	"signbridge/pkg/platform/sentinel"
)

var tracer = otel.Tracer("signbridge/confirmation/tracker")

// Tracker is stateless apart from its collaborators. It takes no locks; callers
// that need overlapping checks for one identity collapsed must serialize them.
type Tracker struct {
	profiles   ports.ProfileStore
	identities ports.IdentityDirectory
	reaper     ports.Reaper
	auditor    ports.AuditPublisher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	window     time.Duration
	grace      time.Duration
}

type Option func(*Tracker)

func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) {
		t.metrics = m
	}
}

func WithAuditPublisher(p ports.AuditPublisher) Option {
	return func(t *Tracker) {
		t.auditor = p
	}
}

func WithWindow(window time.Duration) Option {
	return func(t *Tracker) {
		if window > 0 {
			t.window = window
		}
	}
}

func New(profiles ports.ProfileStore, identities ports.IdentityDirectory, reaper ports.Reaper, opts ...Option) *Tracker {
	t := &Tracker{
		profiles:   profiles,
		identities: identities,
		reaper:     reaper,
		logger:     slog.Default(),
		window:     models.Window,
		grace:      models.GracePeriod,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// CheckStatus evaluates identityID at now. Absence of a profile or identity is a
// status, not an error; only genuine store or provider failures are returned.
func (t *Tracker) CheckStatus(ctx context.Context, identityID string, now time.Time) (models.Status, error) {
	ctx, span := tracer.Start(ctx, "confirmation.check_status",
		trace.WithAttributes(attribute.String("identity.id", identityID)))
	defer span.End()
	defer t.metrics.ObserveStatusCheck(time.Now())

	profile, err := t.profiles.FindByID(ctx, identityID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return t.checkWithoutProfile(ctx, span, identityID)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "profile lookup failed")
		return models.Status{}, fmt.Errorf("load profile %s: %w", identityID, err)
	}

	if profile.EmailConfirmed {
		span.SetAttributes(attribute.String("confirmation.status", "confirmed"))
		return models.Confirmed(), nil
	}

	sentAt := now.Add(-t.grace)
	if profile.ConfirmationSentAt != nil && !profile.ConfirmationSentAt.IsZero() {
		sentAt = *profile.ConfirmationSentAt
	} else {
		t.logger.WarnContext(ctx, "profile has no confirmation timestamp, applying grace default",
			"identity_id", identityID,
			"grace", t.grace.String(),
		)
	}

	// a timestamp ahead of our clock counts as just sent
	elapsed := max(now.Sub(sentAt), 0)
	if elapsed > t.window {
		reaped := t.reaper.Reap(ctx, identityID)
		if !reaped && t.confirmedSince(ctx, identityID) {
			t.logger.InfoContext(ctx, "profile confirmed while expiring, reporting confirmed",
				"identity_id", identityID,
			)
			span.SetAttributes(attribute.String("confirmation.status", "confirmed"))
			return models.Confirmed(), nil
		}
		span.SetAttributes(attribute.String("confirmation.status", "expired"))
		audit.LogAudit(ctx, t.logger, t.auditor, audit.ActionExpired,
			"identity_id", identityID,
			"source", string(models.SourcePoll),
			"elapsed", elapsed.String(),
			"reaped", reaped,
		)
		return models.Expired(), nil
	}

	left := int((t.window - elapsed) / time.Minute)
	span.SetAttributes(
		attribute.String("confirmation.status", "pending"),
		attribute.Int("confirmation.minutes_left", left),
	)
	return models.Pending(left), nil
}

// confirmedSince re-reads the profile after a reap that removed nothing, so a
// confirmation racing the expiry wins over the stale unconfirmed read.
func (t *Tracker) confirmedSince(ctx context.Context, identityID string) bool {
	current, err := t.profiles.FindByID(ctx, identityID)
	if err != nil {
		return false
	}
	return current.EmailConfirmed
}

func (t *Tracker) checkWithoutProfile(ctx context.Context, span trace.Span, identityID string) (models.Status, error) {
	_, err := t.identities.GetIdentity(ctx, identityID)
	if errors.Is(err, sentinel.ErrNotFound) {
		span.SetAttributes(attribute.String("confirmation.status", "gone"))
		return models.Expired(), nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "identity lookup failed")
		return models.Status{}, fmt.Errorf("load identity %s: %w", identityID, err)
	}
	span.SetAttributes(attribute.String("confirmation.status", "needs_profile"))
	return models.Missing(t.window), nil
}
