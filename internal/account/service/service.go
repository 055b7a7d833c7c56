// Package service is the facade the presentation layer talks to. It sequences
// the identity provider, reconciliation, confirmation tracking and the session
// cache, and owns the per-identity confirmation watchers.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"signbridge/internal/audit"
	"signbridge/internal/confirmation/models"
	"signbridge/internal/confirmation/override"
	"signbridge/internal/confirmation/watcher"
	"signbridge/internal/identity"
	"signbridge/internal/platform/metrics"
	profile "signbridge/internal/profile/models"
	"signbridge/internal/session"
	"signbridge/pkg/platform/sentinel"
	"signbridge/pkg/requestcontext"
)

// DefaultManualDebounce is the minimum spacing between manual confirmation
// triggers for one identity.
const DefaultManualDebounce = 2 * time.Second

const (
	// statusCheckTimeout bounds a shared tracker call, which runs detached from
	// the caller that started it.
	statusCheckTimeout = 15 * time.Second
	// watchRetention is how long a finished watcher stays visible to WatchStatus.
	watchRetention = 5 * time.Minute
)

type IdentityProvider interface {
	CreateAccount(ctx context.Context, email, password string, meta identity.Metadata) (*identity.Identity, error)
	Authenticate(ctx context.Context, email, password string) (*identity.Session, error)
	SignOut(ctx context.Context) error
	GetIdentity(ctx context.Context, id string) (*identity.Identity, error)
	Subscribe(handler identity.Handler) func()
}

type PendingStore interface {
	Set(ctx context.Context, ps *profile.PendingSignup) error
}

type ProfileStore interface {
	FindByID(ctx context.Context, id string) (*profile.Profile, error)
	Update(ctx context.Context, id string, u profile.Update) (*profile.Profile, error)
}

type Reconciler interface {
	EnsureProfile(ctx context.Context, ident *identity.Identity) *profile.Profile
}

type StatusChecker interface {
	CheckStatus(ctx context.Context, identityID string, now time.Time) (models.Status, error)
}

type ManualConfirmer interface {
	ManualConfirm(ctx context.Context, identityID string) (override.Result, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, ev audit.Event) error
}

// Service is safe for concurrent use.
type Service struct {
	provider   IdentityProvider
	pending    PendingStore
	profiles   ProfileStore
	reconciler Reconciler
	tracker    StatusChecker
	override   ManualConfirmer
	cache      *session.Cache

	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher AuditPublisher
	debounce       time.Duration
	watcherOpts    []watcher.Option

	checks singleflight.Group

	mu          sync.Mutex
	limiters    map[string]*debounced
	watchers    map[string]*watch
	unsubscribe func()
	now         func() time.Time
}

type debounced struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithManualDebounce overrides the spacing between manual triggers.
func WithManualDebounce(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// WithWatcherOptions is applied to every watcher the service starts.
func WithWatcherOptions(opts ...watcher.Option) Option {
	return func(s *Service) {
		s.watcherOpts = append(s.watcherOpts, opts...)
	}
}

// New constructs the facade and subscribes it to provider lifecycle events.
// Call Close to unsubscribe and stop running watchers.
func New(
	provider IdentityProvider,
	pending PendingStore,
	profiles ProfileStore,
	reconciler Reconciler,
	tracker StatusChecker,
	manual ManualConfirmer,
	cache *session.Cache,
	opts ...Option,
) *Service {
	s := &Service{
		provider:   provider,
		pending:    pending,
		profiles:   profiles,
		reconciler: reconciler,
		tracker:    tracker,
		override:   manual,
		cache:      cache,
		logger:     slog.Default(),
		debounce:   DefaultManualDebounce,
		limiters:   make(map[string]*debounced),
		watchers:   make(map[string]*watch),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.unsubscribe = provider.Subscribe(s.handleEvent)
	return s
}

// Close unsubscribes from the provider and stops every running watcher.
func (s *Service) Close() {
	s.unsubscribe()
	s.mu.Lock()
	running := make([]*watcher.Watcher, 0, len(s.watchers))
	for _, w := range s.watchers {
		running = append(running, w.watcher)
	}
	s.mu.Unlock()
	for _, w := range running {
		w.Stop()
	}
}

// pruneLocked drops limiters idle for longer than the debounce interval, whose
// next trigger would be allowed anyway, and watchers that ended more than
// watchRetention ago. s.mu must be held.
func (s *Service) pruneLocked(now time.Time) {
	for id, d := range s.limiters {
		if now.Sub(d.lastUsed) > s.debounce {
			delete(s.limiters, id)
		}
	}
	for id, w := range s.watchers {
		if !w.watcher.State().Terminal() {
			continue
		}
		if w.endedAt.IsZero() {
			w.endedAt = now
			continue
		}
		if now.Sub(w.endedAt) > watchRetention {
			delete(s.watchers, id)
		}
	}
}

// handleEvent keeps the profile store in step with provider-side verification
// before letting the cache re-read.
func (s *Service) handleEvent(ctx context.Context, ev identity.Event) {
	if ev.Type == identity.EventUserUpdated && ev.Identity != nil && ev.Identity.EmailVerified {
		s.syncVerification(ctx, ev.Identity.ID)
	}
	s.cache.HandleEvent(ctx, ev)
}

func (s *Service) syncVerification(ctx context.Context, identityID string) {
	p, err := s.profiles.FindByID(ctx, identityID)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "verification sync could not load profile",
				"identity_id", identityID,
				"error", err,
			)
		}
		return
	}
	if p.EmailConfirmed {
		return
	}
	if _, err := s.profiles.Update(ctx, identityID, profile.ConfirmUpdate(requestcontext.Now(ctx))); err != nil {
		s.logger.WarnContext(ctx, "verification sync failed",
			"identity_id", identityID,
			"error", err,
		)
		return
	}
	if !s.resolveWatcher(identityID, models.SourceProvider) {
		s.metrics.IncConfirmed(string(models.SourceProvider))
		s.logAudit(ctx, audit.ActionConfirmed,
			"identity_id", identityID,
			"source", string(models.SourceProvider),
		)
	}
}

// refreshIfCurrent re-reads the cache when identityID is the signed-in user.
func (s *Service) refreshIfCurrent(ctx context.Context, identityID string) {
	state := s.cache.Snapshot()
	if state.Identity == nil || state.Identity.ID != identityID {
		return
	}
	if err := s.cache.Refresh(ctx); err != nil {
		s.logger.WarnContext(ctx, "cache refresh after lifecycle change failed",
			"identity_id", identityID,
			"error", err,
		)
	}
}

func (s *Service) logAudit(ctx context.Context, action audit.Action, attrs ...any) {
	var publisher audit.Emitter
	if s.auditPublisher != nil {
		publisher = s.auditPublisher
	}
	audit.LogAudit(ctx, s.logger, publisher, action, attrs...)
}
