// Package override confirms an account on explicit request, skipping the
// confirmation window check.
package override

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"signbridge/internal/audit"
	confmodels "signbridge/internal/confirmation/models"
	"signbridge/internal/confirmation/ports"
	"signbridge/internal/identity"
	"signbridge/internal/profile/models"
	dErrors "signbridge/pkg/domain-errors"
	"signbridge/pkg/platform/sentinel"
	"signbridge/pkg/requestcontext"
)

var tracer = otel.Tracer("signbridge/confirmation/override")

// Phase is the per-identity progress of a manual confirmation.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseChecking
	PhaseConfirming
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseChecking:
		return "checking"
	case PhaseConfirming:
		return "confirming"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

// Synthesizer creates a profile for an identity that has none.
type Synthesizer interface {
	Synthesize(ctx context.Context, ident *identity.Identity, confirmed bool, now time.Time) (*models.Profile, error)
}

type Result struct {
	Success  bool               `json:"success"`
	Identity *identity.Identity `json:"user,omitempty"`
	Profile  *models.Profile    `json:"profile,omitempty"`
}

type Override struct {
	profiles   ports.ProfileStore
	identities ports.IdentityDirectory
	synth      Synthesizer
	auditor    ports.AuditPublisher
	logger     *slog.Logger

	mu     sync.Mutex
	phases map[string]*atomic.Int32
}

type Option func(*Override)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Override) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithAuditPublisher(p ports.AuditPublisher) Option {
	return func(o *Override) {
		o.auditor = p
	}
}

func New(profiles ports.ProfileStore, identities ports.IdentityDirectory, synth Synthesizer, opts ...Option) *Override {
	o := &Override{
		profiles:   profiles,
		identities: identities,
		synth:      synth,
		logger:     slog.Default(),
		phases:     make(map[string]*atomic.Int32),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Phase reports where the identity's manual confirmation currently stands. An
// identity with no confirmation in flight reads as idle.
func (o *Override) Phase(identityID string) Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.phases[identityID]
	if !ok {
		return PhaseIdle
	}
	return Phase(p.Load())
}

// begin looks up and acquires the identity's phase under one lock, so a caller
// can never acquire a phase that finish has already dropped.
func (o *Override) begin(identityID string) (*atomic.Int32, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.phases[identityID]
	if !ok {
		p = new(atomic.Int32)
		o.phases[identityID] = p
	}
	return p, acquire(p)
}

// finish records the final phase and forgets the identity; only calls in
// flight keep an entry.
func (o *Override) finish(identityID string, p *atomic.Int32, final Phase) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p.Store(int32(final))
	if o.phases[identityID] == p {
		delete(o.phases, identityID)
	}
}

// acquire moves the phase from Idle or Done to Checking. A call already past that
// point loses the swap and is rejected.
func acquire(p *atomic.Int32) bool {
	for {
		cur := Phase(p.Load())
		if cur == PhaseChecking || cur == PhaseConfirming {
			return false
		}
		if p.CompareAndSwap(int32(cur), int32(PhaseChecking)) {
			return true
		}
	}
}

// ManualConfirm marks the identity's profile confirmed, creating the profile
// confirmed when it does not exist. Repeating it on a confirmed profile returns
// that profile unchanged. A concurrent call for the same identity is rejected
// with CodeConflict.
func (o *Override) ManualConfirm(ctx context.Context, identityID string) (Result, error) {
	ctx, span := tracer.Start(ctx, "confirmation.manual_confirm",
		trace.WithAttributes(attribute.String("identity.id", identityID)))
	defer span.End()

	phase, ok := o.begin(identityID)
	if !ok {
		span.SetAttributes(attribute.Bool("confirmation.rejected", true))
		return Result{}, dErrors.New(dErrors.CodeConflict, "confirmation already in flight")
	}

	res, err := o.confirm(ctx, phase, identityID)
	if err != nil {
		o.finish(identityID, phase, PhaseIdle)
		span.RecordError(err)
		span.SetStatus(codes.Error, "manual confirmation failed")
		return Result{}, err
	}
	o.finish(identityID, phase, PhaseDone)
	return res, nil
}

func (o *Override) confirm(ctx context.Context, phase *atomic.Int32, identityID string) (Result, error) {
	ident, err := o.identities.GetIdentity(ctx, identityID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Result{}, dErrors.New(dErrors.CodeNotFound, "account not found")
	}
	if err != nil {
		return Result{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load account")
	}

	existing, err := o.profiles.FindByID(ctx, identityID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return Result{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load profile")
	}

	phase.Store(int32(PhaseConfirming))
	now := requestcontext.Now(ctx)

	if existing != nil && existing.EmailConfirmed {
		return Result{Success: true, Identity: ident, Profile: existing}, nil
	}

	var profile *models.Profile
	if existing != nil {
		profile, err = o.profiles.Update(ctx, identityID, models.ConfirmUpdate(now))
		if err != nil {
			return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to confirm profile")
		}
	} else {
		profile, err = o.synth.Synthesize(ctx, ident, true, now)
		if err != nil {
			return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create confirmed profile")
		}
	}

	audit.LogAudit(ctx, o.logger, o.auditor, audit.ActionConfirmed,
		"identity_id", identityID,
		"source", string(confmodels.SourceManual),
		"created_profile", existing == nil,
	)
	return Result{Success: true, Identity: ident, Profile: profile}, nil
}
