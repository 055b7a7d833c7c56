package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"signbridge/internal/account/models"
	"signbridge/internal/audit"
	cmodels "signbridge/internal/confirmation/models"
	"signbridge/internal/confirmation/override"
	"signbridge/internal/confirmation/reaper"
	"signbridge/internal/confirmation/reconcile"
	"signbridge/internal/confirmation/tracker"
	"signbridge/internal/confirmation/watcher"
	"signbridge/internal/identity"
	"signbridge/internal/pending"
	"signbridge/internal/platform/logger"
	"signbridge/internal/profile/rollnumber"
	"signbridge/internal/profile/store"
	"signbridge/internal/session"
	dErrors "signbridge/pkg/domain-errors"
	"signbridge/pkg/platform/sentinel"
	"signbridge/pkg/requestcontext"
)

type recordedCallbacks struct {
	mu        sync.Mutex
	confirmed []cmodels.Source
	timeouts  []cmodels.Source
}

func (r *recordedCallbacks) callbacks() watcher.Callbacks {
	return watcher.Callbacks{
		OnConfirmed: func(source cmodels.Source) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.confirmed = append(r.confirmed, source)
		},
		OnTimeout: func(source cmodels.Source) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.timeouts = append(r.timeouts, source)
		},
	}
}

func (r *recordedCallbacks) snapshot() ([]cmodels.Source, []cmodels.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]cmodels.Source(nil), r.confirmed...), append([]cmodels.Source(nil), r.timeouts...)
}

type ServiceSuite struct {
	suite.Suite
	ctx      context.Context
	provider *identity.InMemoryProvider
	profiles *store.InMemoryStore
	pending  *pending.InMemoryStore
	trail    *audit.InMemoryStore
	cache    *session.Cache
	svc      *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	log := logger.Discard()
	s.provider = identity.NewInMemoryProvider()
	s.profiles = store.NewInMemory()
	s.pending = pending.NewInMemory()
	s.trail = audit.NewInMemoryStore(100)
	publisher := audit.NewPublisher(s.trail)

	allocator := rollnumber.New(s.profiles, rollnumber.WithLogger(log))
	engine := reconcile.New(s.profiles, s.pending, allocator,
		reconcile.WithLogger(log), reconcile.WithAuditPublisher(publisher))
	rp := reaper.New(s.profiles, s.provider, reaper.WithLogger(log), reaper.WithAuditPublisher(publisher))
	tr := tracker.New(s.profiles, s.provider, rp, tracker.WithLogger(log), tracker.WithAuditPublisher(publisher))
	ov := override.New(s.profiles, s.provider, engine, override.WithLogger(log), override.WithAuditPublisher(publisher))
	s.cache = session.New(s.provider, s.profiles, engine, session.WithLogger(log))

	s.svc = New(s.provider, s.pending, s.profiles, engine, tr, ov, s.cache,
		WithLogger(log),
		WithAuditPublisher(publisher),
		WithManualDebounce(20*time.Millisecond),
		// only the initial poll runs during a test
		WithWatcherOptions(watcher.WithIntervals(time.Hour, time.Hour), watcher.WithLogger(log)),
	)
}

func (s *ServiceSuite) TearDownTest() {
	s.svc.Close()
}

func (s *ServiceSuite) signUp(ctx context.Context) *models.AuthResult {
	res, err := s.svc.SignUp(ctx, &models.SignUpRequest{
		Email:      "  Ada@Example.com ",
		Password:   "correct horse",
		Name:       "Ada",
		Role:       "interpreter",
		Attributes: map[string]string{"sign_language": "BSL"},
	})
	s.Require().NoError(err)
	return res
}

func (s *ServiceSuite) actions(identityID string) []audit.Action {
	events, err := s.trail.ListByIdentity(s.ctx, identityID)
	s.Require().NoError(err)
	out := make([]audit.Action, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Action)
	}
	return out
}

func (s *ServiceSuite) TestSignUpCreatesUnconfirmedProfile() {
	res := s.signUp(s.ctx)

	s.Equal("ada@example.com", res.Identity.Email)
	s.Require().NotNil(res.Profile)
	s.False(res.Profile.EmailConfirmed)
	s.NotNil(res.Profile.ConfirmationSentAt)
	s.Equal("interpreter", string(res.Profile.Role))
	s.Equal("BSL", res.Profile.Attributes["sign_language"])
	s.NotEmpty(res.Session.Token)

	_, err := s.pending.Get(s.ctx, res.Identity.ID)
	s.ErrorIs(err, sentinel.ErrNotFound, "pending payload is dropped once the profile exists")

	state := s.cache.Snapshot()
	s.Require().NotNil(state.Profile)
	s.Equal(res.Profile.RollNumber, state.Profile.RollNumber)
	s.Contains(s.actions(res.Identity.ID), audit.ActionSignedUp)
}

func (s *ServiceSuite) TestSignUpRejectsDuplicateAndInvalid() {
	s.signUp(s.ctx)

	_, err := s.svc.SignUp(s.ctx, &models.SignUpRequest{Email: "ada@example.com", Password: "another pass", Name: "Ada"})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	_, err = s.svc.SignUp(s.ctx, &models.SignUpRequest{Email: "bob@example.com", Password: "short", Name: "Bob"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.svc.SignUp(s.ctx, &models.SignUpRequest{Email: "not-an-email", Password: "long enough", Name: "Bob"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestSignInAndOut() {
	res := s.signUp(s.ctx)
	s.Require().NoError(s.svc.SignOut(s.ctx))
	s.Nil(s.cache.Snapshot().Identity)

	_, err := s.svc.SignIn(s.ctx, &models.SignInRequest{Email: "ada@example.com", Password: "wrong password"})
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	in, err := s.svc.SignIn(s.ctx, &models.SignInRequest{Email: "ADA@example.com", Password: "correct horse"})
	s.Require().NoError(err)
	s.Equal(res.Identity.ID, in.Identity.ID)
	s.Equal(res.Profile.RollNumber, in.Profile.RollNumber)
	s.Equal(res.Identity.ID, s.cache.Snapshot().Identity.ID)
	s.Contains(s.actions(res.Identity.ID), audit.ActionSignedOut)
}

func (s *ServiceSuite) TestStatusWithinWindow() {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	res := s.signUp(requestcontext.WithTime(s.ctx, t0))

	status, err := s.svc.CheckEmailConfirmationStatus(requestcontext.WithTime(s.ctx, t0.Add(200*time.Second)), res.Identity.ID)
	s.Require().NoError(err)
	s.False(status.Confirmed)
	s.False(status.Expired)
	s.Require().NotNil(status.MinutesLeft)
	s.Equal(6, *status.MinutesLeft)
}

func (s *ServiceSuite) TestStatusPastWindowReapsAccount() {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	res := s.signUp(requestcontext.WithTime(s.ctx, t0))

	status, err := s.svc.CheckEmailConfirmationStatus(requestcontext.WithTime(s.ctx, t0.Add(650*time.Second)), res.Identity.ID)
	s.Require().NoError(err)
	s.True(status.Expired)

	_, err = s.profiles.FindByID(s.ctx, res.Identity.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.provider.GetIdentity(s.ctx, res.Identity.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.Nil(s.cache.Snapshot().Identity, "deleting the identity ends its session")
	s.Contains(s.actions(res.Identity.ID), audit.ActionReaped)
}

func (s *ServiceSuite) TestStatusRequiresIdentity() {
	_, err := s.svc.CheckEmailConfirmationStatus(s.ctx, "")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestManualConfirmDebounceAndIdempotence() {
	res := s.signUp(s.ctx)

	first, err := s.svc.ManuallyConfirmUserEmail(s.ctx, res.Identity.ID)
	s.Require().NoError(err)
	s.True(first.Success)
	s.True(first.Profile.EmailConfirmed)
	s.True(s.cache.Snapshot().Profile.EmailConfirmed)

	_, err = s.svc.ManuallyConfirmUserEmail(s.ctx, res.Identity.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeTooManyRequests))

	time.Sleep(30 * time.Millisecond)
	second, err := s.svc.ManuallyConfirmUserEmail(s.ctx, res.Identity.ID)
	s.Require().NoError(err)
	s.True(second.Profile.EmailConfirmed)
	s.Equal(first.Profile.RollNumber, second.Profile.RollNumber)

	status, err := s.svc.CheckEmailConfirmationStatus(s.ctx, res.Identity.ID)
	s.Require().NoError(err)
	s.True(status.Confirmed)
}

func (s *ServiceSuite) TestManualConfirmUnknownIdentity() {
	_, err := s.svc.ManuallyConfirmUserEmail(s.ctx, "missing")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestManualConfirmResolvesRunningWatch() {
	res := s.signUp(s.ctx)
	rec := &recordedCallbacks{}

	view, err := s.svc.StartWatch(s.ctx, res.Identity.ID, rec.callbacks())
	s.Require().NoError(err)
	s.Equal(watcher.StateWatching.String(), view.State)

	again, err := s.svc.StartWatch(s.ctx, res.Identity.ID, watcher.Callbacks{})
	s.Require().NoError(err)
	s.Equal(view.StartedAt, again.StartedAt, "one watcher per identity")

	_, err = s.svc.ManuallyConfirmUserEmail(s.ctx, res.Identity.ID)
	s.Require().NoError(err)

	confirmed, timeouts := rec.snapshot()
	s.Equal([]cmodels.Source{cmodels.SourceManual}, confirmed)
	s.Empty(timeouts)

	got, ok := s.svc.WatchStatus(res.Identity.ID)
	s.Require().True(ok)
	s.Equal(watcher.StateConfirmed.String(), got.State)

	notes := s.cache.Snapshot().Notifications
	s.Require().NotEmpty(notes)
	s.Equal(session.LevelInfo, notes[len(notes)-1].Level)
}

func (s *ServiceSuite) TestProviderVerificationConfirmsProfile() {
	res := s.signUp(s.ctx)
	rec := &recordedCallbacks{}
	_, err := s.svc.StartWatch(s.ctx, res.Identity.ID, rec.callbacks())
	s.Require().NoError(err)

	s.Require().NoError(s.provider.VerifyEmail(s.ctx, res.Identity.ID))

	p, err := s.profiles.FindByID(s.ctx, res.Identity.ID)
	s.Require().NoError(err)
	s.True(p.EmailConfirmed)
	confirmed, _ := rec.snapshot()
	s.Equal([]cmodels.Source{cmodels.SourceProvider}, confirmed)
	s.True(s.cache.Snapshot().Profile.EmailConfirmed)
	s.Contains(s.actions(res.Identity.ID), audit.ActionConfirmed)
}

func (s *ServiceSuite) TestSignOutStopsWatch() {
	res := s.signUp(s.ctx)
	rec := &recordedCallbacks{}
	_, err := s.svc.StartWatch(s.ctx, res.Identity.ID, rec.callbacks())
	s.Require().NoError(err)

	s.Require().NoError(s.svc.SignOut(s.ctx))

	got, ok := s.svc.WatchStatus(res.Identity.ID)
	s.Require().True(ok)
	s.Equal(watcher.StateStopped.String(), got.State)
	confirmed, timeouts := rec.snapshot()
	s.Empty(confirmed)
	s.Empty(timeouts)
}

func (s *ServiceSuite) TestRefreshAndDismiss() {
	s.signUp(s.ctx)
	state, err := s.svc.RefreshProfile(s.ctx)
	s.Require().NoError(err)
	s.NotNil(state.Profile)

	n := s.cache.Notify(session.LevelInfo, "hello")
	s.Require().NoError(s.svc.DismissNotification(n.ID))
	err = s.svc.DismissNotification(n.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestProviderErrorCodes(t *testing.T) {
	cases := map[error]dErrors.Code{
		sentinel.ErrNotFound:     dErrors.CodeNotFound,
		sentinel.ErrInvalidState: dErrors.CodeValidation,
		sentinel.ErrExpired:      dErrors.CodeUnauthorized,
		sentinel.ErrUnavailable:  dErrors.CodeUnavailable,
		context.Canceled:         dErrors.CodeInternal,
	}
	for in, want := range cases {
		require.Equal(t, want, dErrors.CodeOf(providerError(in, "op failed")), in.Error())
	}
}

// blockingChecker holds every tracker call until release is closed, or until
// the call's own context ends.
type blockingChecker struct {
	calls   atomic.Int32
	started chan struct{}
	once    sync.Once
	release chan struct{}
}

func (b *blockingChecker) CheckStatus(ctx context.Context, _ string, _ time.Time) (cmodels.Status, error) {
	b.calls.Add(1)
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
		return cmodels.Pending(4), nil
	case <-ctx.Done():
		return cmodels.Status{}, ctx.Err()
	}
}

func (s *ServiceSuite) TestCancelledCallerDoesNotFailSharedCheck() {
	checker := &blockingChecker{started: make(chan struct{}), release: make(chan struct{})}
	svc := New(s.provider, s.pending, s.profiles, nil, checker, nil, s.cache, WithLogger(logger.Discard()))
	defer svc.Close()

	requestCtx, cancel := context.WithCancel(s.ctx)
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.checkStatus(requestCtx, "id-1", time.Now())
		firstErr <- err
	}()
	<-checker.started

	cancel()
	s.ErrorIs(<-firstErr, context.Canceled, "the cancelled caller stops waiting")

	time.AfterFunc(50*time.Millisecond, func() { close(checker.release) })
	status, err := svc.checkStatus(context.WithoutCancel(s.ctx), "id-1", time.Now())
	s.Require().NoError(err, "a caller joined to the flight is unaffected")
	s.Require().NotNil(status.MinutesLeft)
	s.Equal(4, *status.MinutesLeft)
	s.Equal(int32(1), checker.calls.Load(), "both callers shared one tracker call")
}

func (s *ServiceSuite) TestIdleLimitersArePruned() {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.svc.now = func() time.Time { return base }
	s.svc.limiter("id-a")
	s.svc.now = func() time.Time { return base.Add(time.Second) }
	s.svc.limiter("id-b")

	s.svc.mu.Lock()
	defer s.svc.mu.Unlock()
	s.NotContains(s.svc.limiters, "id-a")
	s.Contains(s.svc.limiters, "id-b")
}

func (s *ServiceSuite) TestFinishedWatchersArePruned() {
	res := s.signUp(s.ctx)
	_, err := s.svc.StartWatch(s.ctx, res.Identity.ID, watcher.Callbacks{})
	s.Require().NoError(err)
	s.Require().NoError(s.svc.SignOut(s.ctx))

	prune := func(at time.Time) {
		s.svc.mu.Lock()
		defer s.svc.mu.Unlock()
		s.svc.pruneLocked(at)
	}
	base := time.Now()

	prune(base)
	_, ok := s.svc.WatchStatus(res.Identity.ID)
	s.True(ok, "a finished watcher stays visible for a while")

	prune(base.Add(watchRetention + time.Second))
	_, ok = s.svc.WatchStatus(res.Identity.ID)
	s.False(ok)
}
