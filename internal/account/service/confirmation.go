package service

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"signbridge/internal/confirmation/models"
	"signbridge/internal/confirmation/override"
	"signbridge/internal/session"
	dErrors "signbridge/pkg/domain-errors"
	"signbridge/pkg/platform/sentinel"
	"signbridge/pkg/requestcontext"
)

// CheckEmailConfirmationStatus classifies the identity's confirmation state.
// Overlapping checks for the same id share one tracker call. A terminal answer
// also resolves that identity's watcher, if one is running.
func (s *Service) CheckEmailConfirmationStatus(ctx context.Context, identityID string) (models.Status, error) {
	if identityID == "" {
		return models.Status{}, dErrors.New(dErrors.CodeValidation, "identity id is required")
	}
	status, err := s.checkStatus(ctx, identityID, requestcontext.Now(ctx))
	if err != nil {
		if errors.Is(err, sentinel.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
			return models.Status{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "confirmation status unavailable")
		}
		return models.Status{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check confirmation status")
	}

	switch {
	case status.Confirmed:
		if !s.resolveWatcher(identityID, models.SourcePoll) {
			s.refreshIfStale(ctx, identityID)
		}
	case status.Expired:
		if w := s.activeWatcher(identityID); w != nil {
			w.Expire(models.SourcePoll)
		}
	}
	return status, nil
}

// checkStatus shares one tracker call between overlapping checks. The shared
// call runs on a context detached from whichever caller started it, so one
// caller going away neither fails the others nor cuts a reap short; each caller
// still stops waiting when its own ctx ends.
func (s *Service) checkStatus(ctx context.Context, identityID string, now time.Time) (models.Status, error) {
	shared := context.WithoutCancel(ctx)
	ch := s.checks.DoChan(identityID, func() (any, error) {
		callCtx, cancel := context.WithTimeout(shared, statusCheckTimeout)
		defer cancel()
		return s.tracker.CheckStatus(callCtx, identityID, now)
	})
	select {
	case <-ctx.Done():
		return models.Status{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return models.Status{}, res.Err
		}
		return res.Val.(models.Status), nil
	}
}

// ManuallyConfirmUserEmail force-confirms the identity. Triggers closer together
// than the debounce interval are rejected before reaching the override.
func (s *Service) ManuallyConfirmUserEmail(ctx context.Context, identityID string) (override.Result, error) {
	if identityID == "" {
		return override.Result{}, dErrors.New(dErrors.CodeValidation, "identity id is required")
	}
	if !s.limiter(identityID).Allow() {
		return override.Result{}, dErrors.New(dErrors.CodeTooManyRequests, "confirmation was just requested, try again shortly")
	}

	res, err := s.override.ManualConfirm(ctx, identityID)
	if err != nil {
		return override.Result{}, err
	}

	if !s.resolveWatcher(identityID, models.SourceManual) {
		s.metrics.IncConfirmed(string(models.SourceManual))
	}
	s.cache.SetProfile(res.Profile)
	s.refreshIfCurrent(ctx, identityID)
	return res, nil
}

// RefreshProfile re-reads identity and profile into the cache. On failure the
// previous state is kept and returned alongside the error.
func (s *Service) RefreshProfile(ctx context.Context) (session.State, error) {
	if err := s.cache.Refresh(ctx); err != nil {
		return s.cache.Snapshot(), dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to refresh profile")
	}
	return s.cache.Snapshot(), nil
}

func (s *Service) CurrentState() session.State {
	return s.cache.Snapshot()
}

func (s *Service) DismissNotification(id string) error {
	if !s.cache.Dismiss(id) {
		return dErrors.New(dErrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *Service) limiter(identityID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.pruneLocked(now)
	d, ok := s.limiters[identityID]
	if !ok {
		d = &debounced{limiter: rate.NewLimiter(rate.Every(s.debounce), 1)}
		s.limiters[identityID] = d
	}
	d.lastUsed = now
	return d.limiter
}

// refreshIfStale refreshes the cache only when it still shows the signed-in
// user's profile as unconfirmed.
func (s *Service) refreshIfStale(ctx context.Context, identityID string) {
	state := s.cache.Snapshot()
	if state.Profile != nil && state.Profile.ID == identityID && state.Profile.EmailConfirmed {
		return
	}
	s.refreshIfCurrent(ctx, identityID)
}
