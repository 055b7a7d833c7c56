package service

import (
	"context"
	"time"

	accountmodels "signbridge/internal/account/models"
	"signbridge/internal/audit"
	"signbridge/internal/confirmation/models"
	"signbridge/internal/confirmation/watcher"
	"signbridge/internal/session"
	dErrors "signbridge/pkg/domain-errors"
	"signbridge/pkg/requestcontext"
)

type watch struct {
	watcher   *watcher.Watcher
	startedAt time.Time
	// endedAt is when pruning first saw the watcher terminal.
	endedAt time.Time
}

// StartWatch runs the confirmation watcher for identityID. At most one watcher
// is live per identity; a second call returns the running one. The watcher
// outlives ctx and ends on a terminal transition, SignOut or Close.
func (s *Service) StartWatch(ctx context.Context, identityID string, cb watcher.Callbacks) (accountmodels.WatchView, error) {
	if identityID == "" {
		return accountmodels.WatchView{}, dErrors.New(dErrors.CodeValidation, "identity id is required")
	}
	bg := context.WithoutCancel(ctx)

	s.mu.Lock()
	s.pruneLocked(s.now())
	if existing, ok := s.watchers[identityID]; ok && !existing.watcher.State().Terminal() {
		s.mu.Unlock()
		return viewOf(existing), nil
	}
	w := &watch{startedAt: requestcontext.Now(ctx)}
	w.watcher = watcher.New(identityID, serializedChecker{s}, s.callbacks(bg, identityID, cb), s.watcherOpts...)
	s.watchers[identityID] = w
	s.mu.Unlock()

	if err := w.watcher.Start(bg); err != nil {
		return accountmodels.WatchView{}, dErrors.Wrap(err, dErrors.CodeConflict, "watcher could not start")
	}
	s.logger.InfoContext(ctx, "confirmation watch started",
		"identity_id", identityID,
	)
	return viewOf(w), nil
}

// WatchStatus reports the most recent watcher for identityID, running or not.
func (s *Service) WatchStatus(identityID string) (accountmodels.WatchView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.watchers[identityID]
	if !ok {
		return accountmodels.WatchView{}, false
	}
	return viewOf(w), true
}

func (s *Service) activeWatcher(identityID string) *watcher.Watcher {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.watchers[identityID]
	if !ok || w.watcher.State().Terminal() {
		return nil
	}
	return w.watcher
}

// resolveWatcher reports whether a running watcher took the confirmation.
func (s *Service) resolveWatcher(identityID string, source models.Source) bool {
	w := s.activeWatcher(identityID)
	if w == nil {
		return false
	}
	return w.Confirm(source)
}

// callbacks layers cache, audit and notification side effects over the
// caller's callbacks. Manual confirmations are audited by the override and
// poll expiries by the tracker, so those are not logged twice.
func (s *Service) callbacks(ctx context.Context, identityID string, cb watcher.Callbacks) watcher.Callbacks {
	return watcher.Callbacks{
		OnConfirmed: func(source models.Source) {
			if source != models.SourceManual {
				s.logAudit(ctx, audit.ActionConfirmed,
					"identity_id", identityID,
					"source", string(source),
				)
			}
			s.refreshIfCurrent(ctx, identityID)
			s.notifyIfCurrent(identityID, session.LevelInfo, "Your email address is confirmed.")
			if cb.OnConfirmed != nil {
				cb.OnConfirmed(source)
			}
		},
		OnTimeout: func(source models.Source) {
			if source != models.SourcePoll {
				s.logAudit(ctx, audit.ActionExpired,
					"identity_id", identityID,
					"source", string(source),
				)
			}
			s.notifyIfCurrent(identityID, session.LevelWarning, "The confirmation window has closed. Please sign up again.")
			s.endExpiredSession(ctx, identityID)
			if cb.OnTimeout != nil {
				cb.OnTimeout(source)
			}
		},
		OnError: func(err error) {
			s.logger.WarnContext(ctx, "confirmation poll failed",
				"identity_id", identityID,
				"error", err,
			)
			s.notifyIfCurrent(identityID, session.LevelWarning, "Could not check your confirmation status. Retrying.")
			if cb.OnError != nil {
				cb.OnError(err)
			}
		},
	}
}

// endExpiredSession signs the expired user out; the sweeper removes the
// account records if the poll did not already reap them.
func (s *Service) endExpiredSession(ctx context.Context, identityID string) {
	current := s.cache.Snapshot().Identity
	if current == nil || current.ID != identityID {
		return
	}
	if err := s.provider.SignOut(ctx); err != nil {
		s.logger.WarnContext(ctx, "sign-out after expiry failed",
			"identity_id", identityID,
			"error", err,
		)
	}
	s.cache.Clear()
}

func (s *Service) notifyIfCurrent(identityID string, level session.Level, message string) {
	current := s.cache.Snapshot().Identity
	if current == nil || current.ID != identityID {
		return
	}
	s.cache.Notify(level, message)
}

func viewOf(w *watch) accountmodels.WatchView {
	return accountmodels.WatchView{
		IdentityID:       w.watcher.IdentityID(),
		State:            w.watcher.State().String(),
		RemainingSeconds: int(w.watcher.Remaining() / time.Second),
		StartedAt:        w.startedAt,
	}
}

// serializedChecker routes watcher polls through the service so they share
// in-flight tracker calls with API status checks.
type serializedChecker struct {
	s *Service
}

func (c serializedChecker) CheckStatus(ctx context.Context, identityID string, now time.Time) (models.Status, error) {
	return c.s.checkStatus(ctx, identityID, now)
}
