// Package session holds the process-wide view of the current user. Every
// lifecycle mutation is funnelled through the Cache's entry points, and readers
// only ever see copies.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"signbridge/internal/identity"
	"signbridge/internal/profile"
	"signbridge/internal/profile/models"
	"signbridge/pkg/platform/sentinel"
)

const DefaultMaxNotifications = 20

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a transient, dismissible message for the presentation layer.
type Notification struct {
	ID      string    `json:"id"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// State is a point-in-time copy of the cache.
type State struct {
	Identity      *identity.Identity `json:"user"`
	Profile       *models.Profile    `json:"profile"`
	Session       *identity.Session  `json:"session"`
	Loading       bool               `json:"loading"`
	Notifications []Notification     `json:"notifications"`
}

type SessionSource interface {
	CurrentSession(ctx context.Context) (*identity.Session, error)
	GetIdentity(ctx context.Context, id string) (*identity.Identity, error)
}

type ProfileReader interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
}

type Reconciler interface {
	EnsureProfile(ctx context.Context, ident *identity.Identity) *models.Profile
}

type Cache struct {
	sessions   SessionSource
	profiles   ProfileReader
	reconciler Reconciler
	logger     *slog.Logger
	now        func() time.Time
	maxNotes   int

	mu       sync.RWMutex
	state    State
	inFlight int
}

type Option func(*Cache)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func WithMaxNotifications(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxNotes = n
		}
	}
}

func New(sessions SessionSource, profiles ProfileReader, reconciler Reconciler, opts ...Option) *Cache {
	c := &Cache{
		sessions:   sessions,
		profiles:   profiles,
		reconciler: reconciler,
		logger:     slog.Default(),
		now:        time.Now,
		maxNotes:   DefaultMaxNotifications,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Restore loads the existing session at process start and reconciles its profile.
func (c *Cache) Restore(ctx context.Context) error {
	return c.load(ctx, true)
}

// Refresh unconditionally re-fetches identity and profile and overwrites the
// cached copies. On failure the prior state is kept and a notification recorded.
func (c *Cache) Refresh(ctx context.Context) error {
	return c.load(ctx, false)
}

// HandleEvent applies an identity provider lifecycle event.
func (c *Cache) HandleEvent(ctx context.Context, ev identity.Event) {
	var err error
	switch ev.Type {
	case identity.EventSignedIn:
		err = c.load(ctx, true)
	case identity.EventUserUpdated:
		err = c.load(ctx, false)
	case identity.EventSignedOut:
		c.Clear()
	default:
		c.logger.WarnContext(ctx, "ignoring unknown identity event", "type", string(ev.Type))
	}
	if err != nil {
		c.logger.WarnContext(ctx, "session cache update failed", "event", string(ev.Type), "error", err)
	}
}

func (c *Cache) load(ctx context.Context, reconcile bool) error {
	c.beginLoading()
	defer c.endLoading()

	sess, err := c.sessions.CurrentSession(ctx)
	if err != nil {
		return c.failed(ctx, "could not reach the sign-in service", err)
	}
	if sess == nil {
		c.Clear()
		return nil
	}

	ident := sess.Identity
	if ident == nil {
		ident, err = c.sessions.GetIdentity(ctx, sess.IdentityID)
		if err != nil {
			return c.failed(ctx, "could not load your account", err)
		}
	}

	var found *models.Profile
	if reconcile {
		found = c.reconciler.EnsureProfile(ctx, ident)
	} else {
		found, err = c.profiles.FindByID(ctx, ident.ID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return c.failed(ctx, "could not load your profile", err)
		}
	}

	// absent profiles are cached as nil, not reported
	p, _ := profile.Normalize(found)
	c.set(ident, p, sess)
	return nil
}

// SetProfile stores the result of a profile mutation when it belongs to the
// current identity. Last completed write wins.
func (c *Cache) SetProfile(p *models.Profile) bool {
	if p == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Identity == nil || c.state.Identity.ID != p.ID {
		return false
	}
	c.state.Profile = p.Clone()
	return true
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Identity = nil
	c.state.Profile = nil
	c.state.Session = nil
}

func (c *Cache) set(ident *identity.Identity, p *models.Profile, sess *identity.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Identity = copyIdentity(ident)
	c.state.Profile = p.Clone()
	c.state.Session = copySession(sess)
}

func (c *Cache) failed(ctx context.Context, message string, err error) error {
	c.logger.WarnContext(ctx, message, "error", err)
	c.Notify(LevelError, message)
	return fmt.Errorf("%s: %w", message, err)
}

// Notify appends a notification, dropping the oldest beyond the cap.
func (c *Cache) Notify(level Level, message string) Notification {
	n := Notification{ID: uuid.NewString(), Level: level, Message: message, At: c.now()}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Notifications = append(c.state.Notifications, n)
	if over := len(c.state.Notifications) - c.maxNotes; over > 0 {
		c.state.Notifications = slices.Delete(c.state.Notifications, 0, over)
	}
	return n
}

func (c *Cache) Dismiss(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	before := len(c.state.Notifications)
	c.state.Notifications = slices.DeleteFunc(c.state.Notifications, func(n Notification) bool {
		return n.ID == id
	})
	return len(c.state.Notifications) != before
}

func (c *Cache) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return State{
		Identity:      copyIdentity(c.state.Identity),
		Profile:       c.state.Profile.Clone(),
		Session:       copySession(c.state.Session),
		Loading:       c.inFlight > 0,
		Notifications: slices.Clone(c.state.Notifications),
	}
}

// SessionToken returns the provider token of the cached session, or "".
func (c *Cache) SessionToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state.Session == nil {
		return ""
	}
	return c.state.Session.Token
}

func (c *Cache) beginLoading() {
	c.mu.Lock()
	c.inFlight++
	c.mu.Unlock()
}

func (c *Cache) endLoading() {
	c.mu.Lock()
	c.inFlight--
	c.mu.Unlock()
}

func copyIdentity(i *identity.Identity) *identity.Identity {
	if i == nil {
		return nil
	}
	cp := *i
	return &cp
}

func copySession(s *identity.Session) *identity.Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Identity = copyIdentity(s.Identity)
	return &cp
}
