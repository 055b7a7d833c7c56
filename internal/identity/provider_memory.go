package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"signbridge/pkg/platform/sentinel"
)

// ErrInvalidCredentials is returned by Authenticate for unknown emails and bad
// passwords alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

type account struct {
	identity     Identity
	passwordHash []byte
}

// InMemoryProvider is a self-contained identity provider used in development mode
// and tests. It keeps one current session, matching the single-user agent.
type InMemoryProvider struct {
	mu         sync.RWMutex
	accounts   map[string]*account
	byEmail    map[string]string
	sessions   map[string]Session
	current    string
	sessionTTL time.Duration
	now        func() time.Time
	hub        *Hub
}

type MemoryOption func(*InMemoryProvider)

func WithClock(now func() time.Time) MemoryOption {
	return func(p *InMemoryProvider) {
		if now != nil {
			p.now = now
		}
	}
}

func WithSessionTTL(ttl time.Duration) MemoryOption {
	return func(p *InMemoryProvider) {
		if ttl > 0 {
			p.sessionTTL = ttl
		}
	}
}

func NewInMemoryProvider(opts ...MemoryOption) *InMemoryProvider {
	p := &InMemoryProvider{
		accounts:   make(map[string]*account),
		byEmail:    make(map[string]string),
		sessions:   make(map[string]Session),
		sessionTTL: 24 * time.Hour,
		now:        time.Now,
		hub:        NewHub(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *InMemoryProvider) CreateAccount(_ context.Context, email, password string, meta Metadata) (*Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password are required: %w", sentinel.ErrInvalidState)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, taken := p.byEmail[email]; taken {
		return nil, fmt.Errorf("email %s: %w", email, sentinel.ErrConflict)
	}
	acc := &account{
		identity: Identity{
			ID:        uuid.NewString(),
			Email:     email,
			Metadata:  meta,
			CreatedAt: p.now(),
		},
		passwordHash: hash,
	}
	p.accounts[acc.identity.ID] = acc
	p.byEmail[email] = acc.identity.ID
	ident := acc.identity
	return &ident, nil
}

func (p *InMemoryProvider) Authenticate(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	p.mu.Lock()
	id, ok := p.byEmail[email]
	if !ok {
		p.mu.Unlock()
		return nil, ErrInvalidCredentials
	}
	acc := p.accounts[id]
	if err := bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(password)); err != nil {
		p.mu.Unlock()
		return nil, ErrInvalidCredentials
	}
	token, err := newToken()
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	ident := acc.identity
	sess := Session{Token: token, IdentityID: id, Identity: &ident, ExpiresAt: p.now().Add(p.sessionTTL)}
	p.sessions[token] = sess
	p.current = token
	p.mu.Unlock()

	p.hub.Publish(ctx, Event{Type: EventSignedIn, Identity: &ident, Session: &sess, At: p.now()})
	return &sess, nil
}

// CurrentSession returns the session this process is signed in with, or nil.
func (p *InMemoryProvider) CurrentSession(_ context.Context) (*Session, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == "" {
		return nil, nil
	}
	sess, ok := p.sessions[p.current]
	if !ok || p.now().After(sess.ExpiresAt) {
		return nil, nil
	}
	acc, ok := p.accounts[sess.IdentityID]
	if !ok {
		return nil, nil
	}
	ident := acc.identity
	sess.Identity = &ident
	return &sess, nil
}

func (p *InMemoryProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	token := p.current
	sess, had := p.sessions[token]
	delete(p.sessions, token)
	p.current = ""
	p.mu.Unlock()

	if had {
		p.hub.Publish(ctx, Event{Type: EventSignedOut, Session: &sess, At: p.now()})
	}
	return nil
}

func (p *InMemoryProvider) GetIdentity(_ context.Context, id string) (*Identity, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	acc, ok := p.accounts[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	ident := acc.identity
	return &ident, nil
}

func (p *InMemoryProvider) DeleteIdentity(ctx context.Context, id string) error {
	p.mu.Lock()
	acc, ok := p.accounts[id]
	if !ok {
		p.mu.Unlock()
		return sentinel.ErrNotFound
	}
	delete(p.accounts, id)
	delete(p.byEmail, acc.identity.Email)
	signedOut := false
	for token, sess := range p.sessions {
		if sess.IdentityID == id {
			delete(p.sessions, token)
			if token == p.current {
				p.current = ""
				signedOut = true
			}
		}
	}
	p.mu.Unlock()

	if signedOut {
		p.hub.Publish(ctx, Event{Type: EventSignedOut, At: p.now()})
	}
	return nil
}

// VerifyEmail marks the identity's address verified, as following the emailed
// link would, and announces the change to subscribers.
func (p *InMemoryProvider) VerifyEmail(ctx context.Context, id string) error {
	p.mu.Lock()
	acc, ok := p.accounts[id]
	if !ok {
		p.mu.Unlock()
		return sentinel.ErrNotFound
	}
	acc.identity.EmailVerified = true
	ident := acc.identity
	p.mu.Unlock()

	p.hub.Publish(ctx, Event{Type: EventUserUpdated, Identity: &ident, At: p.now()})
	return nil
}

func (p *InMemoryProvider) Subscribe(handler Handler) func() {
	return p.hub.Subscribe(handler)
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
