// Package identity models the identity provider collaborator: accounts,
// sessions and the lifecycle events the Session/Profile Cache subscribes to.
package identity

import "time"

// Metadata is what signup attaches to the identity record and what profile
// reconciliation derives a minimal profile from.
type Metadata struct {
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

type Identity struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Metadata      Metadata  `json:"metadata"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

// Session is the handle returned by authentication. Token is the only secret the
// process retains; passwords are never stored.
type Session struct {
	Token      string    `json:"-"`
	IdentityID string    `json:"identity_id"`
	Identity   *Identity `json:"identity,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type EventType string

const (
	EventSignedIn    EventType = "signed_in"
	EventSignedOut   EventType = "signed_out"
	EventUserUpdated EventType = "user_updated"
)

type Event struct {
	Type     EventType
	Identity *Identity
	Session  *Session
	At       time.Time
}
