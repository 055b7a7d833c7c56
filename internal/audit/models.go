package audit

import "time"

// Action names a lifecycle transition worth keeping a trail of.
type Action string

const (
	ActionSignedUp           Action = "signed_up"
	ActionSignedIn           Action = "signed_in"
	ActionSignedOut          Action = "signed_out"
	ActionProfileSynthesized Action = "profile_synthesized"
	ActionConfirmed          Action = "email_confirmed"
	ActionExpired            Action = "confirmation_expired"
	ActionReaped             Action = "account_reaped"
	ActionReapFailed         Action = "account_reap_failed"
	ActionOrphanRecorded     Action = "orphan_identity_recorded"
	ActionOrphanCleared      Action = "orphan_identity_cleared"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	IdentityID string    `json:"identity_id"`
	Action     Action    `json:"action"`
	// Source names the trigger that caused the transition: poll, tick, manual,
	// provider, sweep.
	Source    string `json:"source,omitempty"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}
