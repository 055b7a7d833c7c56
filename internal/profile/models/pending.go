package models

import (
	"maps"
	"time"
)

// PendingSignup is the signup form captured before the profile row exists.
// It is deleted once the profile is durably created. It never carries credentials.
type PendingSignup struct {
	IdentityID string            `json:"identity_id"`
	Email      string            `json:"email"`
	Name       string            `json:"name"`
	Role       Role              `json:"role"`
	Attributes map[string]string `json:"attributes,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// MergeInto copies the payload's role-specific fields (and name/role when set) onto p.
func (ps *PendingSignup) MergeInto(p *Profile) {
	if ps == nil || p == nil {
		return
	}
	if ps.Name != "" {
		p.Name = ps.Name
	}
	if ps.Role != "" {
		p.Role = ParseRole(string(ps.Role))
	}
	if len(ps.Attributes) > 0 {
		if p.Attributes == nil {
			p.Attributes = make(map[string]string, len(ps.Attributes))
		}
		maps.Copy(p.Attributes, ps.Attributes)
	}
}
