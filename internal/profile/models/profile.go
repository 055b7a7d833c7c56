package models

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"signbridge/pkg/platform/sentinel"
)

type Role string

const (
	RoleDeaf        Role = "deaf"
	RoleHearing     Role = "hearing"
	RoleInterpreter Role = "interpreter"

	// DefaultRole is assigned when neither identity metadata nor a pending
	// signup payload names one.
	DefaultRole = RoleDeaf
)

// ParseRole normalizes a free-form role, falling back to DefaultRole.
func ParseRole(raw string) Role {
	switch r := Role(strings.ToLower(strings.TrimSpace(raw))); r {
	case RoleDeaf, RoleHearing, RoleInterpreter:
		return r
	default:
		return DefaultRole
	}
}

// Profile is the application-owned record keyed by the identity id.
// EmailConfirmed only ever moves false -> true; deletion is the only reset.
type Profile struct {
	ID                 string            `json:"id"`
	Email              string            `json:"email"`
	Name               string            `json:"name"`
	Role               Role              `json:"role"`
	RollNumber         string            `json:"rollNumber"`
	EmailConfirmed     bool              `json:"emailConfirmed"`
	ConfirmationSentAt *time.Time        `json:"confirmationSentAt"`
	EmailConfirmedAt   *time.Time        `json:"emailConfirmedAt"`
	Attributes         map[string]string `json:"attributes,omitempty"`
	CreatedAt          time.Time         `json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
}

// Clone returns a deep copy so cached and stored profiles never share maps or
// timestamp pointers.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	c.Attributes = maps.Clone(p.Attributes)
	if p.ConfirmationSentAt != nil {
		t := *p.ConfirmationSentAt
		c.ConfirmationSentAt = &t
	}
	if p.EmailConfirmedAt != nil {
		t := *p.EmailConfirmedAt
		c.EmailConfirmedAt = &t
	}
	return &c
}

// Update carries the mutable fields of a profile. Nil fields are left untouched.
type Update struct {
	Name             *string
	EmailConfirmed   *bool
	EmailConfirmedAt *time.Time
	Attributes       map[string]string
}

// ConfirmUpdate is the update applied by every confirmation trigger. Two triggers
// applying it converge on the same confirmed state.
func ConfirmUpdate(now time.Time) Update {
	confirmed := true
	return Update{EmailConfirmed: &confirmed, EmailConfirmedAt: &now}
}

// Apply mutates p with u, refusing to unconfirm a confirmed profile.
func (p *Profile) Apply(u Update, now time.Time) error {
	if u.EmailConfirmed != nil {
		if p.EmailConfirmed && !*u.EmailConfirmed {
			return fmt.Errorf("profile %s: email confirmation cannot be revoked: %w", p.ID, sentinel.ErrInvalidState)
		}
		if !p.EmailConfirmed && *u.EmailConfirmed {
			p.EmailConfirmed = true
			at := now
			if u.EmailConfirmedAt != nil {
				at = *u.EmailConfirmedAt
			}
			p.EmailConfirmedAt = &at
		}
	}
	if u.Name != nil {
		p.Name = strings.TrimSpace(*u.Name)
	}
	if len(u.Attributes) > 0 {
		if p.Attributes == nil {
			p.Attributes = make(map[string]string, len(u.Attributes))
		}
		maps.Copy(p.Attributes, u.Attributes)
	}
	p.UpdatedAt = now
	return nil
}

// Validate enforces the record invariants that stores rely on.
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("profile id is required: %w", sentinel.ErrInvalidState)
	}
	if !ValidRollNumber(p.RollNumber) {
		return fmt.Errorf("roll number %q must be six digits in [100000, 999999]: %w", p.RollNumber, sentinel.ErrInvalidState)
	}
	if p.EmailConfirmed && p.EmailConfirmedAt == nil {
		return fmt.Errorf("confirmed profile %s has no confirmation time: %w", p.ID, sentinel.ErrInvalidState)
	}
	return nil
}

const (
	RollNumberMin = 100000
	RollNumberMax = 999999
)

func ValidRollNumber(s string) bool {
	if len(s) != 6 || s[0] == '0' {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
