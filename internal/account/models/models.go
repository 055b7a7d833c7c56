package models

import (
	"net/mail"
	"strings"
	"time"

	"signbridge/internal/identity"
	profile "signbridge/internal/profile/models"
	dErrors "signbridge/pkg/domain-errors"
)

const (
	MinPasswordLength = 8
	maxEmailLength    = 255
	maxNameLength     = 120
	maxAttributes     = 32
)

// SignUpRequest is the full signup form. Role-specific fields travel in
// Attributes and are parked in the pending-signup cache until the profile exists.
type SignUpRequest struct {
	Email      string            `json:"email"`
	Password   string            `json:"password"`
	Name       string            `json:"name"`
	Role       string            `json:"role"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func (r *SignUpRequest) Normalize() {
	if r == nil {
		return
	}
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Name = strings.TrimSpace(r.Name)
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
}

func (r *SignUpRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if err := validateEmail(r.Email); err != nil {
		return err
	}
	if len(r.Password) < MinPasswordLength {
		return dErrors.New(dErrors.CodeValidation, "password must be at least 8 characters")
	}
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if len(r.Name) > maxNameLength {
		return dErrors.New(dErrors.CodeValidation, "name is too long")
	}
	if r.Role != "" && profile.ParseRole(r.Role) != profile.Role(r.Role) {
		return dErrors.New(dErrors.CodeValidation, "role must be one of deaf, hearing, interpreter")
	}
	if len(r.Attributes) > maxAttributes {
		return dErrors.New(dErrors.CodeValidation, "too many attributes")
	}
	return nil
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *SignInRequest) Normalize() {
	if r == nil {
		return
	}
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

func (r *SignInRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if err := validateEmail(r.Email); err != nil {
		return err
	}
	if r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "password is required")
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if len(email) > maxEmailLength {
		return dErrors.New(dErrors.CodeValidation, "email is too long")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return dErrors.New(dErrors.CodeValidation, "email is invalid")
	}
	return nil
}

// AuthResult is returned by sign-up and sign-in. Profile is nil when
// reconciliation could not produce one; the session still stands.
type AuthResult struct {
	Identity *identity.Identity `json:"user"`
	Profile  *profile.Profile   `json:"profile"`
	Session  *identity.Session  `json:"session"`
}

// WatchView is the externally visible state of a confirmation watcher.
type WatchView struct {
	IdentityID       string    `json:"identity_id"`
	State            string    `json:"state"`
	RemainingSeconds int       `json:"remaining_seconds"`
	StartedAt        time.Time `json:"started_at"`
}
