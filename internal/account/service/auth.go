package service

import (
	"context"
	"errors"

	"signbridge/internal/account/models"
	"signbridge/internal/audit"
	"signbridge/internal/identity"
	profile "signbridge/internal/profile/models"
	dErrors "signbridge/pkg/domain-errors"
	"signbridge/pkg/platform/sentinel"
	"signbridge/pkg/requestcontext"
)

// SignUp creates the identity, parks the signup form in the pending cache and
// signs in so the profile can be reconciled under a live session. The password
// is handed to the provider and never retained.
func (s *Service) SignUp(ctx context.Context, req *models.SignUpRequest) (*models.AuthResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	ident, err := s.provider.CreateAccount(ctx, req.Email, req.Password, identity.Metadata{
		Name: req.Name,
		Role: req.Role,
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "an account with this email already exists")
		}
		return nil, providerError(err, "failed to create account")
	}

	err = s.pending.Set(ctx, &profile.PendingSignup{
		IdentityID: ident.ID,
		Email:      ident.Email,
		Name:       req.Name,
		Role:       profile.Role(req.Role),
		Attributes: req.Attributes,
		CreatedAt:  now,
	})
	if err != nil {
		// the profile still reconciles from identity metadata
		s.logger.WarnContext(ctx, "failed to cache pending signup",
			"identity_id", ident.ID,
			"error", err,
		)
	}

	sess, err := s.provider.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, providerError(err, "account created but sign-in failed")
	}
	if sess.Identity != nil {
		ident = sess.Identity
	}

	p := s.reconciler.EnsureProfile(ctx, ident)
	s.cache.SetProfile(p)

	s.logAudit(ctx, audit.ActionSignedUp,
		"identity_id", ident.ID,
		"role", req.Role,
	)
	return &models.AuthResult{Identity: ident, Profile: p, Session: sess}, nil
}

func (s *Service) SignIn(ctx context.Context, req *models.SignInRequest) (*models.AuthResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sess, err := s.provider.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")
		}
		return nil, providerError(err, "sign-in failed")
	}

	ident := sess.Identity
	if ident == nil {
		ident, err = s.provider.GetIdentity(ctx, sess.IdentityID)
		if err != nil {
			return nil, providerError(err, "failed to load account")
		}
	}

	p := s.reconciler.EnsureProfile(ctx, ident)
	s.cache.SetProfile(p)

	s.logAudit(ctx, audit.ActionSignedIn,
		"identity_id", ident.ID,
	)
	return &models.AuthResult{Identity: ident, Profile: p, Session: sess}, nil
}

// SignOut ends the provider session and stops the signed-in user's watcher.
func (s *Service) SignOut(ctx context.Context) error {
	current := s.cache.Snapshot().Identity
	if err := s.provider.SignOut(ctx); err != nil {
		return providerError(err, "sign-out failed")
	}
	s.cache.Clear()

	if current == nil {
		return nil
	}
	if w := s.activeWatcher(current.ID); w != nil {
		w.Stop()
	}
	s.logAudit(ctx, audit.ActionSignedOut,
		"identity_id", current.ID,
	)
	return nil
}

func providerError(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "account not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeValidation, msg)
	case errors.Is(err, sentinel.ErrExpired):
		return dErrors.Wrap(err, dErrors.CodeUnauthorized, "session expired")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "identity provider unavailable")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
