package httptransport

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"signbridge/internal/account/models"
	"signbridge/internal/identity"
	"signbridge/internal/platform/middleware"
	profile "signbridge/internal/profile/models"
	dErrors "signbridge/pkg/domain-errors"
	"signbridge/pkg/platform/httputil"
	"signbridge/pkg/requestcontext"
)

// TokenRevocations records access tokens ended by sign-out.
type TokenRevocations interface {
	middleware.TokenRevocationChecker
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
}

// AuthResponse carries the short-lived access token in place of any provider
// credential.
type AuthResponse struct {
	Identity    *identity.Identity `json:"user"`
	Profile     *profile.Profile   `json:"profile"`
	AccessToken string             `json:"access_token"`
	TokenType   string             `json:"token_type"`
	ExpiresIn   int                `json:"expires_in"`
}

func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.SignUpRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.service.SignUp(ctx, req)
	if err != nil {
		h.writeServiceError(ctx, w, "sign-up failed", err)
		return
	}
	h.writeAuthResult(w, r, http.StatusCreated, res)
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.SignInRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.service.SignIn(ctx, req)
	if err != nil {
		h.writeServiceError(ctx, w, "sign-in failed", err)
		return
	}
	h.writeAuthResult(w, r, http.StatusOK, res)
}

func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.SignOut(ctx); err != nil {
		h.writeServiceError(ctx, w, "sign-out failed", err)
		return
	}
	if h.revoked != nil {
		jti, expiresAt := middleware.GetToken(ctx)
		if err := h.revoked.Revoke(ctx, jti, expiresAt.Sub(requestcontext.Now(ctx))); err != nil {
			h.writeServiceError(ctx, w, "failed to revoke access token",
				dErrors.Wrap(err, dErrors.CodeUnavailable, "signed out, but the access token could not be revoked"))
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeAuthResult(w http.ResponseWriter, r *http.Request, status int, res *models.AuthResult) {
	ctx := r.Context()
	token, err := h.tokens.GenerateAccessToken(res.Identity.ID, uuid.NewString(), h.tokenTTL)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to issue access token",
			dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue access token"))
		return
	}
	httputil.WriteJSON(w, status, AuthResponse{
		Identity:    res.Identity,
		Profile:     res.Profile,
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.tokenTTL / time.Second),
	})
}
