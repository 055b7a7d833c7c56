package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"signbridge/internal/account/models"
	cmodels "signbridge/internal/confirmation/models"
	"signbridge/internal/confirmation/override"
	"signbridge/internal/confirmation/watcher"
	"signbridge/internal/platform/middleware"
	"signbridge/internal/session"
	dErrors "signbridge/pkg/domain-errors"
	"signbridge/pkg/platform/httputil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service,TokenIssuer

// Service is the account facade the handlers delegate to.
type Service interface {
	SignUp(ctx context.Context, req *models.SignUpRequest) (*models.AuthResult, error)
	SignIn(ctx context.Context, req *models.SignInRequest) (*models.AuthResult, error)
	SignOut(ctx context.Context) error
	CheckEmailConfirmationStatus(ctx context.Context, identityID string) (cmodels.Status, error)
	ManuallyConfirmUserEmail(ctx context.Context, identityID string) (override.Result, error)
	StartWatch(ctx context.Context, identityID string, cb watcher.Callbacks) (models.WatchView, error)
	WatchStatus(identityID string) (models.WatchView, bool)
	RefreshProfile(ctx context.Context) (session.State, error)
	CurrentState() session.State
	DismissNotification(id string) error
}

// TokenIssuer mints the access tokens returned by sign-up and sign-in.
type TokenIssuer interface {
	GenerateAccessToken(identityID string, sessionID string, expiresIn time.Duration) (string, error)
}

// Handler is the thin HTTP layer over the account service.
type Handler struct {
	service   Service
	tokens    TokenIssuer
	validator middleware.JWTValidator
	revoked   TokenRevocations
	logger    *slog.Logger
	tokenTTL  time.Duration
}

type Option func(*Handler)

// WithRevocations makes sign-out revoke the presented access token and makes
// every authenticated route reject revoked tokens.
func WithRevocations(r TokenRevocations) Option {
	return func(h *Handler) {
		h.revoked = r
	}
}

func New(service Service, tokens TokenIssuer, validator middleware.JWTValidator, logger *slog.Logger, tokenTTL time.Duration, opts ...Option) *Handler {
	h := &Handler{
		service:   service,
		tokens:    tokens,
		validator: validator,
		logger:    logger,
		tokenTTL:  tokenTTL,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the public and authenticated routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/signup", h.handleSignUp)
	r.Post("/auth/signin", h.handleSignIn)

	r.Group(func(r chi.Router) {
		var checker middleware.TokenRevocationChecker
		if h.revoked != nil {
			checker = h.revoked
		}
		r.Use(middleware.RequireAuth(h.validator, checker, h.logger))
		r.Post("/auth/signout", h.handleSignOut)

		r.Route("/auth/confirmation/{identityID}", func(r chi.Router) {
			r.Use(h.requireSelf)
			r.Get("/", h.handleConfirmationStatus)
			r.Post("/confirm", h.handleManualConfirm)
			r.Post("/watch", h.handleStartWatch)
			r.Get("/watch", h.handleGetWatch)
		})

		r.Get("/me", h.handleMe)
		r.Post("/me/refresh", h.handleRefresh)
		r.Delete("/me/notifications/{id}", h.handleDismiss)
	})
}

// requireSelf limits confirmation routes to the token's own identity.
func (h *Handler) requireSelf(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if chi.URLParam(r, "identityID") != middleware.GetIdentityID(ctx) {
			h.logger.WarnContext(ctx, "confirmation access for another identity",
				"request_id", middleware.GetRequestID(ctx),
				"identity_id", middleware.GetIdentityID(ctx),
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "not allowed for this identity"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeServiceError logs at a level that matches the failure class.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	code := dErrors.CodeOf(err)
	if dErrors.ToHTTPStatus(code) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg,
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
	} else {
		h.logger.WarnContext(ctx, msg,
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
