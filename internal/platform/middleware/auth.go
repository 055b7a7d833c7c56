package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"signbridge/pkg/requestcontext"
)

// JWTValidator verifies a bearer token and returns its claims.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// TokenRevocationChecker reports whether a token id was revoked at sign-out.
type TokenRevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// JWTClaims is the transport view of a validated access token.
type JWTClaims struct {
	IdentityID string
	SessionID  string
	JTI        string
	ExpiresAt  time.Time
}

type contextKeyClaims struct{}

// GetIdentityID returns the authenticated identity, or "" outside RequireAuth.
func GetIdentityID(ctx context.Context) string {
	return requestcontext.IdentityID(ctx)
}

func GetSessionID(ctx context.Context) string {
	return claimsFrom(ctx).SessionID
}

// GetToken returns the id and expiry of the bearer token on this request.
func GetToken(ctx context.Context) (jti string, expiresAt time.Time) {
	c := claimsFrom(ctx)
	return c.JTI, c.ExpiresAt
}

func claimsFrom(ctx context.Context) JWTClaims {
	c, _ := ctx.Value(contextKeyClaims{}).(JWTClaims)
	return c
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":%q,"error_description":%q}`, errCode, errDesc))
}

// RequireAuth rejects requests without a valid, unrevoked bearer token. A nil
// revocations skips the revocation check. A failed lookup fails closed.
func RequireAuth(validator JWTValidator, revocations TokenRevocationChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			if revocations != nil {
				revoked, err := revocations.IsRevoked(ctx, claims.JTI)
				if err != nil {
					logger.ErrorContext(ctx, "failed to check token revocation",
						"error", err,
						"request_id", requestID,
					)
					writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "Could not validate token")
					return
				}
				if revoked {
					logger.WarnContext(ctx, "unauthorized access - token revoked",
						"jti", claims.JTI,
						"request_id", requestID,
					)
					writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Token has been revoked")
					return
				}
			}

			ctx = requestcontext.WithIdentityID(ctx, claims.IdentityID)
			ctx = context.WithValue(ctx, contextKeyClaims{}, *claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
