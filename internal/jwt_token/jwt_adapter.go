package jwttoken

import (
	"time"

	"signbridge/internal/platform/middleware"
)

// ToMiddlewareClaims flattens the registered claims the transport layer needs.
func ToMiddlewareClaims(claims *Claims) *middleware.JWTClaims {
	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return &middleware.JWTClaims{
		IdentityID: claims.IdentityID,
		SessionID:  claims.SessionID,
		JTI:        claims.ID,
		ExpiresAt:  expiresAt,
	}
}

// JWTServiceAdapter satisfies middleware.JWTValidator.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims), nil
}
