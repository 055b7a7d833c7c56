package jwttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "signbridge/pkg/domain-errors"
)

const (
	testKey      = "test-signing-key"
	testIssuer   = "signbridge"
	testAudience = "signbridge-api"
	identityID   = "5b7c1d2e-identity"
	sessionID    = "a1b2c3-session"
)

var issuedAt = time.Date(2026, 4, 10, 8, 0, 0, 0, time.UTC)

func serviceAt(key, audience string, now time.Time) *JWTService {
	s := NewJWTService(key, testIssuer, audience)
	s.now = func() time.Time { return now }
	return s
}

func TestAccessTokenRoundTrip(t *testing.T) {
	svc := serviceAt(testKey, testAudience, issuedAt)
	token, err := svc.GenerateAccessToken(identityID, sessionID, 15*time.Minute)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, identityID, claims.IdentityID)
	assert.Equal(t, identityID, claims.Subject)
	assert.Equal(t, sessionID, claims.SessionID)
	assert.NotEmpty(t, claims.ID)
	assert.True(t, issuedAt.Add(15*time.Minute).Equal(claims.ExpiresAt.Time))

	other, err := svc.GenerateAccessToken(identityID, sessionID, 15*time.Minute)
	require.NoError(t, err)
	otherClaims, err := svc.ValidateToken(other)
	require.NoError(t, err)
	assert.NotEqual(t, claims.ID, otherClaims.ID, "every token gets its own id")
}

func TestValidateTokenRejects(t *testing.T) {
	validator := serviceAt(testKey, testAudience, issuedAt)
	mint := func(s *JWTService, ttl time.Duration) string {
		token, err := s.GenerateAccessToken(identityID, sessionID, ttl)
		require.NoError(t, err)
		return token
	}

	tests := []struct {
		name    string
		token   string
		message string
	}{
		{"garbage", "invalid-token-string", "invalid token"},
		{"expired", mint(serviceAt(testKey, testAudience, issuedAt.Add(-time.Hour)), 30*time.Minute), "token has expired"},
		{"other signing key", mint(serviceAt("other-key", testAudience, issuedAt), time.Hour), "invalid token"},
		{"other audience", mint(serviceAt(testKey, "someone-else", issuedAt), time.Hour), "invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validator.ValidateToken(tt.token)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
			assert.Equal(t, tt.message, dErrors.MessageOf(err))
		})
	}

	t.Run("token without identity", func(t *testing.T) {
		token := mint(validator, time.Hour)
		blank, err := validator.GenerateAccessToken("", sessionID, time.Hour)
		require.NoError(t, err)
		_, err = validator.ValidateToken(blank)
		assert.Equal(t, "token has no identity", dErrors.MessageOf(err))
		_, err = validator.ValidateToken(token)
		assert.NoError(t, err)
	})
}

func TestAdapterMapsClaims(t *testing.T) {
	svc := serviceAt(testKey, testAudience, issuedAt)
	token, err := svc.GenerateAccessToken(identityID, sessionID, time.Hour)
	require.NoError(t, err)

	claims, err := NewJWTServiceAdapter(svc).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, identityID, claims.IdentityID)
	assert.Equal(t, sessionID, claims.SessionID)
	assert.NotEmpty(t, claims.JTI)
	assert.True(t, issuedAt.Add(time.Hour).Equal(claims.ExpiresAt))

	_, err = NewJWTServiceAdapter(svc).ValidateToken("nope")
	assert.Error(t, err)
}
