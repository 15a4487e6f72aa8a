package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func newValidator(t *testing.T, issuer string) *JWTValidator {
	t.Helper()
	v, err := NewJWTValidator(JWTConfig{SigningMethod: "HS256", SecretKey: secret, Issuer: issuer})
	require.NoError(t, err)
	return v
}

func TestValidateToken(t *testing.T) {
	v := newValidator(t, "")
	token, err := SignHS256(secret, Claims{UserID: "u-1", Roles: []string{RoleAdmin}}, time.Minute)
	require.NoError(t, err)

	claims, err := v.ValidateToken("Bearer " + token)

	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.True(t, claims.HasRole(RoleAdmin))
	assert.False(t, claims.HasRole("agent"))
}

func TestValidateToken_Failures(t *testing.T) {
	v := newValidator(t, "")

	expired, err := SignHS256(secret, Claims{UserID: "u-1"}, -time.Minute)
	require.NoError(t, err)
	wrongKey, err := SignHS256("other-secret", Claims{UserID: "u-1"}, time.Minute)
	require.NoError(t, err)
	noSubject, err := SignHS256(secret, Claims{}, time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"missing", "  ", ErrMissingToken},
		{"expired", expired, ErrExpiredToken},
		{"wrong key", wrongKey, ErrInvalidSignature},
		{"garbage", "not.a.jwt", ErrInvalidToken},
		{"no subject", noSubject, ErrInvalidClaims},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.ValidateToken(tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidateToken_Issuer(t *testing.T) {
	v := newValidator(t, "referralnet")

	token, err := SignHS256(secret, Claims{
		UserID:           "u-1",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else"},
	}, time.Minute)
	require.NoError(t, err)

	_, err = v.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewJWTValidator_Config(t *testing.T) {
	_, err := NewJWTValidator(JWTConfig{SigningMethod: "HS256"})
	assert.Error(t, err)

	_, err = NewJWTValidator(JWTConfig{SigningMethod: "RS256"})
	assert.Error(t, err)

	_, err = NewJWTValidator(JWTConfig{SigningMethod: "ES512", SecretKey: secret})
	assert.Error(t, err)
}

func TestActorID(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "system", ActorID(ctx))

	ctx = WithClaims(ctx, &Claims{UserID: "u-7"})
	claims, ok := ClaimsFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u-7", claims.UserID)
	assert.Equal(t, "u-7", ActorID(ctx))
}
