package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	m := NewManager("test-secret", time.Hour)

	token, err := m.GenerateToken(42, "applicant")
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "applicant", claims.Role)
	assert.Equal(t, "42", claims.Subject)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	m := NewManager("test-secret", -time.Minute)

	token, err := m.GenerateToken(1, "admin")
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	token, err := NewManager("secret-a", time.Hour).GenerateToken(1, "admin")
	require.NoError(t, err)

	_, err = NewManager("secret-b", time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsNoneAlgorithm(t *testing.T) {
	claims := Claims{UserID: 7, Role: "admin"}
	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewManager("test-secret", time.Hour).ValidateToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGenerateVerificationCode(t *testing.T) {
	code, err := GenerateVerificationCode()
	require.NoError(t, err)
	assert.Len(t, code, 6)
	assert.Regexp(t, `^\d{6}$`, code)
}
