package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	jm, err := NewJWTManager("test-secret")
	require.NoError(t, err)

	token, err := jm.GenerateToken(7, "ada", "ada@example.com", time.Hour)
	require.NoError(t, err)

	claims, err := jm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), claims.UserID)
	assert.Equal(t, "ada", claims.Username)
	assert.Equal(t, "multichat", claims.Issuer)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	jm, err := NewJWTManager("secret-a")
	require.NoError(t, err)
	other, err := NewJWTManager("secret-b")
	require.NoError(t, err)

	token, err := jm.GenerateToken(7, "ada", "ada@example.com", time.Hour)
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_Expired(t *testing.T) {
	jm, err := NewJWTManager("test-secret")
	require.NoError(t, err)

	token, err := jm.GenerateToken(7, "ada", "ada@example.com", -time.Minute)
	require.NoError(t, err)

	_, err = jm.ValidateToken(token)
	assert.Error(t, err)
}

func TestNewJWTManager_EmptySecret(t *testing.T) {
	_, err := NewJWTManager("")
	assert.Error(t, err)
}

func TestExtractTokenFromHeader(t *testing.T) {
	token, err := ExtractTokenFromHeader("Bearer abc.def.ghi")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)

	_, err = ExtractTokenFromHeader("abc.def.ghi")
	assert.Error(t, err)
}
