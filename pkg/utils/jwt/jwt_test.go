package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	Init("test-secret", time.Hour)

	token, err := GenerateToken(7, "owner@example.com", "Acme", false)
	require.NoError(t, err)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "owner@example.com", claims.Email)
	assert.False(t, claims.IsAdmin)
}

func TestValidateRejectsForeignSecret(t *testing.T) {
	Init("secret-a", time.Hour)
	token, err := GenerateToken(1, "a@example.com", "", true)
	require.NoError(t, err)

	Init("secret-b", time.Hour)
	_, err = ValidateToken(token)
	assert.Error(t, err)
}
