package auth

import (
	"testing"
	"time"

	"shop-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	user := &models.User{ID: 42, Email: "john@example.com"}

	token, err := tm.Issue(user)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := tm.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "john@example.com", claims.Email)
}

func TestVerifyWrongSecret(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	other := NewTokenManager("different", time.Hour)

	token, err := tm.Issue(&models.User{ID: 1, Email: "a@b.c"})
	require.NoError(t, err)

	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyExpiredToken(t *testing.T) {
	tm := NewTokenManager("secret", -time.Minute)

	token, err := tm.Issue(&models.User{ID: 1, Email: "a@b.c"})
	require.NoError(t, err)

	_, err = tm.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyGarbage(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)

	_, err := tm.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", hash)

	assert.True(t, CheckPassword(hash, "hunter22"))
	assert.False(t, CheckPassword(hash, "hunter23"))
}
