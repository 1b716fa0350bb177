package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engageai/internal/model"
)

func TestTokenRoundTrip(t *testing.T) {
	auth := NewAuthService("test-secret")
	user := &model.User{
		ID:          "student-1",
		Name:        "Aarav",
		Role:        model.RoleStudent,
		ClassroomID: "class-1",
	}

	token, err := auth.GenerateToken(user, time.Hour)
	require.NoError(t, err)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "student-1", claims.UserID)
	assert.Equal(t, model.RoleStudent, claims.Role)
	assert.Equal(t, "Aarav", claims.Name)
	assert.Equal(t, "class-1", claims.ClassroomID)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	token, err := NewAuthService("secret-a").GenerateToken(&model.User{ID: "u1", Role: model.RoleTeacher}, time.Hour)
	require.NoError(t, err)

	_, err = NewAuthService("secret-b").ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	auth := NewAuthService("test-secret")
	token, err := auth.GenerateToken(&model.User{ID: "u1", Role: model.RoleTeacher}, -time.Minute)
	require.NoError(t, err)

	_, err = auth.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	_, err := NewAuthService("test-secret").ValidateToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
