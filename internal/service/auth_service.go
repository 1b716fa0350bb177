package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"engageai/internal/model"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// AuthService validates caller identity. Token issuance belongs to the
// external auth collaborator; GenerateToken exists for the seeder and tests.
type AuthService struct {
	jwtSecret []byte
}

func NewAuthService(secret string) *AuthService {
	return &AuthService{jwtSecret: []byte(secret)}
}

// ValidateToken parses a JWT and returns the caller's claims.
func (s *AuthService) ValidateToken(tokenString string) (*model.Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &model.Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*model.Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GenerateToken signs a claims set for a user.
func (s *AuthService) GenerateToken(user *model.User, ttl time.Duration) (string, error) {
	claims := &model.Claims{
		UserID:      user.ID,
		Role:        user.Role,
		Name:        user.Name,
		ClassroomID: user.ClassroomID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
