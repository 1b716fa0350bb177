package model

import "github.com/golang-jwt/jwt/v5"

// Claims carry the caller identity resolved from a JWT. Identity issuance
// lives in the external auth service; this core only validates.
type Claims struct {
	UserID      string `json:"userId"`
	Role        Role   `json:"role"`
	Name        string `json:"name"`
	ClassroomID string `json:"classroomId,omitempty"`
	jwt.RegisteredClaims
}
