package token

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the payload carried by both access and refresh tokens. An access
// token and the refresh token issued alongside it always carry equal User and
// Strategy values; Permissions only appear on access tokens.
type Claims struct {
	User        string   `json:"user"`
	Strategy    string   `json:"strategy"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}
