// Package auth issues and validates session and refresh tokens, backed by a
// redis ledger so individual tokens can be revoked before expiry.
package auth

import "github.com/golang-jwt/jwt/v5"

// TokenType distinguishes the two token families. They are single-purpose:
// a refresh token cannot be presented as a session token and vice versa.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is the payload carried by both token families.
type Claims struct {
	jwt.RegisteredClaims

	// UserID is the internal numeric user id.
	UserID uint `json:"uid"`

	// Username is the login name.
	Username string `json:"username"`

	// Role is USER or ADMIN.
	Role string `json:"role"`

	// OrgTags is the user's raw assigned tag set at issue time. The
	// authorization guard matches these literally; the effective-tag
	// expansion applies only to search.
	OrgTags []string `json:"org_tags,omitempty"`

	// TokenType marks the token family.
	TokenType TokenType `json:"token_type"`
}

// IsAccessToken reports whether this is a session token.
func (c *Claims) IsAccessToken() bool {
	return c.TokenType == TokenTypeAccess
}

// IsRefreshToken reports whether this is a refresh token.
func (c *Claims) IsRefreshToken() bool {
	return c.TokenType == TokenTypeRefresh
}
