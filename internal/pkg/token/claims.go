// internal/pkg/token/claims.go
package token

import (
	"github.com/golang-jwt/jwt/v5"
)

// TypeAccess is the only token type this codec issues. Refresh credentials
// are opaque store-backed values and never pass through here.
const TypeAccess = "access"

// Claims represents the signed access-token claims
type Claims struct {
	Role      string `json:"role,omitempty"`
	Email     string `json:"email,omitempty"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// OwnerID returns the subject claim.
func (c *Claims) OwnerID() string {
	return c.Subject
}

// VerifyAudience checks if the expected audience is listed in the claims.
func (c *Claims) VerifyAudience(audience string, required bool) bool {
	if len(c.Audience) == 0 {
		// If audience is required but missing
		return !required
	}

	for _, aud := range c.Audience {
		if aud == audience {
			return true
		}
	}

	return false
}
