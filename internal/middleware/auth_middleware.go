// internal/middleware/auth_middleware.go
package middleware

import (
	"strings"

	"tokenguard-service/internal/pkg/response"
	"tokenguard-service/internal/service/introspect"

	"github.com/gin-gonic/gin"
)

type AuthMiddleware struct {
	introspector *introspect.Introspector
}

func NewAuthMiddleware(introspector *introspect.Introspector) *AuthMiddleware {
	return &AuthMiddleware{
		introspector: introspector,
	}
}

// Auth gates protected routes on access-token introspection. An inactive
// token maps to a uniform 401 regardless of why it is inactive.
func (m *AuthMiddleware) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := extractToken(c)
		if raw == "" {
			response.Unauthorized(c, "missing authorization token")
			return
		}

		result := m.introspector.Introspect(c.Request.Context(), raw)
		if !result.Active {
			response.Unauthorized(c, "invalid or expired token")
			return
		}

		// Set caller context
		c.Set("owner_id", result.Claims.Subject)
		c.Set("role", result.Claims.Role)
		c.Set("email", result.Claims.Email)
		c.Set("access_token", raw)
		if result.Claims.ExpiresAt != nil {
			c.Set("token_expires_at", result.Claims.ExpiresAt.Time)
		}

		c.Next()
	}
}

// extractToken extracts Bearer token from Authorization header
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}

	return ""
}

// GetOwnerID returns the authenticated owner id from context
func GetOwnerID(c *gin.Context) (string, bool) {
	ownerID, exists := c.Get("owner_id")
	if !exists {
		return "", false
	}

	id, ok := ownerID.(string)
	return id, ok
}

// GetAccessToken returns the raw bearer token from context
func GetAccessToken(c *gin.Context) (string, bool) {
	raw, exists := c.Get("access_token")
	if !exists {
		return "", false
	}

	s, ok := raw.(string)
	return s, ok
}
