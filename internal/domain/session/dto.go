// internal/domain/session/dto.go
package session

import "time"

// IssueTokenRequest is posted by the identity layer once credentials have
// been verified; this subsystem never sees passwords.
type IssueTokenRequest struct {
	OwnerID     string `json:"owner_id" binding:"required"`
	Role        string `json:"role"`
	Email       string `json:"email"`
	DeviceLabel string `json:"device_label"`
}

// RefreshRequest exchanges an opaque session token for a fresh pair.
type RefreshRequest struct {
	SessionToken string `json:"session_token" binding:"required"`
	OwnerID      string `json:"owner_id" binding:"required"`
	DeviceLabel  string `json:"device_label"`
}

// LogoutRequest optionally names the session to retire alongside the
// presented access token.
type LogoutRequest struct {
	SessionID string `json:"session_id"`
}

// IntrospectRequest carries the access token to check.
type IntrospectRequest struct {
	Token string `json:"token" binding:"required"`
}

// TokenPairResponse returns both credentials: the access token for the
// Authorization header, the session token for HTTP-only cookie storage.
type TokenPairResponse struct {
	AccessToken  string    `json:"access_token"`
	SessionToken string    `json:"session_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
}
