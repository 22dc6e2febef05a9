// internal/domain/session/entity.go
package session

import (
	"database/sql"
	"time"
)

const (
	// MaxSessionsPerOwner caps live sessions per owner; creating one past the
	// cap evicts the single oldest-by-creation row first.
	MaxSessionsPerOwner = 5

	// DefaultDeviceLabel is used when a login supplies no device label.
	DefaultDeviceLabel = "Unknown Device"

	// DefaultSessionTTL is the refresh-session lifetime.
	DefaultSessionTTL = 7 * 24 * time.Hour
)

// RevocationReason records why a token was revoked. The distinction is kept
// for audit and incident response only; end users see a uniform failure.
type RevocationReason string

const (
	ReasonLogout             RevocationReason = "logout"
	ReasonUserRevoked        RevocationReason = "user_revoked"
	ReasonTheftDetected      RevocationReason = "token_theft_detected"
	ReasonVerificationFailed RevocationReason = "token_verification_failed"
	ReasonSecurityIncident   RevocationReason = "security_incident"
)

// Session represents one logical device/browser login: an opaque refresh
// token bound to an owner, created at login or rotation, deleted on
// rotation, revocation, or expiry cleanup.
type Session struct {
	ID          string       `json:"id" db:"id"`
	Token       string       `json:"-" db:"token"`
	OwnerID     string       `json:"owner_id" db:"owner_id"`
	DeviceLabel string       `json:"device_label" db:"device_label"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	LastUsedAt  sql.NullTime `json:"last_used_at" db:"last_used_at"`
	ExpiresAt   time.Time    `json:"expires_at" db:"expires_at"`
}

// Expired reports whether the session's lifetime has elapsed.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}

// Summary is the read-only projection for the "manage your devices" view.
// Token values are never exposed.
type Summary struct {
	ID          string     `json:"id"`
	DeviceLabel string     `json:"device_label"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt   time.Time  `json:"expires_at"`
}

// RevocationEntry marks a specific token as never again acceptable,
// independent of its own unexpired status. ExpiresAt is copied from the
// revoked token's natural expiry so the entry can be garbage-collected as
// soon as the token would have died on its own.
type RevocationEntry struct {
	Token     string           `json:"-" db:"token"`
	OwnerID   string           `json:"owner_id" db:"owner_id"`
	Reason    RevocationReason `json:"reason" db:"reason"`
	ExpiresAt time.Time        `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

// Summarize builds the UI projection for a session row.
func (s *Session) Summarize() Summary {
	sum := Summary{
		ID:          s.ID,
		DeviceLabel: s.DeviceLabel,
		CreatedAt:   s.CreatedAt,
		ExpiresAt:   s.ExpiresAt,
	}
	if s.LastUsedAt.Valid {
		t := s.LastUsedAt.Time
		sum.LastUsedAt = &t
	}
	return sum
}
