// internal/service/session/manager.go
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	domain "tokenguard-service/internal/domain/session"
	xerrors "tokenguard-service/internal/pkg/errors"
	"tokenguard-service/internal/service/revocation"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// RotateState is the outcome of a refresh-token use. A tagged state rather
// than an error, so callers cannot accidentally swallow the security branch
// behind a generic catch-all.
type RotateState int

const (
	// Rotated: the old session was retired and a new token minted.
	Rotated RotateState = iota
	// Denied: unknown, expired, or already-rotated token. The caller answers
	// "please sign in again" without distinguishing further.
	Denied
	// TheftDetected: the stored session belongs to a different owner than the
	// caller asserted. Every session of the asserted owner has been revoked.
	TheftDetected
)

// RotateResult carries the outcome state and, when rotated, the new token.
type RotateResult struct {
	State RotateState
	Token string
}

// Config tunes the manager; zero values fall back to the domain defaults.
type Config struct {
	SessionTTL  time.Duration
	MaxPerOwner int
}

// Manager orchestrates the session lifecycle: Issued -> Active (repeatedly
// touched) -> {Rotated | Revoked | Expired}. Terminal states are mutually
// exclusive; once a token leaves Active it never again passes Verify.
// Manager is the sole writer of session rows and revocation entries.
type Manager struct {
	sessions    domain.Store
	revocations *revocation.List
	logger      *zap.Logger
	ttl         time.Duration
	maxPerOwner int
	now         func() time.Time
}

func NewManager(sessions domain.Store, revocations *revocation.List, logger *zap.Logger, cfg Config) *Manager {
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = domain.DefaultSessionTTL
	}
	maxPerOwner := cfg.MaxPerOwner
	if maxPerOwner <= 0 {
		maxPerOwner = domain.MaxSessionsPerOwner
	}

	return &Manager{
		sessions:    sessions,
		revocations: revocations,
		logger:      logger,
		ttl:         ttl,
		maxPerOwner: maxPerOwner,
		now:         time.Now,
	}
}

// Generate creates a new session for the owner and returns the opaque token.
// If the owner is at the session cap, the single oldest-by-creation session
// is evicted first. On store failure the caller must not consider the login
// successful.
func (m *Manager) Generate(ctx context.Context, ownerID, deviceLabel string) (string, error) {
	if deviceLabel == "" {
		deviceLabel = domain.DefaultDeviceLabel
	}

	count, err := m.sessions.CountByOwner(ctx, ownerID)
	if err != nil {
		return "", fmt.Errorf("failed to count sessions: %w", err)
	}
	if count >= m.maxPerOwner {
		if err := m.sessions.DeleteOldestByOwner(ctx, ownerID); err != nil {
			return "", fmt.Errorf("failed to evict oldest session: %w", err)
		}
	}

	token, err := newOpaqueToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}

	now := m.now()
	s := &domain.Session{
		ID:          ulid.Make().String(),
		Token:       token,
		OwnerID:     ownerID,
		DeviceLabel: deviceLabel,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.ttl),
	}

	if err := m.sessions.Create(ctx, s); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	return token, nil
}

// Rotate exchanges an old session token for exactly one new one, retiring
// the old. Delete-then-create rather than update-in-place: a stolen token
// replayed after the legitimate client already rotated finds nothing and
// fails closed. An owner mismatch is theft evidence and revokes every
// session of the asserted owner.
func (m *Manager) Rotate(ctx context.Context, oldToken, ownerID, deviceLabel string) (RotateResult, error) {
	s, err := m.sessions.FindByToken(ctx, oldToken)
	if xerrors.Is(err, xerrors.ErrNotFound) {
		return RotateResult{State: Denied}, nil
	}
	if err != nil {
		return RotateResult{State: Denied}, fmt.Errorf("failed to look up session: %w", err)
	}

	if s.OwnerID != ownerID {
		m.logger.Warn("token theft suspected on rotation",
			zap.String("asserted_owner", ownerID),
			zap.String("session_id", s.ID),
		)
		if _, err := m.RevokeAllForOwner(ctx, ownerID, domain.ReasonTheftDetected); err != nil {
			return RotateResult{State: TheftDetected}, fmt.Errorf("failed to revoke sessions after theft detection: %w", err)
		}
		return RotateResult{State: TheftDetected}, nil
	}

	now := m.now()
	if s.Expired(now) {
		// Ordinary expiry, not theft.
		if _, err := m.sessions.DeleteByToken(ctx, oldToken); err != nil {
			m.logger.Warn("failed to delete expired session", zap.Error(err))
		}
		return RotateResult{State: Denied}, nil
	}

	deleted, err := m.sessions.DeleteByToken(ctx, oldToken)
	if err != nil {
		return RotateResult{State: Denied}, fmt.Errorf("failed to retire session: %w", err)
	}
	if !deleted {
		// A concurrent rotation won the race; this writer fails closed.
		return RotateResult{State: Denied}, nil
	}

	if deviceLabel == "" {
		deviceLabel = s.DeviceLabel
	}

	newToken, err := m.Generate(ctx, ownerID, deviceLabel)
	if err != nil {
		return RotateResult{State: Denied}, err
	}

	return RotateResult{State: Rotated, Token: newToken}, nil
}

// Verify checks a session token for the asserted owner. Not read-only: a
// successful call updates the session's last-used timestamp. An owner
// mismatch triggers the same broad theft response as Rotate.
func (m *Manager) Verify(ctx context.Context, token, ownerID string) (bool, error) {
	s, err := m.sessions.FindByToken(ctx, token)
	if xerrors.Is(err, xerrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up session: %w", err)
	}

	if s.OwnerID != ownerID {
		m.logger.Warn("token theft suspected on verification",
			zap.String("asserted_owner", ownerID),
			zap.String("session_id", s.ID),
		)
		if _, err := m.RevokeAllForOwner(ctx, ownerID, domain.ReasonVerificationFailed); err != nil {
			return false, fmt.Errorf("failed to revoke sessions after verification mismatch: %w", err)
		}
		return false, nil
	}

	now := m.now()
	if s.Expired(now) {
		if _, err := m.sessions.DeleteByToken(ctx, token); err != nil {
			m.logger.Warn("failed to delete expired session", zap.Error(err))
		}
		return false, nil
	}

	if err := m.sessions.Touch(ctx, token, now); err != nil {
		// The session is valid; a lost timestamp update is not a denial.
		m.logger.Warn("failed to touch session", zap.Error(err))
	}

	return true, nil
}

// RevokeAllForOwner moves every session of the owner onto the revocation
// list, preserving each row's own natural expiry, then deletes the rows in
// one batch. Safe with zero sessions. Used for logout-everywhere, theft
// response, and incident response.
func (m *Manager) RevokeAllForOwner(ctx context.Context, ownerID string, reason domain.RevocationReason) (int, error) {
	sessions, err := m.sessions.ListByOwner(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(sessions) == 0 {
		return 0, nil
	}

	for _, s := range sessions {
		if err := m.revocations.Add(ctx, s.Token, s.OwnerID, s.ExpiresAt, reason); err != nil {
			// Add is idempotent; a retry after this failure is safe.
			return 0, fmt.Errorf("failed to revoke session %s: %w", s.ID, err)
		}
	}

	count, err := m.sessions.DeleteAllByOwner(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}

	m.logger.Info("revoked all sessions for owner",
		zap.String("owner_id", ownerID),
		zap.String("reason", string(reason)),
		zap.Int64("count", count),
	)

	return int(count), nil
}

// RevokeOne retires a single session addressed by id, scoped to the asserted
// owner. Returns false if no such session exists under that owner.
func (m *Manager) RevokeOne(ctx context.Context, sessionID, ownerID string, reason domain.RevocationReason) (bool, error) {
	s, err := m.sessions.FindByIDAndOwner(ctx, sessionID, ownerID)
	if xerrors.Is(err, xerrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up session: %w", err)
	}

	if err := m.revocations.Add(ctx, s.Token, s.OwnerID, s.ExpiresAt, reason); err != nil {
		return false, fmt.Errorf("failed to revoke session: %w", err)
	}

	if _, err := m.sessions.DeleteByToken(ctx, s.Token); err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}

	return true, nil
}

// ListActiveSessions returns the non-expired sessions for the devices view,
// most recently used first. Token values are never exposed.
func (m *Manager) ListActiveSessions(ctx context.Context, ownerID string) ([]domain.Summary, error) {
	sessions, err := m.sessions.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	now := m.now()
	summaries := make([]domain.Summary, 0, len(sessions))
	for _, s := range sessions {
		if s.Expired(now) {
			continue
		}
		summaries = append(summaries, s.Summarize())
	}

	return summaries, nil
}

// CleanupExpired deletes all sessions past their expiry. Independent of, and
// safe to interleave with, revocation-list cleanup.
func (m *Manager) CleanupExpired(ctx context.Context) (int64, error) {
	return m.sessions.DeleteExpired(ctx, m.now())
}

// newOpaqueToken returns 512 bits of URL-safe randomness.
func newOpaqueToken() (string, error) {
	b := make([]byte, 64)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
