// internal/repository/postgres/session_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tokenguard-service/internal/domain/session"
	xerrors "tokenguard-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SessionRepository struct {
	db *pgxpool.Pool
}

func NewSessionRepository(db *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session row
func (r *SessionRepository) Create(ctx context.Context, s *session.Session) error {
	query := `
		INSERT INTO sessions (id, token, owner_id, device_label, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Exec(ctx, query,
		s.ID, s.Token, s.OwnerID, s.DeviceLabel, s.CreatedAt, s.ExpiresAt,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.ErrStore, fmt.Sprintf("failed to create session: %v", err))
	}

	return nil
}

// FindByToken retrieves a session by its opaque token
func (r *SessionRepository) FindByToken(ctx context.Context, token string) (*session.Session, error) {
	query := `
		SELECT id, token, owner_id, device_label, created_at, last_used_at, expires_at
		FROM sessions
		WHERE token = $1
	`

	var s session.Session
	err := r.db.QueryRow(ctx, query, token).Scan(
		&s.ID, &s.Token, &s.OwnerID, &s.DeviceLabel,
		&s.CreatedAt, &s.LastUsedAt, &s.ExpiresAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.ErrStore, fmt.Sprintf("failed to find session: %v", err))
	}

	return &s, nil
}

// FindByIDAndOwner retrieves a session scoped to the asserted owner, so one
// owner cannot revoke another's session by guessing an id
func (r *SessionRepository) FindByIDAndOwner(ctx context.Context, id, ownerID string) (*session.Session, error) {
	query := `
		SELECT id, token, owner_id, device_label, created_at, last_used_at, expires_at
		FROM sessions
		WHERE id = $1 AND owner_id = $2
	`

	var s session.Session
	err := r.db.QueryRow(ctx, query, id, ownerID).Scan(
		&s.ID, &s.Token, &s.OwnerID, &s.DeviceLabel,
		&s.CreatedAt, &s.LastUsedAt, &s.ExpiresAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.ErrStore, fmt.Sprintf("failed to find session: %v", err))
	}

	return &s, nil
}

// Touch sets last_used_at on a successful verification
func (r *SessionRepository) Touch(ctx context.Context, token string, at time.Time) error {
	query := `UPDATE sessions SET last_used_at = $1 WHERE token = $2`
	if _, err := r.db.Exec(ctx, query, at, token); err != nil {
		return xerrors.Wrap(xerrors.ErrStore, fmt.Sprintf("failed to touch session: %v", err))
	}
	return nil
}

// DeleteByToken removes a session row. Reports whether a row was actually
// deleted; a zero-row delete means a concurrent writer got there first and
// the caller must treat the session as not found.
func (r *SessionRepository) DeleteByToken(ctx context.Context, token string) (bool, error) {
	query := `DELETE FROM sessions WHERE token = $1`
	tag, err := r.db.Exec(ctx, query, token)
	if err != nil {
		return false, xerrors.Wrap(xerrors.ErrStore, fmt.Sprintf("failed to delete session: %v", err))
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteAllByOwner removes every session row for the owner in a single batch
func (r *SessionRepository) DeleteAllByOwner(ctx context.Context, ownerID string) (int64, error) {
	query := `DELETE FROM sessions WHERE owner_id = $1`
	tag, err := r.db.Exec(ctx, query, ownerID)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.ErrStore, fmt.Sprintf("failed to delete sessions: %v", err))
	}
	return tag.RowsAffected(), nil
}

// DeleteOldestByOwner evicts the single oldest-by-creation session for the
// owner (LRU-by-creation, not by use)
func (r *SessionRepository) DeleteOldestByOwner(ctx context.Context, ownerID string) error {
	query := `
		DELETE FROM sessions
		WHERE id = (
			SELECT id FROM sessions
			WHERE owner_id = $1
			ORDER BY created_at ASC
			LIMIT 1
		)
	`
	if _, err := r.db.Exec(ctx, query, ownerID); err != nil {
		return xerrors.Wrap(xerrors.ErrStore, fmt.Sprintf("failed to evict oldest session: %v", err))
	}
	return nil
}

// CountByOwner returns the number of session rows for an owner
func (r *SessionRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	query := `SELECT COUNT(*) FROM sessions WHERE owner_id = $1`

	var count int
	if err := r.db.QueryRow(ctx, query, ownerID).Scan(&count); err != nil {
		return 0, xerrors.Wrap(xerrors.ErrStore, fmt.Sprintf("failed to count sessions: %v", err))
	}
	return count, nil
}

// ListByOwner returns all session rows for an owner, most recently used
// first; never-used rows sort last among themselves by insertion order
func (r *SessionRepository) ListByOwner(ctx context.Context, ownerID string) ([]*session.Session, error) {
	query := `
		SELECT id, token, owner_id, device_label, created_at, last_used_at, expires_at
		FROM sessions
		WHERE owner_id = $1
		ORDER BY last_used_at DESC NULLS LAST, created_at ASC
	`

	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.ErrStore, fmt.Sprintf("failed to list sessions: %v", err))
	}
	defer rows.Close()

	var sessions []*session.Session
	for rows.Next() {
		var s session.Session
		if err := rows.Scan(
			&s.ID, &s.Token, &s.OwnerID, &s.DeviceLabel,
			&s.CreatedAt, &s.LastUsedAt, &s.ExpiresAt,
		); err != nil {
			return nil, xerrors.Wrap(xerrors.ErrStore, fmt.Sprintf("failed to scan session: %v", err))
		}
		sessions = append(sessions, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.ErrStore, fmt.Sprintf("failed to read sessions: %v", err))
	}

	return sessions, nil
}

// DeleteExpired removes all sessions past their expiry; idempotent and safe
// to run concurrently with itself
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at < $1`
	tag, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.ErrStore, fmt.Sprintf("failed to delete expired sessions: %v", err))
	}
	return tag.RowsAffected(), nil
}
