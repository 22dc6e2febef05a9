// internal/repository/postgres/revocation_repo.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"tokenguard-service/internal/domain/session"
	xerrors "tokenguard-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

type RevocationRepository struct {
	db *pgxpool.Pool
}

func NewRevocationRepository(db *pgxpool.Pool) *RevocationRepository {
	return &RevocationRepository{db: db}
}

// Upsert records a revoked token. Idempotent: re-revoking the same token is
// a no-op, so retries after a caller timeout are safe.
func (r *RevocationRepository) Upsert(ctx context.Context, e *session.RevocationEntry) error {
	query := `
		INSERT INTO revoked_tokens (token, owner_id, reason, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token) DO NOTHING
	`

	_, err := r.db.Exec(ctx, query, e.Token, e.OwnerID, e.Reason, e.ExpiresAt, e.CreatedAt)
	if err != nil {
		return xerrors.Wrap(xerrors.ErrStore, fmt.Sprintf("failed to record revocation: %v", err))
	}

	return nil
}

// Exists reports whether a token is on the revocation list. Stale entries
// are filtered by expiry, so a skipped cleanup run is never exploitable.
func (r *RevocationRepository) Exists(ctx context.Context, token string, now time.Time) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE token = $1 AND expires_at > $2)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, token, now).Scan(&exists); err != nil {
		return false, xerrors.Wrap(xerrors.ErrStore, fmt.Sprintf("failed to check revocation: %v", err))
	}
	return exists, nil
}

// DeleteExpired garbage-collects entries whose revoked token would have
// expired naturally anyway
func (r *RevocationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM revoked_tokens WHERE expires_at < $1`
	tag, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.ErrStore, fmt.Sprintf("failed to delete expired revocations: %v", err))
	}
	return tag.RowsAffected(), nil
}
