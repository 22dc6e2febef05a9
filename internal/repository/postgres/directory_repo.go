// internal/repository/postgres/directory_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	xerrors "tokenguard-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DirectoryRepository reads the external account store, keyed by opaque
// owner id. This subsystem never writes to it.
type DirectoryRepository struct {
	db *pgxpool.Pool
}

func NewDirectoryRepository(db *pgxpool.Pool) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// Lookup returns the role and email used to populate access-token claims.
func (r *DirectoryRepository) Lookup(ctx context.Context, ownerID string) (string, string, error) {
	query := `SELECT role, email FROM accounts WHERE id = $1`

	var role, email string
	err := r.db.QueryRow(ctx, query, ownerID).Scan(&role, &email)

	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", xerrors.ErrNotFound
	}
	if err != nil {
		return "", "", xerrors.Wrap(xerrors.ErrStore, fmt.Sprintf("failed to look up account: %v", err))
	}

	return role, email, nil
}
