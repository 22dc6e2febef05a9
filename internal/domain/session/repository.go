// internal/domain/session/repository.go
package session

import (
	"context"
	"time"
)

// Store is the durable session table. Rows are owned exclusively by the
// session manager; no other component mutates them. Delete methods report
// what they touched so concurrent writers fail closed on already-deleted
// rows instead of assuming success.
type Store interface {
	Create(ctx context.Context, s *Session) error
	FindByToken(ctx context.Context, token string) (*Session, error)
	FindByIDAndOwner(ctx context.Context, id, ownerID string) (*Session, error)
	Touch(ctx context.Context, token string, at time.Time) error
	DeleteByToken(ctx context.Context, token string) (bool, error)
	DeleteAllByOwner(ctx context.Context, ownerID string) (int64, error)
	DeleteOldestByOwner(ctx context.Context, ownerID string) error
	CountByOwner(ctx context.Context, ownerID string) (int, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*Session, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// RevocationStore is the durable revocation list. Entries are append/delete
// only and never updated in place; Upsert must be idempotent so retries
// after a caller timeout are safe.
type RevocationStore interface {
	Upsert(ctx context.Context, e *RevocationEntry) error
	Exists(ctx context.Context, token string, now time.Time) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Directory is the external user/account store, consumed only as a lookup
// keyed by opaque owner id to populate access-token claims on refresh.
type Directory interface {
	Lookup(ctx context.Context, ownerID string) (role, email string, err error)
}
