// internal/service/revocation/revocation.go
package revocation

import (
	"context"
	"fmt"
	"time"

	"tokenguard-service/internal/domain/session"
	xerrors "tokenguard-service/internal/pkg/errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// FailurePolicy decides what IsRevoked answers when the store is down.
type FailurePolicy string

const (
	// FailOpen treats a store failure as "not revoked". Availability over
	// strictness: a transient outage of the revocation store must not lock
	// every legitimate user out. Every swallow is logged at Error level so
	// alerting can fire.
	FailOpen FailurePolicy = "fail_open"

	// FailClosed treats a store failure as "revoked".
	FailClosed FailurePolicy = "fail_closed"
)

// ParsePolicy maps a config string onto a policy, defaulting to fail-open.
func ParsePolicy(s string) FailurePolicy {
	if FailurePolicy(s) == FailClosed {
		return FailClosed
	}
	return FailOpen
}

// List is the durable revocation list with a Redis fast path. The store is
// the source of truth; cache keys carry the entry's own TTL and expire with
// the token they revoke.
type List struct {
	store  session.RevocationStore
	cache  *redis.Client
	policy FailurePolicy
	logger *zap.Logger
	now    func() time.Time
}

func NewList(store session.RevocationStore, cache *redis.Client, policy FailurePolicy, logger *zap.Logger) *List {
	return &List{
		store:  store,
		cache:  cache,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

// Add records a revoked token. The entry's expiry must equal the token's own
// natural expiry so cleanup can garbage-collect it; the list never grows
// unbounded. Store failure propagates: the caller must treat the overall
// operation as failed.
func (l *List) Add(ctx context.Context, token, ownerID string, expiresAt time.Time, reason session.RevocationReason) error {
	entry := &session.RevocationEntry{
		Token:     token,
		OwnerID:   ownerID,
		Reason:    reason,
		ExpiresAt: expiresAt,
		CreatedAt: l.now(),
	}

	if err := l.store.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("failed to add revocation: %w", err)
	}

	if l.cache != nil {
		ttl := time.Until(expiresAt)
		if ttl > 0 {
			if err := l.cache.Set(ctx, cacheKey(token), "1", ttl).Err(); err != nil {
				// Durable store already has the entry; cache misses fall back to it.
				l.logger.Warn("failed to cache revocation", zap.Error(err))
			}
		}
	}

	return nil
}

// IsRevoked checks the fast path first, then the durable store. On store
// failure the configured policy answers; the fail-open default is an
// explicit availability-over-strictness trade-off and is logged loudly.
func (l *List) IsRevoked(ctx context.Context, token string) bool {
	if l.cache != nil {
		exists, err := l.cache.Exists(ctx, cacheKey(token)).Result()
		if err == nil && exists > 0 {
			return true
		}
		if err != nil {
			l.logger.Warn("revocation cache unavailable, falling back to store", zap.Error(err))
		}
	}

	revoked, err := l.store.Exists(ctx, token, l.now())
	if err != nil {
		l.logger.Error("revocation store check failed",
			zap.String("policy", string(l.policy)),
			zap.Error(err),
		)
		return l.policy == FailClosed
	}

	return revoked
}

// Cleanup deletes all entries whose token would have expired naturally.
// Idempotent, pure deletion by predicate, safe to interleave with itself.
func (l *List) Cleanup(ctx context.Context, now time.Time) (int64, error) {
	count, err := l.store.DeleteExpired(ctx, now)
	if err != nil {
		return 0, xerrors.Wrap(err, "revocation cleanup failed")
	}
	return count, nil
}

func cacheKey(token string) string {
	return fmt.Sprintf("revoked:%s", token)
}
