package session

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	domain "tokenguard-service/internal/domain/session"
	xerrors "tokenguard-service/internal/pkg/errors"
	"tokenguard-service/internal/service/revocation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStore struct {
	mu      sync.Mutex
	byToken map[string]*domain.Session
}

func newMemStore() *memStore {
	return &memStore{byToken: make(map[string]*domain.Session)}
}

func (r *memStore) Create(ctx context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s2 := *s
	r.byToken[s.Token] = &s2
	return nil
}

func (r *memStore) FindByToken(ctx context.Context, token string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byToken[token]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	s2 := *s
	return &s2, nil
}

func (r *memStore) FindByIDAndOwner(ctx context.Context, id, ownerID string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.byToken {
		if s.ID == id && s.OwnerID == ownerID {
			s2 := *s
			return &s2, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (r *memStore) Touch(ctx context.Context, token string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byToken[token]; ok {
		s.LastUsedAt = sql.NullTime{Time: at, Valid: true}
	}
	return nil
}

func (r *memStore) DeleteByToken(ctx context.Context, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byToken[token]; !ok {
		return false, nil
	}
	delete(r.byToken, token)
	return true, nil
}

func (r *memStore) DeleteAllByOwner(ctx context.Context, ownerID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for token, s := range r.byToken {
		if s.OwnerID == ownerID {
			delete(r.byToken, token)
			count++
		}
	}
	return count, nil
}

func (r *memStore) DeleteOldestByOwner(ctx context.Context, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var oldest *domain.Session
	for _, s := range r.byToken {
		if s.OwnerID != ownerID {
			continue
		}
		if oldest == nil || s.CreatedAt.Before(oldest.CreatedAt) {
			oldest = s
		}
	}
	if oldest != nil {
		delete(r.byToken, oldest.Token)
	}
	return nil
}

func (r *memStore) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, s := range r.byToken {
		if s.OwnerID == ownerID {
			count++
		}
	}
	return count, nil
}

func (r *memStore) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sessions []*domain.Session
	for _, s := range r.byToken {
		if s.OwnerID == ownerID {
			s2 := *s
			sessions = append(sessions, &s2)
		}
	}
	// last_used_at DESC NULLS LAST, created_at ASC
	sort.SliceStable(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		switch {
		case a.LastUsedAt.Valid && b.LastUsedAt.Valid:
			if !a.LastUsedAt.Time.Equal(b.LastUsedAt.Time) {
				return a.LastUsedAt.Time.After(b.LastUsedAt.Time)
			}
			return a.CreatedAt.Before(b.CreatedAt)
		case a.LastUsedAt.Valid:
			return true
		case b.LastUsedAt.Valid:
			return false
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	})
	return sessions, nil
}

func (r *memStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for token, s := range r.byToken {
		if s.ExpiresAt.Before(now) {
			delete(r.byToken, token)
			count++
		}
	}
	return count, nil
}

type memRevocationStore struct {
	mu      sync.Mutex
	entries map[string]*domain.RevocationEntry
}

func newMemRevocationStore() *memRevocationStore {
	return &memRevocationStore{entries: make(map[string]*domain.RevocationEntry)}
}

func (r *memRevocationStore) Upsert(ctx context.Context, e *domain.RevocationEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[e.Token]; !ok {
		e2 := *e
		r.entries[e.Token] = &e2
	}
	return nil
}

func (r *memRevocationStore) Exists(ctx context.Context, token string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[token]
	return ok && e.ExpiresAt.After(now), nil
}

func (r *memRevocationStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for token, e := range r.entries {
		if e.ExpiresAt.Before(now) {
			delete(r.entries, token)
			count++
		}
	}
	return count, nil
}

type fixture struct {
	mgr      *Manager
	store    *memStore
	revStore *memRevocationStore
	clock    *fakeClock
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	revStore := newMemRevocationStore()
	logger := zap.NewNop()
	list := revocation.NewList(revStore, nil, revocation.FailOpen, logger)
	mgr := NewManager(store, list, logger, Config{})
	clock := &fakeClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	mgr.now = clock.Now
	return &fixture{mgr: mgr, store: store, revStore: revStore, clock: clock}
}

func TestGenerateVerifyRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, err := f.mgr.Generate(ctx, "u1", "Chrome/Win")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	ok, err := f.mgr.Verify(ctx, token, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGenerateDefaultsDeviceLabel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, err := f.mgr.Generate(ctx, "u1", "")
	require.NoError(t, err)

	s, err := f.store.FindByToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultDeviceLabel, s.DeviceLabel)
}

func TestSessionCapNeverExceeded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		_, err := f.mgr.Generate(ctx, "u1", "device")
		require.NoError(t, err)
		f.clock.Advance(time.Second)

		count, err := f.store.CountByOwner(ctx, "u1")
		require.NoError(t, err)
		assert.LessOrEqual(t, count, domain.MaxSessionsPerOwner)
	}
}

func TestEvictionDeletesOldestByCreation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tokens := make([]string, 0, 6)
	for i := 0; i < 5; i++ {
		token, err := f.mgr.Generate(ctx, "u1", "device")
		require.NoError(t, err)
		tokens = append(tokens, token)
		f.clock.Advance(time.Minute)
	}

	// Touch the oldest so eviction-by-creation (not by use) is observable.
	ok, err := f.mgr.Verify(ctx, tokens[0], "u1")
	require.NoError(t, err)
	require.True(t, ok)

	sixth, err := f.mgr.Generate(ctx, "u1", "device")
	require.NoError(t, err)
	tokens = append(tokens, sixth)

	_, err = f.store.FindByToken(ctx, tokens[0])
	assert.ErrorIs(t, err, xerrors.ErrNotFound, "oldest-by-creation session must be evicted")

	for _, token := range tokens[1:] {
		_, err := f.store.FindByToken(ctx, token)
		assert.NoError(t, err)
	}
}

func TestRotateIssuesNewTokenAndInvalidatesOld(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t1, err := f.mgr.Generate(ctx, "u1", "Chrome/Win")
	require.NoError(t, err)

	result, err := f.mgr.Rotate(ctx, t1, "u1", "")
	require.NoError(t, err)
	require.Equal(t, Rotated, result.State)
	require.NotEmpty(t, result.Token)
	assert.NotEqual(t, t1, result.Token)

	ok, err := f.mgr.Verify(ctx, t1, "u1")
	require.NoError(t, err)
	assert.False(t, ok, "old token must never verify after rotation")

	ok, err = f.mgr.Verify(ctx, result.Token, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRotateCarriesDeviceLabelForward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t1, err := f.mgr.Generate(ctx, "u1", "Chrome/Win")
	require.NoError(t, err)

	result, err := f.mgr.Rotate(ctx, t1, "u1", "")
	require.NoError(t, err)
	require.Equal(t, Rotated, result.State)

	s, err := f.store.FindByToken(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, "Chrome/Win", s.DeviceLabel)

	result2, err := f.mgr.Rotate(ctx, result.Token, "u1", "Firefox/Mac")
	require.NoError(t, err)
	require.Equal(t, Rotated, result2.State)

	s2, err := f.store.FindByToken(ctx, result2.Token)
	require.NoError(t, err)
	assert.Equal(t, "Firefox/Mac", s2.DeviceLabel)
}

func TestRotateUnknownTokenDenied(t *testing.T) {
	f := newFixture(t)

	result, err := f.mgr.Rotate(context.Background(), "no-such-token", "u1", "")
	require.NoError(t, err)
	assert.Equal(t, Denied, result.State)
	assert.Empty(t, result.Token)
}

func TestRotateExpiredSessionDeniedAndDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t1, err := f.mgr.Generate(ctx, "u1", "device")
	require.NoError(t, err)

	f.clock.Advance(domain.DefaultSessionTTL + time.Hour)

	result, err := f.mgr.Rotate(ctx, t1, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, Denied, result.State)

	_, err = f.store.FindByToken(ctx, t1)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)

	// Ordinary expiry is not theft: nothing lands on the revocation list.
	assert.Empty(t, f.revStore.entries)
}

func TestRotateOwnerMismatchRevokesAssertedOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	aTokens := make([]string, 0, 2)
	for i := 0; i < 2; i++ {
		token, err := f.mgr.Generate(ctx, "ownerA", "device")
		require.NoError(t, err)
		aTokens = append(aTokens, token)
	}
	bToken, err := f.mgr.Generate(ctx, "ownerB", "device")
	require.NoError(t, err)

	result, err := f.mgr.Rotate(ctx, bToken, "ownerA", "")
	require.NoError(t, err)
	assert.Equal(t, TheftDetected, result.State)
	assert.Empty(t, result.Token)

	summaries, err := f.mgr.ListActiveSessions(ctx, "ownerA")
	require.NoError(t, err)
	assert.Empty(t, summaries)

	for _, token := range aTokens {
		ok, err := f.mgr.Verify(ctx, token, "ownerA")
		require.NoError(t, err)
		assert.False(t, ok)
	}

	for _, token := range aTokens {
		entry, ok := f.revStore.entries[token]
		require.True(t, ok, "revocation entry expected for every revoked session")
		assert.Equal(t, domain.ReasonTheftDetected, entry.Reason)
	}

	// The owner the session actually belongs to keeps their sessions.
	ok, err := f.mgr.Verify(ctx, bToken, "ownerB")
	require.NoError(t, err)
	assert.True(t, ok)
}

type loserStore struct {
	domain.Store
}

func (s *loserStore) DeleteByToken(ctx context.Context, token string) (bool, error) {
	// Simulates the race where a concurrent rotation deleted the row between
	// this writer's existence check and its delete.
	return false, nil
}

func TestRotateConcurrentLoserFailsClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t1, err := f.mgr.Generate(ctx, "u1", "device")
	require.NoError(t, err)

	f.mgr.sessions = &loserStore{Store: f.store}

	result, err := f.mgr.Rotate(ctx, t1, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, Denied, result.State, "zero rows affected by delete means session not found, not success")
}

func TestVerifyOwnerMismatchRevokesAssertedOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	aToken, err := f.mgr.Generate(ctx, "ownerA", "device")
	require.NoError(t, err)
	bToken, err := f.mgr.Generate(ctx, "ownerB", "device")
	require.NoError(t, err)

	ok, err := f.mgr.Verify(ctx, bToken, "ownerA")
	require.NoError(t, err)
	assert.False(t, ok)

	entry, found := f.revStore.entries[aToken]
	require.True(t, found)
	assert.Equal(t, domain.ReasonVerificationFailed, entry.Reason)

	summaries, err := f.mgr.ListActiveSessions(ctx, "ownerA")
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestVerifyExpiredSessionDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t1, err := f.mgr.Generate(ctx, "u1", "device")
	require.NoError(t, err)

	f.clock.Advance(domain.DefaultSessionTTL + time.Minute)

	ok, err := f.mgr.Verify(ctx, t1, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.store.FindByToken(ctx, t1)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestVerifyTouchesLastUsed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t1, err := f.mgr.Generate(ctx, "u1", "device")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)

	ok, err := f.mgr.Verify(ctx, t1, "u1")
	require.NoError(t, err)
	require.True(t, ok)

	s, err := f.store.FindByToken(ctx, t1)
	require.NoError(t, err)
	require.True(t, s.LastUsedAt.Valid)
	assert.Equal(t, f.clock.Now(), s.LastUsedAt.Time)
}

func TestRevokeAllForOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t1, err := f.mgr.Generate(ctx, "u1", "device-a")
	require.NoError(t, err)
	t2, err := f.mgr.Generate(ctx, "u1", "device-b")
	require.NoError(t, err)

	count, err := f.mgr.RevokeAllForOwner(ctx, "u1", domain.ReasonLogout)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	summaries, err := f.mgr.ListActiveSessions(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, summaries)

	// Each entry preserves its session's own natural expiry.
	for _, token := range []string{t1, t2} {
		entry, ok := f.revStore.entries[token]
		require.True(t, ok)
		assert.Equal(t, domain.ReasonLogout, entry.Reason)
		assert.Equal(t, f.clock.Now().Add(domain.DefaultSessionTTL), entry.ExpiresAt)
	}
}

func TestRevokeAllForOwnerWithNoSessions(t *testing.T) {
	f := newFixture(t)

	count, err := f.mgr.RevokeAllForOwner(context.Background(), "nobody", domain.ReasonSecurityIncident)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRevokeOneScopedToOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t1, err := f.mgr.Generate(ctx, "u1", "device")
	require.NoError(t, err)
	s, err := f.store.FindByToken(ctx, t1)
	require.NoError(t, err)

	// Guessing another owner's session id must not revoke it.
	revoked, err := f.mgr.RevokeOne(ctx, s.ID, "u2", domain.ReasonUserRevoked)
	require.NoError(t, err)
	assert.False(t, revoked)

	revoked, err = f.mgr.RevokeOne(ctx, s.ID, "u1", domain.ReasonUserRevoked)
	require.NoError(t, err)
	assert.True(t, revoked)

	ok, err := f.mgr.Verify(ctx, t1, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	entry, found := f.revStore.entries[t1]
	require.True(t, found)
	assert.Equal(t, domain.ReasonUserRevoked, entry.Reason)
}

func TestListActiveSessionsOrdering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t1, err := f.mgr.Generate(ctx, "u1", "first")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.mgr.Generate(ctx, "u1", "second")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	t3, err := f.mgr.Generate(ctx, "u1", "third")
	require.NoError(t, err)

	// Use third, then first: most recently used sorts first; the never-used
	// session sorts last.
	f.clock.Advance(time.Minute)
	_, err = f.mgr.Verify(ctx, t3, "u1")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.mgr.Verify(ctx, t1, "u1")
	require.NoError(t, err)

	summaries, err := f.mgr.ListActiveSessions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, "first", summaries[0].DeviceLabel)
	assert.Equal(t, "third", summaries[1].DeviceLabel)
	assert.Equal(t, "second", summaries[2].DeviceLabel)
	assert.Nil(t, summaries[2].LastUsedAt)
}

func TestListActiveSessionsSkipsExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.Generate(ctx, "u1", "old")
	require.NoError(t, err)
	f.clock.Advance(domain.DefaultSessionTTL + time.Minute)
	_, err = f.mgr.Generate(ctx, "u1", "fresh")
	require.NoError(t, err)

	summaries, err := f.mgr.ListActiveSessions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "fresh", summaries[0].DeviceLabel)
}

func TestCleanupExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.Generate(ctx, "u1", "old")
	require.NoError(t, err)
	f.clock.Advance(domain.DefaultSessionTTL + time.Minute)
	fresh, err := f.mgr.Generate(ctx, "u1", "fresh")
	require.NoError(t, err)

	count, err := f.mgr.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Idempotent: a second sweep with nothing new finds nothing.
	count, err = f.mgr.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	ok, err := f.mgr.Verify(ctx, fresh, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
}
