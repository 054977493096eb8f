package token

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EgehanKilicarslan/authgate/internal/database"
	"github.com/EgehanKilicarslan/authgate/internal/logger"
)

// cancelingDirectory cancels the caller's context during the user lookup
type cancelingDirectory struct {
	stubDirectory
	cancel context.CancelFunc
}

func (d *cancelingDirectory) GetUserByID(ctx context.Context, id string) (*User, error) {
	if d.cancel != nil {
		d.cancel()
	}
	return d.stubDirectory.GetUserByID(ctx, id)
}

// ctxStore honours cancellation the way a network backend does and can cancel
// the caller right after a family commit lands.
type ctxStore struct {
	*database.MemoryStore
	cancelAfterCommit context.CancelFunc
}

func (s *ctxStore) Set(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.Set(ctx, key, value, expiresAt)
}

func (s *ctxStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.Delete(ctx, key)
}

func (s *ctxStore) CompareAndSwap(ctx context.Context, key string, old, value []byte, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.MemoryStore.CompareAndSwap(ctx, key, old, value, expiresAt); err != nil {
		return err
	}
	if s.cancelAfterCommit != nil && strings.HasPrefix(key, familyKeyPrefix) {
		s.cancelAfterCommit()
	}
	return nil
}

func newCtxStore(t *testing.T, clock *fakeClock) *ctxStore {
	t.Helper()
	store := &ctxStore{MemoryStore: database.NewMemoryStoreWithClock(logger.Discard(), clock.Now)}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRotate_CanceledBeforeCommitLeavesFamilyUntouched(t *testing.T) {
	clock := newFakeClock()
	store := newCtxStore(t, clock)
	users := &cancelingDirectory{stubDirectory: stubDirectory{alice.ID: alice}}

	svc, err := NewService(store, users, testOptions(clock), logger.Discard())
	require.NoError(t, err)
	ts := svc.(*tokenService)

	tokenA, err := ts.GenerateRefreshToken()
	require.NoError(t, err)
	familyID, err := ts.CreateFamily(context.Background(), alice.ID, tokenA)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	users.cancel = cancel

	_, err = ts.Rotate(ctx, tokenA, alice.ID)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrUnauthorized)

	family, err := ts.families.Get(context.Background(), familyID)
	require.NoError(t, err)
	assert.True(t, family.matchesCurrent(digest(tokenA)), "the abandoned rotation must not advance the family")
	assert.Empty(t, family.ParentToken)
	assert.False(t, family.IsRevoked)

	users.cancel = nil
	resp, err := ts.Rotate(context.Background(), tokenA, alice.ID)
	require.NoError(t, err, "the client can retry with the same token")
	assert.NotEmpty(t, resp.RefreshToken)
}

func TestRotate_CanceledAfterCommitCompletesIndex(t *testing.T) {
	clock := newFakeClock()
	store := newCtxStore(t, clock)

	svc, err := NewService(store, stubDirectory{alice.ID: alice}, testOptions(clock), logger.Discard())
	require.NoError(t, err)
	ts := svc.(*tokenService)

	tokenA, err := ts.GenerateRefreshToken()
	require.NoError(t, err)
	familyID, err := ts.CreateFamily(context.Background(), alice.ID, tokenA)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	store.cancelAfterCommit = cancel

	resp, err := ts.Rotate(ctx, tokenA, alice.ID)
	require.NoError(t, err)
	require.Error(t, ctx.Err(), "the caller went away after the commit")
	store.cancelAfterCommit = nil

	family, err := ts.families.Get(context.Background(), familyID)
	require.NoError(t, err)
	assert.True(t, family.matchesCurrent(digest(resp.RefreshToken)))
	assert.False(t, family.matchesCurrent(digest(tokenA)), "exactly one token is current")

	// the new token's index was written on the detached context
	resolved, found, err := ts.FamilyIDForToken(context.Background(), resp.RefreshToken)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, familyID, resolved)

	// and the old one only lives out the grace window
	clock.Advance(testGracePeriod + time.Second)
	_, found, err = ts.FamilyIDForToken(context.Background(), tokenA)
	require.NoError(t, err)
	assert.False(t, found)

	_, err = ts.Rotate(context.Background(), resp.RefreshToken, alice.ID)
	assert.NoError(t, err)
}
