package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertCompareAndSwap checks the swap contract every LockingStore backend shares
func assertCompareAndSwap(t *testing.T, store LockingStore, now func() time.Time) {
	t.Helper()
	ctx := context.Background()
	expires := now().Add(time.Hour)

	err := store.CompareAndSwap(ctx, "family:missing", []byte("v1"), []byte("v2"), expires)
	assert.ErrorIs(t, err, ErrConflict, "absent keys never swap")

	require.NoError(t, store.Set(ctx, "family:1", []byte("v1"), expires))

	require.NoError(t, store.CompareAndSwap(ctx, "family:1", []byte("v1"), []byte("v2"), expires))
	got, err := store.Get(ctx, "family:1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	// a writer still holding v1 lost the race
	err = store.CompareAndSwap(ctx, "family:1", []byte("v1"), []byte("stale"), expires)
	assert.ErrorIs(t, err, ErrConflict)
	got, err = store.Get(ctx, "family:1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	// a past expiry removes the key
	require.NoError(t, store.CompareAndSwap(ctx, "family:1", []byte("v2"), []byte("v3"), now().Add(-time.Second)))
	_, err = store.Get(ctx, "family:1")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}
