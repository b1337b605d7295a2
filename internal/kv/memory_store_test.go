package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreLockAcquireReleaseReacquire(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	acquired, err := store.SetNX(ctx, "lock:p1", "token-a", 0)
	require.NoError(t, err)
	assert.True(t, acquired)

	blocked, err := store.SetNX(ctx, "lock:p1", "token-b", 0)
	require.NoError(t, err)
	assert.False(t, blocked, "second acquire while held must fail")

	deleted, err := store.CompareAndDelete(ctx, "lock:p1", "token-a")
	require.NoError(t, err)
	assert.True(t, deleted)

	reacquired, err := store.SetNX(ctx, "lock:p1", "token-c", 0)
	require.NoError(t, err)
	assert.True(t, reacquired, "lock must be acquirable again after release")
}

func TestMemoryStoreCompareAndDeleteRejectsWrongToken(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.SetNX(ctx, "lock:p1", "token-a", 0)
	require.NoError(t, err)

	deleted, err := store.CompareAndDelete(ctx, "lock:p1", "wrong-token")
	require.NoError(t, err)
	assert.False(t, deleted, "compare-and-delete with the wrong token must not delete")

	val, err := store.Get(ctx, "lock:p1")
	require.NoError(t, err)
	assert.Equal(t, "token-a", val, "lock value must survive a rejected release")
}

func TestMemoryStoreGetMissingReturnsErrNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Get(ctx, "absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreSetMembership(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.SAdd(ctx, "active", "p1", "p2"))
	members, err := store.SMembers(ctx, "active")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p1", "p2"}, members)

	require.NoError(t, store.SRem(ctx, "active", "p1"))
	members, err = store.SMembers(ctx, "active")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p2"}, members)
}

func TestMemoryStoreScanPrefix(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Set(ctx, "fulcrum:party:data:p1", "{}"))
	require.NoError(t, store.Set(ctx, "fulcrum:party:data:p2", "{}"))
	require.NoError(t, store.Set(ctx, "other:key", "x"))

	keys, err := store.ScanPrefix(ctx, "fulcrum:party:data:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"fulcrum:party:data:p1", "fulcrum:party:data:p2"}, keys)
}
