package dirty

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageManagerDebounceWindowDefaultsToTenPercentCappedAt30s(t *testing.T) {
	backend := newFakeBackend()
	m := newTestManager(backend)
	pool := NewWorkerPool(1)
	log := logrus.NewEntry(logrus.New())

	sm := NewStorageManager(DefaultStorageManagerConfig(), m, pool, log, 0)
	assert.Equal(t, 30*time.Second, sm.debounce, "5m/10=30s already at the cap")

	shortInterval := StorageManagerConfig{PersistenceInterval: 20 * time.Second}
	sm2 := NewStorageManager(shortInterval, m, pool, log, 0)
	assert.Equal(t, 2*time.Second, sm2.debounce)
}

func TestStorageManagerDebounceOverrideWins(t *testing.T) {
	backend := newFakeBackend()
	m := newTestManager(backend)
	pool := NewWorkerPool(1)
	log := logrus.NewEntry(logrus.New())

	sm := NewStorageManager(DefaultStorageManagerConfig(), m, pool, log, 5*time.Millisecond)
	assert.Equal(t, 5*time.Millisecond, sm.debounce)
}

func TestNotifyDirtySuppressesRepeatedFlushesWithinDebounceWindow(t *testing.T) {
	backend := newFakeBackend()
	m := newTestManager(backend)
	pool := NewWorkerPool(1)
	log := logrus.NewEntry(logrus.New())

	sm := NewStorageManager(StorageManagerConfig{
		DirtyTrackingEnabled:  true,
		EventBasedPersistence: true,
	}, m, pool, log, time.Hour)

	ctx := context.Background()
	m.MarkDirty("p1", "profile", nil, "profile")
	sm.NotifyDirty(ctx, "p1")

	m.MarkDirty("p1", "profile", nil, "profile")
	sm.NotifyDirty(ctx, "p1") // suppressed: within the (artificially huge) debounce window

	require.Eventually(t, func() bool {
		backend.mu.Lock()
		defer backend.mu.Unlock()
		return backend.saves >= 1
	}, time.Second, 10*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	backend.mu.Lock()
	saves := backend.saves
	backend.mu.Unlock()
	assert.Equal(t, 1, saves, "second NotifyDirty within the debounce window must not trigger another flush")
}

func TestNotifyDirtyNoOpWhenEventBasedPersistenceDisabled(t *testing.T) {
	backend := newFakeBackend()
	m := newTestManager(backend)
	pool := NewWorkerPool(1)
	log := logrus.NewEntry(logrus.New())

	sm := NewStorageManager(StorageManagerConfig{DirtyTrackingEnabled: true, EventBasedPersistence: false}, m, pool, log, time.Millisecond)

	m.MarkDirty("p1", "profile", nil, "profile")
	sm.NotifyDirty(context.Background(), "p1")

	time.Sleep(20 * time.Millisecond)
	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, 0, backend.saves)
}
