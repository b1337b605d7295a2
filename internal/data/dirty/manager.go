// Package dirty implements the dirty-entry tracking manager and the
// storage-manager persistence scheduler of spec §4.G G2: mark entries
// dirty, flush synchronously or asynchronously, and coordinate
// time-based and event-based persistence so only one of them owns the
// periodic timer.
package dirty

import (
	"context"
	"sync"
	"time"

	"github.com/haroldsh/fulcrum/internal/data"
)

// EntryType labels the kind of change an entry records. Flushing does
// not consult it: every entry is resolved by its schema key and written
// with the backend's Save.
type EntryType string

// Entry is one pending write: the schema key, the record, and its type.
type Entry struct {
	SchemaKey string
	Record    data.Record
	Type      EntryType
	MarkedAt  time.Time
}

// BackendResolver resolves a schema key to the backend that owns it, so
// the manager can flush heterogeneous schemas (some SQL, some JSON) in
// one pass.
type BackendResolver func(schemaKey string) (data.PlayerDataBackend, bool)

// Manager holds playerId -> schemaKey -> Entry, last-write-wins.
type Manager struct {
	mu       sync.Mutex
	byPlayer map[string]map[string]Entry
	resolve  BackendResolver
}

// NewManager creates an empty Manager.
func NewManager(resolve BackendResolver) *Manager {
	return &Manager{byPlayer: make(map[string]map[string]Entry), resolve: resolve}
}

// MarkDirty inserts or replaces the (player, schemaKey) entry.
func (m *Manager) MarkDirty(player, schemaKey string, rec data.Record, entryType EntryType) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bySchema, ok := m.byPlayer[player]
	if !ok {
		bySchema = make(map[string]Entry)
		m.byPlayer[player] = bySchema
	}
	bySchema[schemaKey] = Entry{SchemaKey: schemaKey, Record: rec, Type: entryType, MarkedAt: time.Now()}
}

// PersistDirtyData synchronously flushes every dirty entry for one
// player, returning the count persisted.
func (m *Manager) PersistDirtyData(ctx context.Context, player string) (int, error) {
	m.mu.Lock()
	bySchema := m.byPlayer[player]
	delete(m.byPlayer, player)
	m.mu.Unlock()

	return m.flush(ctx, player, bySchema)
}

// PersistAllDirtyData synchronously flushes every player's dirty
// entries, returning the total count persisted.
func (m *Manager) PersistAllDirtyData(ctx context.Context) (int, error) {
	m.mu.Lock()
	snapshot := m.byPlayer
	m.byPlayer = make(map[string]map[string]Entry)
	m.mu.Unlock()

	total := 0
	for player, bySchema := range snapshot {
		n, err := m.flush(ctx, player, bySchema)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (m *Manager) flush(ctx context.Context, player string, bySchema map[string]Entry) (int, error) {
	count := 0
	for schemaKey, entry := range bySchema {
		backend, ok := m.resolve(schemaKey)
		if !ok {
			continue
		}
		if err := backend.Save(ctx, player, schemaKey, entry.Record); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// PersistDirtyDataAsync flushes one player's entries on the given worker
// pool, returning a channel that receives the (count, error) result.
func (m *Manager) PersistDirtyDataAsync(ctx context.Context, pool *WorkerPool, player string) <-chan Result {
	return pool.Submit(func() Result {
		n, err := m.PersistDirtyData(ctx, player)
		return Result{Count: n, Err: err}
	})
}

// PersistAllDirtyDataAsync flushes every player's entries on the given
// worker pool.
func (m *Manager) PersistAllDirtyDataAsync(ctx context.Context, pool *WorkerPool) <-chan Result {
	return pool.Submit(func() Result {
		n, err := m.PersistAllDirtyData(ctx)
		return Result{Count: n, Err: err}
	})
}

// Result is the outcome of an asynchronous flush.
type Result struct {
	Count int
	Err   error
}
