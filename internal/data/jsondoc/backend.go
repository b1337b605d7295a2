// Package jsondoc implements the JSON document PlayerDataBackend: one
// file per document at <base>/<collection>/<id>.json, atomic tmp-rename
// writes, per-collection reader-writer locks, an LRU read cache, and a
// .index file tracking known ids.
package jsondoc

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/haroldsh/fulcrum/internal/apperrors"
	"github.com/haroldsh/fulcrum/internal/data"
)

const defaultCacheSize = 1000

// Backend is a file-per-document store rooted at BaseDir.
type Backend struct {
	baseDir string

	mu    sync.Mutex
	locks map[string]*sync.RWMutex

	cacheMu sync.Mutex
	caches  map[string]*lru
}

// New creates a Backend rooted at baseDir, creating it if necessary.
func New(baseDir string) (*Backend, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("jsondoc: create base dir: %w", err)
	}
	return &Backend{baseDir: baseDir, locks: make(map[string]*sync.RWMutex), caches: make(map[string]*lru)}, nil
}

func (b *Backend) collectionLock(collection string) *sync.RWMutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.locks[collection]
	if !ok {
		l = &sync.RWMutex{}
		b.locks[collection] = l
	}
	return l
}

func (b *Backend) collectionCache(collection string) *lru {
	b.cacheMu.Lock()
	defer b.cacheMu.Unlock()
	c, ok := b.caches[collection]
	if !ok {
		c = newLRU(defaultCacheSize)
		b.caches[collection] = c
	}
	return c
}

func (b *Backend) docPath(collection, id string) string {
	return filepath.Join(b.baseDir, collection, id+".json")
}

func (b *Backend) collectionDir(collection string) string {
	return filepath.Join(b.baseDir, collection)
}

func (b *Backend) indexPath(collection string) string {
	return filepath.Join(b.collectionDir(collection), ".index")
}

func (b *Backend) Load(ctx context.Context, uuid, schemaKey string) (data.Record, error) {
	lock := b.collectionLock(schemaKey)
	lock.RLock()
	defer lock.RUnlock()

	if rec, ok := b.collectionCache(schemaKey).get(uuid); ok {
		return rec, nil
	}

	raw, err := os.ReadFile(b.docPath(schemaKey, uuid))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, data.ErrNotFound
		}
		return nil, err
	}

	var rec data.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	b.collectionCache(schemaKey).put(uuid, rec)
	return rec, nil
}

func (b *Backend) Save(ctx context.Context, uuid, schemaKey string, rec data.Record) error {
	lock := b.collectionLock(schemaKey)
	lock.Lock()
	defer lock.Unlock()
	return b.writeLocked(schemaKey, uuid, rec)
}

// writeLocked writes a document atomically: marshal, write to <id>.tmp,
// rename over <id>.json. Callers must hold the collection's write lock.
func (b *Backend) writeLocked(collection, id string, rec data.Record) error {
	dir := b.collectionDir(collection)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	tmpPath := filepath.Join(dir, id+".tmp")
	finalPath := filepath.Join(dir, id+".json")

	if err := os.WriteFile(tmpPath, raw, 0o644); err != nil {
		return apperrors.Wrap(apperrors.CodeSaveFailed, "jsondoc: write temp file", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return apperrors.Wrap(apperrors.CodeSaveFailed, "jsondoc: atomic rename", err)
	}

	b.collectionCache(collection).put(id, rec)
	b.appendIndex(collection, id) // non-critical; errors are swallowed
	return nil
}

// appendIndex maintains the .index file's newline-separated id set. A
// failure here does not fail the write. Query enumerates a collection
// from this index, so a document whose id never reached it is not
// returned by Query.
func (b *Backend) appendIndex(collection, id string) {
	ids, _ := b.readIndex(collection)
	for _, existing := range ids {
		if existing == id {
			return
		}
	}
	ids = append(ids, id)
	_ = os.WriteFile(b.indexPath(collection), []byte(strings.Join(ids, "\n")+"\n"), 0o644)
}

func (b *Backend) readIndex(collection string) ([]string, error) {
	raw, err := os.ReadFile(b.indexPath(collection))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil, nil
	}
	return lines, nil
}

func (b *Backend) LoadOrCreate(ctx context.Context, uuid, schemaKey string, deflt data.Record) (data.Record, error) {
	rec, err := b.Load(ctx, uuid, schemaKey)
	if err == nil {
		return rec, nil
	}
	if err != data.ErrNotFound {
		return nil, err
	}
	if err := b.Save(ctx, uuid, schemaKey, deflt); err != nil {
		return nil, err
	}
	return deflt, nil
}

// SaveBatch saves each entry in turn. It is not transactional: on the
// first failed save it returns 0 and the error, and documents already
// written by the batch stay written.
func (b *Backend) SaveBatch(ctx context.Context, entries map[string]map[string]data.Record) (int, error) {
	count := 0
	for uuid, bySchema := range entries {
		for schemaKey, rec := range bySchema {
			if err := b.Save(ctx, uuid, schemaKey, rec); err != nil {
				return 0, err
			}
			count++
		}
	}
	return count, nil
}

// SaveChangedFields degrades to a full-row save.
// TODO: write a field-level JSON merge-patch instead of a full rewrite.
func (b *Backend) SaveChangedFields(ctx context.Context, uuid, schemaKey string, rec data.Record, changedFields []string) error {
	return b.Save(ctx, uuid, schemaKey, rec)
}

// Query loads every document listed in the collection's .index file and delegates filtering
// beyond equality/null checks to the caller (the cross-schema query
// layer). Equality/null filters are answered directly off the raw JSON
// bytes via gjson first (loadIfMatches), so a document that fails them
// never pays for a full json.Unmarshal.
func (b *Backend) Query(ctx context.Context, schemaKey string, filters []data.Filter, limit, offset int) ([]data.Record, error) {
	ids, err := b.readIndex(schemaKey)
	if err != nil {
		return nil, err
	}

	lock := b.collectionLock(schemaKey)
	lock.RLock()
	defer lock.RUnlock()

	var out []data.Record
	skipped := 0
	for _, id := range ids {
		if limit > 0 && len(out) >= limit {
			break
		}
		rec, ok, err := b.loadIfMatches(schemaKey, id, filters)
		if err != nil || !ok {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// loadIfMatches reports whether the document at id satisfies filters,
// returning the decoded record only when it does. A cached record is
// checked directly; otherwise the raw bytes are pre-filtered via gjson
// (matchesAllRaw) before the cost of a full unmarshal is paid — a
// document that fails an equality/null filter is skipped without ever
// being decoded.
func (b *Backend) loadIfMatches(collection, id string, filters []data.Filter) (data.Record, bool, error) {
	if rec, ok := b.collectionCache(collection).get(id); ok {
		return rec, matchesAll(rec, filters), nil
	}

	raw, err := os.ReadFile(b.docPath(collection, id))
	if err != nil {
		return nil, false, err
	}
	if !matchesAllRaw(raw, filters) {
		return nil, false, nil
	}

	var rec data.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, err
	}
	b.collectionCache(collection).put(id, rec)
	return rec, true, nil
}

// FieldValue answers a single-field lookup directly off raw JSON bytes
// via gjson, skipping a full unmarshal for filters that only touch one
// field.
func FieldValue(raw []byte, jsonPath string) gjson.Result {
	return gjson.GetBytes(raw, jsonPath)
}

func matchesAll(rec data.Record, filters []data.Filter) bool {
	for _, f := range filters {
		if !matches(rec, f) {
			return false
		}
	}
	return true
}

func matches(rec data.Record, f data.Filter) bool {
	if f.Operator == data.OpCustom {
		return true // opaque predicates are evaluated by the query layer
	}
	val, exists := rec[f.Field]
	switch f.Operator {
	case data.OpIsNull:
		return !exists || val == nil
	case data.OpIsNotNull:
		return exists && val != nil
	case data.OpEquals:
		return exists && fmt.Sprintf("%v", val) == fmt.Sprintf("%v", f.Value)
	case data.OpNotEquals:
		return !exists || fmt.Sprintf("%v", val) != fmt.Sprintf("%v", f.Value)
	default:
		return true // comparisons beyond equality are left to the query layer
	}
}

// matchesAllRaw is matchesAll's raw-bytes counterpart: the same
// equality/null operator subset, answered via FieldValue instead of a
// decoded data.Record, so it can reject a document before json.Unmarshal
// ever runs.
func matchesAllRaw(raw []byte, filters []data.Filter) bool {
	for _, f := range filters {
		if !matchesRaw(raw, f) {
			return false
		}
	}
	return true
}

func matchesRaw(raw []byte, f data.Filter) bool {
	if f.Operator == data.OpCustom {
		return true
	}
	result := FieldValue(raw, f.Field)
	switch f.Operator {
	case data.OpIsNull:
		return !result.Exists() || result.Type == gjson.Null
	case data.OpIsNotNull:
		return result.Exists() && result.Type != gjson.Null
	case data.OpEquals:
		return result.Exists() && fmt.Sprintf("%v", result.Value()) == fmt.Sprintf("%v", f.Value)
	case data.OpNotEquals:
		return !result.Exists() || fmt.Sprintf("%v", result.Value()) != fmt.Sprintf("%v", f.Value)
	default:
		return true // comparisons beyond equality are left to the query layer
	}
}

func (b *Backend) SupportsNativeQueries() bool { return false }

var _ data.PlayerDataBackend = (*Backend)(nil)
