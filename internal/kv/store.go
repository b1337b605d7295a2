// Package kv provides the shared string/set primitives the party
// coordinator, registry, and reservation service use for locking and
// transient state: GET/SET/SETEX/DEL, SETNX-with-TTL locks, an atomic
// compare-and-delete unlock script, set membership, and prefix scans.
package kv

import (
	"context"
	"time"
)

// Store is the primitive surface every caller programs against. It is an
// interface, not a concrete Redis client, so tests can swap in MemoryStore
// without a live Redis.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	SetEX(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error

	// SetNX acquires a lock: it sets key=value with ttl only if key does
	// not already exist, returning true on acquisition.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// CompareAndDelete deletes key only if its current value equals
	// expected, atomically. Used to release a lock only if still held by
	// the caller's token.
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)

	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)

	// ScanPrefix returns every key matching prefix+"*". It is intended for
	// maintenance sweeps, not hot-path lookups.
	ScanPrefix(ctx context.Context, prefix string) ([]string, error)
}

// ErrNotFound is returned by Get when the key does not exist, mirroring
// redis.Nil at the Store boundary so callers never import go-redis
// directly.
var ErrNotFound = errKeyNotFound{}

type errKeyNotFound struct{}

func (errKeyNotFound) Error() string { return "kv: key not found" }
