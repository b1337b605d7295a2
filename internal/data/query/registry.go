package query

import (
	"github.com/jmoiron/sqlx"

	"github.com/haroldsh/fulcrum/internal/data"
)

// sqlConnProvider is implemented by sql.Backend; the executor type-
// asserts for it to decide whether two schemas share one SQL
// connection and can therefore be joined natively.
type sqlConnProvider interface {
	Conn() *sqlx.DB
}

// BackendRegistry maps a schema key to the data.PlayerDataBackend that
// owns it, and to the BackendKind used for pushdown/stats decisions.
type BackendRegistry struct {
	backends map[string]data.PlayerDataBackend
	kinds    map[string]BackendKind
}

// NewBackendRegistry creates an empty BackendRegistry.
func NewBackendRegistry() *BackendRegistry {
	return &BackendRegistry{backends: make(map[string]data.PlayerDataBackend), kinds: make(map[string]BackendKind)}
}

// Register associates schema with the backend that stores it and the
// kind the optimizer should treat it as (BackendSQL, BackendDocument,
// or BackendJSON).
func (r *BackendRegistry) Register(schemaKey string, backend data.PlayerDataBackend, kind BackendKind) {
	r.backends[schemaKey] = backend
	r.kinds[schemaKey] = kind
}

// Backend returns the registered backend for schemaKey, if any.
func (r *BackendRegistry) Backend(schemaKey string) (data.PlayerDataBackend, bool) {
	b, ok := r.backends[schemaKey]
	return b, ok
}

// Kind implements SchemaKindResolver.
func (r *BackendRegistry) Kind(schemaKey string) BackendKind {
	if k, ok := r.kinds[schemaKey]; ok {
		return k
	}
	return BackendDocument
}

// sharedSQLConn returns the *sqlx.DB shared by every schema referenced
// in schemas, or (nil, false) if any schema's backend isn't a
// sqlConnProvider or they don't all share the same connection pointer.
func (r *BackendRegistry) sharedSQLConn(schemas []string) (*sqlx.DB, bool) {
	var conn *sqlx.DB
	for _, s := range schemas {
		b, ok := r.backends[s]
		if !ok {
			return nil, false
		}
		provider, ok := b.(sqlConnProvider)
		if !ok {
			return nil, false
		}
		c := provider.Conn()
		if conn == nil {
			conn = c
		} else if conn != c {
			return nil, false
		}
	}
	return conn, conn != nil
}
