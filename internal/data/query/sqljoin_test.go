package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haroldsh/fulcrum/internal/data"
	"github.com/haroldsh/fulcrum/internal/data/schema"
	sqlbackend "github.com/haroldsh/fulcrum/internal/data/sql"
)

func newEngineWithSharedSQLConn(t *testing.T) (*Engine, *sqlbackend.Backend) {
	t.Helper()
	schemas := schema.NewRegistry()
	profileDesc := schema.Descriptor{Key: "profile", PrimaryKeyField: "uuid", Columns: []schema.ColumnDescriptor{
		{Name: "uuid", GoType: "string"}, {Name: "level", GoType: "int"}, {Name: "name", GoType: "string"},
	}}
	inventoryDesc := schema.Descriptor{Key: "inventory", PrimaryKeyField: "uuid", Columns: []schema.ColumnDescriptor{
		{Name: "uuid", GoType: "string"}, {Name: "itemCount", GoType: "int"},
	}}
	schemas.Register(profileDesc)
	schemas.Register(inventoryDesc)

	dialect := sqlbackend.SQLiteDialect{}
	backend, err := sqlbackend.Open(":memory:", dialect, schemas)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	backend.Conn().SetMaxOpenConns(1)

	_, err = backend.Conn().Exec(dialect.CreateTableIfNotExists("profile", profileDesc))
	require.NoError(t, err)
	_, err = backend.Conn().Exec(dialect.CreateTableIfNotExists("inventory", inventoryDesc))
	require.NoError(t, err)

	backends := NewBackendRegistry()
	backends.Register("profile", backend, BackendSQL)
	backends.Register("inventory", backend, BackendSQL)

	optimizer := NewOptimizer(NewPlanCache(0, 10), NewStatsCache(0), backends.Kind, nil)
	return NewEngine(backends, schemas, optimizer), backend
}

func TestEngineUsesNativeJoinWhenSchemasShareOneSQLConnection(t *testing.T) {
	engine, backend := newEngineWithSharedSQLConn(t)
	ctx := context.Background()

	require.NoError(t, backend.Save(ctx, "p1", "profile", data.Record{"level": int64(10)}))
	require.NoError(t, backend.Save(ctx, "p1", "inventory", data.Record{"itemCount": int64(4)}))

	q := Query{
		RootSchema: "profile",
		Joins:      []Join{{Schema: "inventory", Type: JoinInner, OnField: "uuid", JoinedOn: "uuid"}},
	}
	results, err := engine.Run(ctx, q)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "p1", results[0].PlayerUUID)
	assert.EqualValues(t, 4, results[0].Data["inventory"]["itemCount"])
}

func TestSqlSchemaJoinExecutorCanExecuteRequiresSharedConnection(t *testing.T) {
	_, backend := newEngineWithSharedSQLConn(t)
	backends := NewBackendRegistry()
	backends.Register("profile", backend, BackendSQL)
	exec := NewSqlSchemaJoinExecutor(backends)

	plan := Plan{Query: Query{RootSchema: "profile"}}
	assert.True(t, exec.CanExecute(plan), "a single schema trivially shares its own connection")
}

func TestEngineAppliesPushdownFilterInNativeJoin(t *testing.T) {
	engine, backend := newEngineWithSharedSQLConn(t)
	ctx := context.Background()

	require.NoError(t, backend.Save(ctx, "p1", "profile", data.Record{"level": int64(10)}))
	require.NoError(t, backend.Save(ctx, "p2", "profile", data.Record{"level": int64(20)}))

	q := Query{
		RootSchema: "profile",
		Filters:    map[string][]data.Filter{"profile": {{Field: "level", Operator: data.OpGT, Value: int64(15)}}},
	}
	results, err := engine.Run(ctx, q)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "p2", results[0].PlayerUUID)
}

func TestEngineAppliesInFilterInNativeJoin(t *testing.T) {
	engine, backend := newEngineWithSharedSQLConn(t)
	ctx := context.Background()

	require.NoError(t, backend.Save(ctx, "p1", "profile", data.Record{"level": int64(10)}))
	require.NoError(t, backend.Save(ctx, "p2", "profile", data.Record{"level": int64(20)}))
	require.NoError(t, backend.Save(ctx, "p3", "profile", data.Record{"level": int64(30)}))

	q := Query{
		RootSchema: "profile",
		Filters: map[string][]data.Filter{"profile": {{
			Field: "level", Operator: data.OpIn, Value: []interface{}{int64(10), int64(30)},
		}}},
	}
	results, err := engine.Run(ctx, q)
	require.NoError(t, err)
	require.Len(t, results, 2, "an IN filter must not be silently dropped by the native join")
	got := map[string]bool{results[0].PlayerUUID: true, results[1].PlayerUUID: true}
	assert.True(t, got["p1"] && got["p3"] && !got["p2"])
}

func TestEngineAppliesStartsWithFilterInNativeJoin(t *testing.T) {
	engine, backend := newEngineWithSharedSQLConn(t)
	ctx := context.Background()

	require.NoError(t, backend.Save(ctx, "p1", "profile", data.Record{"name": "Nova"}))
	require.NoError(t, backend.Save(ctx, "p2", "profile", data.Record{"name": "Zed"}))

	q := Query{
		RootSchema: "profile",
		Filters:    map[string][]data.Filter{"profile": {{Field: "name", Operator: data.OpStartsWith, Value: "No"}}},
	}
	results, err := engine.Run(ctx, q)
	require.NoError(t, err)
	require.Len(t, results, 1, "a STARTS_WITH filter must not be silently dropped by the native join")
	assert.Equal(t, "p1", results[0].PlayerUUID)
}
