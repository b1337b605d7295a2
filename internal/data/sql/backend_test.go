package sql

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haroldsh/fulcrum/internal/apperrors"
	"github.com/haroldsh/fulcrum/internal/data"
	"github.com/haroldsh/fulcrum/internal/data/schema"
)

func profileDescriptor() schema.Descriptor {
	return schema.Descriptor{
		Key:             "profile",
		PrimaryKeyField: "uuid",
		Columns: []schema.ColumnDescriptor{
			{Name: "uuid", GoType: "string"},
			{Name: "level", GoType: "int", Indexed: true},
		},
	}
}

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	registry := schema.NewRegistry()
	desc := profileDescriptor()
	registry.Register(desc)

	dialect := SQLiteDialect{}
	b, err := Open(":memory:", dialect, registry)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	// A single shared connection keeps every query against the same
	// in-memory database; modernc.org/sqlite gives each new connection
	// its own private ":memory:" instance otherwise.
	b.Conn().SetMaxOpenConns(1)

	_, err = b.Conn().Exec(dialect.CreateTableIfNotExists(tableName(desc.Key), desc))
	require.NoError(t, err)
	return b
}

func TestSqlBackendSaveLoadRoundTrip(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Save(ctx, "p1", "profile", data.Record{"level": int64(5)}))

	rec, err := b.Load(ctx, "p1", "profile")
	require.NoError(t, err)
	assert.EqualValues(t, 5, rec["level"])
	assert.Equal(t, "p1", rec["uuid"])
}

func TestSqlBackendLoadMissingReturnsErrNotFound(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.Load(context.Background(), "nobody", "profile")
	assert.ErrorIs(t, err, data.ErrNotFound)
}

func TestSqlBackendSaveUpsertsOnConflict(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Save(ctx, "p1", "profile", data.Record{"level": int64(1)}))
	require.NoError(t, b.Save(ctx, "p1", "profile", data.Record{"level": int64(2)}))

	rec, err := b.Load(ctx, "p1", "profile")
	require.NoError(t, err)
	assert.EqualValues(t, 2, rec["level"], "re-saving the same primary key must upsert, not duplicate")
}

func TestSqlBackendSaveBatchCommitsAllOrNothing(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	entries := map[string]map[string]data.Record{
		"p1": {"profile": {"level": int64(1)}},
		"p2": {"profile": {"level": int64(2)}},
	}
	n, err := b.SaveBatch(ctx, entries)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rec, err := b.Load(ctx, "p2", "profile")
	require.NoError(t, err)
	assert.EqualValues(t, 2, rec["level"])
}

func TestSqlBackendSaveBatchRollsBackOnUnknownSchema(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	entries := map[string]map[string]data.Record{
		"p1": {"profile": {"level": int64(1)}, "nonexistent": {"x": 1}},
	}
	n, err := b.SaveBatch(ctx, entries)
	require.Error(t, err)
	assert.Equal(t, 0, n)

	_, err = b.Load(ctx, "p1", "profile")
	assert.ErrorIs(t, err, data.ErrNotFound, "a rolled-back batch must not leave a partial write behind")
}

func TestSqlBackendQueryAppliesEqualsFilter(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Save(ctx, "p1", "profile", data.Record{"level": int64(5)}))
	require.NoError(t, b.Save(ctx, "p2", "profile", data.Record{"level": int64(9)}))

	out, err := b.Query(ctx, "profile", []data.Filter{{Field: "level", Operator: data.OpEquals, Value: int64(5)}}, 0, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "p1", out[0]["uuid"])
}

func TestSqlBackendQueryIgnoresCustomFilterPushdown(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Save(ctx, "p1", "profile", data.Record{"level": int64(5)}))

	out, err := b.Query(ctx, "profile", []data.Filter{{Operator: data.OpCustom, Expression: "true"}}, 0, 0)
	require.NoError(t, err)
	assert.Len(t, out, 1, "a CUSTOM filter cannot push down to SQL and must be ignored at this layer")
}

func TestSqlBackendSupportsNativeQueriesIsTrue(t *testing.T) {
	b := newTestBackend(t)
	assert.True(t, b.SupportsNativeQueries())
}

func TestSqlBackendSaveWrapsDriverErrorAsSaveFailed(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	registry := schema.NewRegistry()
	registry.Register(profileDescriptor())
	b := &Backend{db: sqlx.NewDb(mockDB, "sqlmock"), dialect: SQLiteDialect{}, schemas: registry}

	mock.ExpectExec(".*").WillReturnError(sqlmock.ErrCancelled)

	err = b.Save(context.Background(), "p1", "profile", data.Record{"level": 5})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeSaveFailed, apperrors.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
