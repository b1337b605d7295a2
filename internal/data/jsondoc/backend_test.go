package jsondoc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haroldsh/fulcrum/internal/data"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	b, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	rec := data.Record{"level": float64(5), "name": "Nova"}
	require.NoError(t, b.Save(ctx, "player-1", "profile", rec))

	loaded, err := b.Load(ctx, "player-1", "profile")
	require.NoError(t, err)
	assert.Equal(t, rec, loaded)
}

func TestLoadMissingReturnsErrNotFound(t *testing.T) {
	b, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = b.Load(context.Background(), "nobody", "profile")
	assert.ErrorIs(t, err, data.ErrNotFound)
}

func TestLoadOrCreateCreatesDefaultOnMiss(t *testing.T) {
	b, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	deflt := data.Record{"level": float64(1)}
	rec, err := b.LoadOrCreate(ctx, "player-1", "profile", deflt)
	require.NoError(t, err)
	assert.Equal(t, deflt, rec)

	persisted, err := b.Load(ctx, "player-1", "profile")
	require.NoError(t, err)
	assert.Equal(t, deflt, persisted)
}

func TestLoadOrCreateReturnsExistingWithoutOverwrite(t *testing.T) {
	b, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.Save(ctx, "player-1", "profile", data.Record{"level": float64(9)}))

	rec, err := b.LoadOrCreate(ctx, "player-1", "profile", data.Record{"level": float64(1)})
	require.NoError(t, err)
	assert.Equal(t, float64(9), rec["level"])
}

func TestSaveBatchPersistsEveryEntry(t *testing.T) {
	b, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	entries := map[string]map[string]data.Record{
		"p1": {"profile": {"level": float64(1)}},
		"p2": {"profile": {"level": float64(2)}},
	}
	n, err := b.SaveBatch(ctx, entries)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rec, err := b.Load(ctx, "p2", "profile")
	require.NoError(t, err)
	assert.Equal(t, float64(2), rec["level"])
}

func TestQueryFiltersLimitsAndOffsets(t *testing.T) {
	b, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for i, level := range []float64{1, 2, 2, 3} {
		id := []string{"a", "b", "c", "d"}[i]
		require.NoError(t, b.Save(ctx, id, "profile", data.Record{"level": level}))
	}

	filters := []data.Filter{{Field: "level", Operator: data.OpEquals, Value: float64(2)}}
	out, err := b.Query(ctx, "profile", filters, 0, 0)
	require.NoError(t, err)
	assert.Len(t, out, 2)

	limited, err := b.Query(ctx, "profile", nil, 2, 0)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	// The index lists ids in save order a, b, c, d; offset 3 leaves only d.
	offsetted, err := b.Query(ctx, "profile", nil, 0, 3)
	require.NoError(t, err)
	require.Len(t, offsetted, 1)
	assert.Equal(t, float64(3), offsetted[0]["level"])
}

func TestQueryColdCacheFiltersViaRawFieldValueBeforeUnmarshal(t *testing.T) {
	dir := t.TempDir()
	writer, err := New(dir)
	require.NoError(t, err)
	ctx := context.Background()

	for i, level := range []float64{1, 2, 2, 3} {
		id := []string{"a", "b", "c", "d"}[i]
		require.NoError(t, writer.Save(ctx, id, "profile", data.Record{"level": level}))
	}

	// A fresh Backend over the same directory has an empty read cache,
	// forcing Query's loadIfMatches down the raw-bytes gjson prefilter
	// path instead of the cached-record path the writer would take.
	reader, err := New(dir)
	require.NoError(t, err)

	filters := []data.Filter{{Field: "level", Operator: data.OpEquals, Value: float64(2)}}
	out, err := reader.Query(ctx, "profile", filters, 0, 0)
	require.NoError(t, err)
	assert.Len(t, out, 2, "cold-cache equality filter must be answered correctly via the raw-bytes prefilter")

	notEq := []data.Filter{{Field: "level", Operator: data.OpNotEquals, Value: float64(2)}}
	out, err = reader.Query(ctx, "profile", notEq, 0, 0)
	require.NoError(t, err)
	assert.Len(t, out, 2)

	isNull := []data.Filter{{Field: "missing", Operator: data.OpIsNull, Value: nil}}
	out, err = reader.Query(ctx, "profile", isNull, 0, 0)
	require.NoError(t, err)
	assert.Len(t, out, 4, "a field absent from every document satisfies IS NULL")
}

func TestFieldValueReadsRawJSONWithoutUnmarshal(t *testing.T) {
	raw := []byte(`{"level": 7, "name": "Nova"}`)
	assert.EqualValues(t, 7, FieldValue(raw, "level").Value())
	assert.Equal(t, "Nova", FieldValue(raw, "name").String())
	assert.False(t, FieldValue(raw, "missing").Exists())
}

func TestSupportsNativeQueriesIsFalse(t *testing.T) {
	b, err := New(t.TempDir())
	require.NoError(t, err)
	assert.False(t, b.SupportsNativeQueries())
}
