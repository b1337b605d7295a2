package query

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/haroldsh/fulcrum/internal/data"
)

func TestSignatureIsOrderIndependentAcrossFilterMapIteration(t *testing.T) {
	q1 := Query{
		RootSchema: "profile",
		Filters: map[string][]data.Filter{
			"profile":    {{Field: "level", Operator: data.OpGT, Value: 10}},
			"cosmetics":  {{Field: "banned", Operator: data.OpEquals, Value: false}},
		},
	}
	q2 := Query{
		RootSchema: "profile",
		Filters: map[string][]data.Filter{
			"cosmetics": {{Field: "banned", Operator: data.OpEquals, Value: false}},
			"profile":   {{Field: "level", Operator: data.OpGT, Value: 10}},
		},
	}

	assert.Equal(t, Signature(q1), Signature(q2), "map iteration order must not change the signature")
}

func TestSignatureDiffersOnFilterValue(t *testing.T) {
	base := Query{RootSchema: "profile", Filters: map[string][]data.Filter{
		"profile": {{Field: "level", Operator: data.OpGT, Value: 10}},
	}}
	changed := Query{RootSchema: "profile", Filters: map[string][]data.Filter{
		"profile": {{Field: "level", Operator: data.OpGT, Value: 20}},
	}}

	assert.NotEqual(t, Signature(base), Signature(changed))
}

func fixedKindOf(kind BackendKind) SchemaKindResolver {
	return func(schema string) BackendKind { return kind }
}

func TestOptimizeSplitsPushdownFromResidualFilters(t *testing.T) {
	plans := NewPlanCache(0, 10)
	stats := NewStatsCache(0)
	opt := NewOptimizer(plans, stats, fixedKindOf(BackendJSON), nil)

	q := Query{
		RootSchema: "profile",
		Filters: map[string][]data.Filter{
			"profile": {
				{Field: "level", Operator: data.OpGT, Value: 10},
				{Field: "bio", Operator: data.OpLike, Value: "x"},     // JSON backend: no string pushdown
				{Field: "custom", Operator: data.OpCustom, Expression: "true"},
			},
		},
	}

	plan := opt.Optimize(q, false)
	assert.Len(t, plan.PushdownFilters["profile"], 1)
	assert.Len(t, plan.ResidualFilters["profile"], 2)
}

func TestOptimizeReordersJoinsBySelectivityAscending(t *testing.T) {
	plans := NewPlanCache(0, 10)
	stats := NewStatsCache(0)
	opt := NewOptimizer(plans, stats, fixedKindOf(BackendSQL), nil)

	q := Query{
		RootSchema: "profile",
		Joins: []Join{
			{Schema: "guild", Type: JoinLeft, OnField: "id", JoinedOn: "profileId"},
			{Schema: "inventory", Type: JoinInner, OnField: "id", JoinedOn: "profileId"},
		},
		Filters: map[string][]data.Filter{
			"inventory": {{Field: "itemId", Operator: data.OpEquals, Value: "sword"}}, // very selective
		},
	}

	plan := opt.Optimize(q, false)
	assert.Equal(t, "inventory", plan.ReorderedJoins[0].Schema, "the join with the EQUALS filter must sort first")
	assert.Equal(t, "guild", plan.ReorderedJoins[1].Schema)
}

func TestOptimizeCachesPlanBySignature(t *testing.T) {
	plans := NewPlanCache(0, 10)
	stats := NewStatsCache(0)
	opt := NewOptimizer(plans, stats, fixedKindOf(BackendSQL), nil)

	q := Query{RootSchema: "profile"}
	first := opt.Optimize(q, true)
	cached, ok := plans.Get(q)
	assert.True(t, ok)
	assert.Equal(t, first.EstimatedCost, cached.EstimatedCost)
}

func TestRecommendFlagsFilterlessFullScan(t *testing.T) {
	plans := NewPlanCache(0, 10)
	stats := NewStatsCache(0)
	opt := NewOptimizer(plans, stats, fixedKindOf(BackendSQL), nil)

	plan := opt.Optimize(Query{RootSchema: "profile"}, false)
	assert.Contains(t, plan.Recommendations, "query has no filters; this is a full scan")
}

func TestStatsCacheFallsBackToSourceThenHeuristic(t *testing.T) {
	cache := NewStatsCache(0)

	fromSource := cache.Get("profile", BackendSQL, func() (SchemaStats, bool) {
		return SchemaStats{Cardinality: 42, AvgRecordSize: 7}, true
	})
	assert.Equal(t, 42, fromSource.Cardinality)

	heuristic := cache.Get("other", BackendDocument, func() (SchemaStats, bool) { return SchemaStats{}, false })
	assert.Equal(t, 50000, heuristic.Cardinality, "an absent source must fall back to the backend-kind default")
}
