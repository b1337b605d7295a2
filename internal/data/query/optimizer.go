package query

import (
	"sort"

	"github.com/haroldsh/fulcrum/internal/data"
)

// SchemaKindResolver maps a schema key to the backend kind that stores
// it, so the optimizer knows whether string-operator pushdown and which
// default stats apply.
type SchemaKindResolver func(schema string) BackendKind

// Optimizer runs the 5-step QueryOptimizer.optimize algorithm of spec
// §4.G.3: plan-cache lookup, filter pushdown, join reordering by
// selectivity, cost estimation from schema stats, and advisory
// recommendations.
type Optimizer struct {
	plans       *PlanCache
	stats       *StatsCache
	kindOf      SchemaKindResolver
	statsSource func(schema string) (SchemaStats, bool)
}

// NewOptimizer creates an Optimizer. statsSource may be nil, in which
// case stats always fall back to the unknown-source heuristic.
func NewOptimizer(plans *PlanCache, stats *StatsCache, kindOf SchemaKindResolver, statsSource func(schema string) (SchemaStats, bool)) *Optimizer {
	return &Optimizer{plans: plans, stats: stats, kindOf: kindOf, statsSource: statsSource}
}

// Optimize runs the full algorithm, using the cache when useCache is
// true (callers disable it for cache-bypass test/debug tooling).
func (o *Optimizer) Optimize(q Query, useCache bool) Plan {
	if useCache {
		if cached, ok := o.plans.Get(q); ok {
			return cached
		}
	}

	pushdown, residual := o.splitPushdown(q)
	reordered := o.reorderJoins(q)
	cost := o.estimateCost(q, reordered)
	recs := o.recommend(q, reordered, cost)

	plan := Plan{
		Query:           q,
		PushdownFilters: pushdown,
		ResidualFilters: residual,
		ReorderedJoins:  reordered,
		EstimatedCost:   cost,
		Recommendations: recs,
	}

	if useCache {
		o.plans.Put(q, plan)
	}
	return plan
}

// splitPushdown implements step 2: for every schema's filters, separate
// pushdown-eligible ones from residual ones that must run in-process.
func (o *Optimizer) splitPushdown(q Query) (map[string][]data.Filter, map[string][]data.Filter) {
	pushdown := make(map[string][]data.Filter)
	residual := make(map[string][]data.Filter)

	for schema, filters := range q.Filters {
		kind := o.kindOf(schema)
		for _, f := range filters {
			if isPushdownEligible(f, kind) {
				pushdown[schema] = append(pushdown[schema], f)
			} else {
				residual[schema] = append(residual[schema], f)
			}
		}
	}
	return pushdown, residual
}

// selectivity returns the fixed-table selectivity for f (spec §4.G.3
// step 3).
func selectivity(f data.Filter) float64 {
	switch f.Operator {
	case data.OpEquals:
		return 0.1
	case data.OpNotEquals:
		return 0.9
	case data.OpGT, data.OpGE, data.OpLT, data.OpLE:
		return 0.3
	case data.OpIn:
		n := 1
		if values, ok := f.Value.([]interface{}); ok {
			n = len(values)
		}
		s := 0.1 * float64(n)
		if s > 0.5 {
			s = 0.5
		}
		return s
	case data.OpIsNull:
		return 0.05
	case data.OpIsNotNull:
		return 0.95
	case data.OpLike, data.OpStartsWith, data.OpEndsWith:
		return 0.25
	default:
		return 0.5
	}
}

func joinBaseSelectivity(t JoinType) float64 {
	switch t {
	case JoinInner:
		return 0.5
	case JoinLeft, JoinRight:
		return 0.8
	case JoinFull:
		return 1.0
	default:
		return 0.5
	}
}

// reorderJoins implements step 3: compute per-join selectivity as
// baseSelectivity(joinType) times the product of that join's schema's
// filter selectivities, then sort ascending (most selective first).
func (o *Optimizer) reorderJoins(q Query) []Join {
	reordered := make([]Join, len(q.Joins))
	copy(reordered, q.Joins)

	selectivityOf := make(map[string]float64, len(reordered))
	for _, j := range reordered {
		sel := joinBaseSelectivity(j.Type)
		for _, f := range q.Filters[j.Schema] {
			sel *= selectivity(f)
		}
		selectivityOf[j.Schema] = sel
	}

	sort.SliceStable(reordered, func(i, k int) bool {
		return selectivityOf[reordered[i].Schema] < selectivityOf[reordered[k].Schema]
	})
	return reordered
}

// estimateCost implements step 4: rootCost = cardinality*avgRecordSize
// /1000; each join adds its own cardinality*avgSize/1000 * 1.2; any
// sort multiplies the running total by 1.1.
func (o *Optimizer) estimateCost(q Query, joins []Join) float64 {
	rootStats := o.statsFor(q.RootSchema)
	cost := float64(rootStats.Cardinality*rootStats.AvgRecordSize) / 1000.0

	for _, j := range joins {
		s := o.statsFor(j.Schema)
		cost += float64(s.Cardinality*s.AvgRecordSize) / 1000.0 * 1.2
	}

	if len(q.Sort) > 0 {
		cost *= 1.1
	}
	return cost
}

func (o *Optimizer) statsFor(schema string) SchemaStats {
	kind := o.kindOf(schema)
	var source func() (SchemaStats, bool)
	if o.statsSource != nil {
		source = func() (SchemaStats, bool) { return o.statsSource(schema) }
	}
	return o.stats.Get(schema, kind, source)
}

// recommend implements step 5: advisory strings for likely-missing
// indexes, unbounded large scans, wide join fan-out, and filter-less
// full scans.
func (o *Optimizer) recommend(q Query, joins []Join, cost float64) []string {
	var recs []string

	for schema, filters := range q.Filters {
		for _, f := range filters {
			if f.Operator == data.OpEquals {
				recs = append(recs, "consider indexing "+schema+"."+f.Field+" (EQUALS filter)")
			}
		}
	}

	rootStats := o.statsFor(q.RootSchema)
	if rootStats.Cardinality > 100000 && q.Limit <= 0 {
		recs = append(recs, "query over "+q.RootSchema+" has no limit on a large table")
	}

	if len(joins) >= 4 {
		recs = append(recs, "query joins 4 or more schemas; consider denormalizing")
	}

	if len(q.Filters) == 0 {
		recs = append(recs, "query has no filters; this is a full scan")
	}

	return recs
}
