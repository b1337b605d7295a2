package query

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/haroldsh/fulcrum/internal/data"
	"github.com/haroldsh/fulcrum/internal/querycache"
)

// Signature computes the canonical cache key for q: root schema, join
// sequence, filter fields + operator names + values (the expression for
// CUSTOM filters), sort fields + direction, limit and offset (spec
// §4.G.3 step 1). Two Query values that would produce the same
// plan hash to the same string regardless of map iteration order.
func Signature(q Query) string {
	var b strings.Builder
	b.WriteString(q.RootSchema)
	b.WriteByte('|')

	for _, j := range q.Joins {
		fmt.Fprintf(&b, "join(%s,%s,%s,%s);", j.Schema, j.Type, j.OnField, j.JoinedOn)
	}
	b.WriteByte('|')

	schemas := make([]string, 0, len(q.Filters))
	for s := range q.Filters {
		schemas = append(schemas, s)
	}
	sort.Strings(schemas)
	for _, s := range schemas {
		filters := q.Filters[s]
		sorted := make([]data.Filter, len(filters))
		copy(sorted, filters)
		sort.Slice(sorted, func(i, j int) bool {
			if sorted[i].Field != sorted[j].Field {
				return sorted[i].Field < sorted[j].Field
			}
			return sorted[i].Operator < sorted[j].Operator
		})
		for _, f := range sorted {
			if f.Operator == data.OpCustom {
				fmt.Fprintf(&b, "f(%s,%s,CUSTOM,%s);", s, f.Field, f.Expression)
			} else {
				fmt.Fprintf(&b, "f(%s,%s,%s,%v);", s, f.Field, f.Operator, f.Value)
			}
		}
	}
	b.WriteByte('|')

	for _, so := range q.Sort {
		fmt.Fprintf(&b, "s(%s,%s,%s,%s);", so.Schema, so.Field, so.Direction, so.Nulls)
	}
	fmt.Fprintf(&b, "|limit=%d,offset=%d", q.Limit, q.Offset)

	return b.String()
}

// PlanCache caches computed Plans by canonical signature, evicting
// oldest-by-creation-time past maxCachedPlans, expiring after ttl
// (default 5 minutes per spec §4.G.3 step 1).
type PlanCache struct {
	cache *querycache.Cache[Plan]
}

// NewPlanCache creates a PlanCache with the given TTL and max entries.
func NewPlanCache(ttl time.Duration, maxCachedPlans int) *PlanCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PlanCache{cache: querycache.New[Plan](querycache.Config{DefaultTTL: ttl, MaxSize: maxCachedPlans})}
}

func (p *PlanCache) Get(q Query) (Plan, bool) {
	return p.cache.Get(Signature(q))
}

func (p *PlanCache) Put(q Query, plan Plan) {
	p.cache.Set(Signature(q), plan)
}

func (p *PlanCache) InvalidateAll() {
	p.cache.InvalidateAll()
}

// StatsCache holds schema cardinality/avgRecordSize, refreshed lazily
// past its TTL by calling Source when absent (spec §4.G.3 step 4).
type StatsCache struct {
	cache *querycache.Cache[SchemaStats]
}

// NewStatsCache creates a StatsCache with the given TTL.
func NewStatsCache(ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StatsCache{cache: querycache.New[SchemaStats](querycache.Config{DefaultTTL: ttl, MaxSize: 10000})}
}

// Get returns cached stats for schema, or the unknown-source heuristic
// default for kind if absent/expired, populating the cache either way.
func (s *StatsCache) Get(schema string, kind BackendKind, source func() (SchemaStats, bool)) SchemaStats {
	if stats, ok := s.cache.Get(schema); ok {
		return stats
	}

	var stats SchemaStats
	if source != nil {
		if fresh, ok := source(); ok {
			stats = fresh
		} else {
			stats = defaultStats(kind)
		}
	} else {
		stats = defaultStats(kind)
	}
	s.cache.Set(schema, stats)
	return stats
}

// defaultStats is the unknown-source heuristic of spec §4.G.3 step 4.
func defaultStats(kind BackendKind) SchemaStats {
	switch kind {
	case BackendSQL:
		return SchemaStats{Cardinality: 10000, AvgRecordSize: 500}
	case BackendDocument:
		return SchemaStats{Cardinality: 50000, AvgRecordSize: 1000}
	case BackendJSON:
		return SchemaStats{Cardinality: 5000, AvgRecordSize: 800}
	default:
		return SchemaStats{Cardinality: 10000, AvgRecordSize: 500}
	}
}
