package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/haroldsh/fulcrum/internal/data"
)

func fmtSprint(v interface{}) string { return fmt.Sprintf("%v", v) }

// ApplicationJoinExecutor is the fallback path of spec §4.G.3's last
// line ("otherwise delegate to application-level UUID intersection
// (root backend)"): it queries each schema's backend independently,
// then intersects by player uuid in process, re-applying every filter
// (pushdown and residual) in Go since a backend's own pushdown support
// may be partial (e.g. the JSON document backend only narrows equality
// and null checks natively).
type ApplicationJoinExecutor struct {
	registry  *BackendRegistry
	predicate *PredicateEvaluator
}

// NewApplicationJoinExecutor creates an ApplicationJoinExecutor.
func NewApplicationJoinExecutor(registry *BackendRegistry) *ApplicationJoinExecutor {
	return &ApplicationJoinExecutor{registry: registry, predicate: NewPredicateEvaluator()}
}

// Execute runs plan via independent per-schema backend queries and an
// in-process uuid intersection across the root schema and every join.
func (e *ApplicationJoinExecutor) Execute(ctx context.Context, plan Plan, rootPKField string, pkFieldOf map[string]string) ([]CrossSchemaResult, error) {
	q := plan.Query

	rootRows, err := e.loadSchema(ctx, q.RootSchema, plan, rootPKField)
	if err != nil {
		return nil, err
	}

	byUUID := make(map[string]map[string]data.Record, len(rootRows))
	for uuid, rec := range rootRows {
		byUUID[uuid] = map[string]data.Record{q.RootSchema: rec}
	}

	for _, j := range plan.ReorderedJoins {
		pk := pkFieldOf[j.Schema]
		rows, err := e.loadSchema(ctx, j.Schema, plan, pk)
		if err != nil {
			return nil, err
		}

		for uuid, entry := range byUUID {
			rootVal, ok := entry[q.RootSchema][j.OnField]
			if !ok {
				delete(byUUID, uuid)
				continue
			}
			matched := false
			for joinUUID, rec := range rows {
				if rec[j.JoinedOn] == rootVal || joinUUID == uuid {
					entry[j.Schema] = rec
					matched = true
					break
				}
			}
			if !matched {
				if j.Type == JoinLeft || j.Type == JoinFull {
					entry[j.Schema] = nil
				} else {
					delete(byUUID, uuid)
				}
			}
		}
	}

	var out []CrossSchemaResult
	for uuid, entry := range byUUID {
		out = append(out, CrossSchemaResult{PlayerUUID: uuid, Data: entry})
	}

	sortResults(out, q.Sort)

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return nil, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// loadSchema queries one schema's backend, pushing down what it can and
// re-checking every filter in Go, keyed by primary-key field value.
func (e *ApplicationJoinExecutor) loadSchema(ctx context.Context, schemaKey string, plan Plan, pkField string) (map[string]data.Record, error) {
	backend, ok := e.registry.Backend(schemaKey)
	if !ok {
		return nil, nil
	}

	pushdown := plan.PushdownFilters[schemaKey]
	residual := plan.ResidualFilters[schemaKey]

	rows, err := backend.Query(ctx, schemaKey, pushdown, 0, 0)
	if err != nil {
		return nil, err
	}

	out := make(map[string]data.Record, len(rows))
	for _, rec := range rows {
		if !e.predicate.MatchesResidual(rec, pushdown) {
			continue // backend pushdown may have been only partial
		}
		if !e.predicate.MatchesResidual(rec, residual) {
			continue
		}
		key := pkField
		if key == "" {
			key = "id"
		}
		uuid, ok := rec[key]
		if !ok {
			continue
		}
		out[toStringKey(uuid)] = rec
	}
	return out, nil
}

func toStringKey(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmtSprint(v)
}

func sortResults(results []CrossSchemaResult, sortOrders []SortOrder) {
	if len(sortOrders) == 0 {
		return
	}
	sort.SliceStable(results, func(i, k int) bool {
		for _, so := range sortOrders {
			a, aok := results[i].Data[so.Schema][so.Field]
			b, bok := results[k].Data[so.Schema][so.Field]
			if !aok && !bok {
				continue
			}
			if !aok || !bok {
				return nullsLess(aok, bok, so.Nulls)
			}
			cmp := compareValues(a, b)
			if cmp == 0 {
				continue
			}
			if so.Direction == SortDesc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func nullsLess(aok, bok bool, nulls NullsOrder) bool {
	aIsNull := !aok
	if nulls == NullsFirst {
		return aIsNull
	}
	return !aIsNull
}

func compareValues(a, b interface{}) int {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := fmtSprint(a), fmtSprint(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}
