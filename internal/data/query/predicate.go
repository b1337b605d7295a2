package query

import (
	"fmt"
	"strconv"

	"github.com/dop251/goja"

	"github.com/haroldsh/fulcrum/internal/data"
)

// PredicateEvaluator compiles and runs CUSTOM filter expressions — a
// small JavaScript boolean expression over a `record` object — per row,
// sandboxed in a fresh goja runtime per call so no evaluated script can
// retain state across records.
type PredicateEvaluator struct{}

// NewPredicateEvaluator creates a PredicateEvaluator.
func NewPredicateEvaluator() *PredicateEvaluator {
	return &PredicateEvaluator{}
}

// Eval reports whether rec satisfies expr, e.g. "record.level > 10 &&
// record.banned == false".
func (PredicateEvaluator) Eval(expr string, rec data.Record) (bool, error) {
	vm := goja.New()
	if err := vm.Set("record", map[string]interface{}(rec)); err != nil {
		return false, fmt.Errorf("query: bind record: %w", err)
	}

	val, err := vm.RunString(expr)
	if err != nil {
		return false, fmt.Errorf("query: evaluate predicate %q: %w", expr, err)
	}
	return val.ToBoolean(), nil
}

// MatchesResidual applies every residual (non-pushdown) filter for a
// schema to rec, including CUSTOM predicates via Eval.
func (p PredicateEvaluator) MatchesResidual(rec data.Record, filters []data.Filter) bool {
	for _, f := range filters {
		ok, err := p.matchOne(rec, f)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

func (p PredicateEvaluator) matchOne(rec data.Record, f data.Filter) (bool, error) {
	if f.Operator == data.OpCustom {
		return p.Eval(f.Expression, rec)
	}
	return matchNative(rec, f), nil
}

// matchNative evaluates a non-CUSTOM filter directly in Go, used for
// residual native filters that a backend couldn't push down (e.g. a
// string operator against a JSON document backend).
func matchNative(rec data.Record, f data.Filter) bool {
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
	case data.OpLike, data.OpStartsWith, data.OpEndsWith:
		return exists && matchStringOp(fmt.Sprintf("%v", val), fmt.Sprintf("%v", f.Value), f.Operator)
	case data.OpGT, data.OpGE, data.OpLT, data.OpLE:
		return exists && matchNumericOp(val, f.Value, f.Operator)
	case data.OpIn:
		return exists && matchIn(val, f.Value)
	default:
		return exists
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func matchNumericOp(val, target interface{}, op data.Operator) bool {
	v, ok1 := asFloat(val)
	t, ok2 := asFloat(target)
	if !ok1 || !ok2 {
		return false
	}
	switch op {
	case data.OpGT:
		return v > t
	case data.OpGE:
		return v >= t
	case data.OpLT:
		return v < t
	case data.OpLE:
		return v <= t
	default:
		return false
	}
}

func matchIn(val, target interface{}) bool {
	values, ok := target.([]interface{})
	if !ok {
		return false
	}
	for _, v := range values {
		if fmt.Sprintf("%v", v) == fmt.Sprintf("%v", val) {
			return true
		}
	}
	return false
}

func matchStringOp(val, pattern string, op data.Operator) bool {
	switch op {
	case data.OpStartsWith:
		return len(val) >= len(pattern) && val[:len(pattern)] == pattern
	case data.OpEndsWith:
		return len(val) >= len(pattern) && val[len(val)-len(pattern):] == pattern
	case data.OpLike:
		return val == pattern
	default:
		return false
	}
}
