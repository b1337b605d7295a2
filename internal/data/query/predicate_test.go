package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haroldsh/fulcrum/internal/data"
)

func TestPredicateEvaluatorEvalCustomExpression(t *testing.T) {
	pe := NewPredicateEvaluator()

	ok, err := pe.Eval("record.level > 10 && record.banned == false", data.Record{"level": 15, "banned": false})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = pe.Eval("record.level > 10 && record.banned == false", data.Record{"level": 5, "banned": false})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPredicateEvaluatorIsIsolatedAcrossCalls(t *testing.T) {
	pe := NewPredicateEvaluator()

	// A script that tries to stash global state must not see it on a
	// later call — each Eval runs in a fresh goja runtime.
	_, err := pe.Eval("globalThis.seen = true; true", data.Record{})
	require.NoError(t, err)

	ok, err := pe.Eval("typeof globalThis.seen === 'undefined'", data.Record{})
	require.NoError(t, err)
	assert.True(t, ok, "predicate VM state must not leak across Eval calls")
}

func TestMatchesResidualNumericOperators(t *testing.T) {
	pe := NewPredicateEvaluator()
	rec := data.Record{"score": 42}

	assert.True(t, pe.MatchesResidual(rec, []data.Filter{{Field: "score", Operator: data.OpGT, Value: 10}}))
	assert.False(t, pe.MatchesResidual(rec, []data.Filter{{Field: "score", Operator: data.OpLT, Value: 10}}))
	assert.True(t, pe.MatchesResidual(rec, []data.Filter{{Field: "score", Operator: data.OpGE, Value: 42}}))
	assert.True(t, pe.MatchesResidual(rec, []data.Filter{{Field: "score", Operator: data.OpLE, Value: 42}}))
}

func TestMatchesResidualInOperator(t *testing.T) {
	pe := NewPredicateEvaluator()
	rec := data.Record{"family": "duels"}

	filters := []data.Filter{{Field: "family", Operator: data.OpIn, Value: []interface{}{"duels", "squads"}}}
	assert.True(t, pe.MatchesResidual(rec, filters))

	filters = []data.Filter{{Field: "family", Operator: data.OpIn, Value: []interface{}{"squads"}}}
	assert.False(t, pe.MatchesResidual(rec, filters))
}

func TestMatchesResidualIsNullAndIsNotNull(t *testing.T) {
	pe := NewPredicateEvaluator()

	assert.True(t, pe.MatchesResidual(data.Record{}, []data.Filter{{Field: "nickname", Operator: data.OpIsNull}}))
	assert.True(t, pe.MatchesResidual(data.Record{"nickname": nil}, []data.Filter{{Field: "nickname", Operator: data.OpIsNull}}))
	assert.True(t, pe.MatchesResidual(data.Record{"nickname": "x"}, []data.Filter{{Field: "nickname", Operator: data.OpIsNotNull}}))
}

func TestMatchesResidualStringOperators(t *testing.T) {
	pe := NewPredicateEvaluator()
	rec := data.Record{"name": "fulcrum-party"}

	assert.True(t, pe.MatchesResidual(rec, []data.Filter{{Field: "name", Operator: data.OpStartsWith, Value: "fulcrum"}}))
	assert.True(t, pe.MatchesResidual(rec, []data.Filter{{Field: "name", Operator: data.OpEndsWith, Value: "party"}}))
	assert.False(t, pe.MatchesResidual(rec, []data.Filter{{Field: "name", Operator: data.OpStartsWith, Value: "other"}}))
}

func TestMatchesResidualAllFiltersMustPass(t *testing.T) {
	pe := NewPredicateEvaluator()
	rec := data.Record{"level": 20, "banned": false}

	filters := []data.Filter{
		{Field: "level", Operator: data.OpGE, Value: 10},
		{Field: "banned", Operator: data.OpEquals, Value: false},
	}
	assert.True(t, pe.MatchesResidual(rec, filters))

	filters[1].Value = true
	assert.False(t, pe.MatchesResidual(rec, filters), "every filter must match, not just one")
}
