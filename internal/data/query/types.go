// Package query implements the cross-schema query planner and executor
// (spec §4.G G3): a cost-based optimizer that decides filter pushdown
// and join order, a native-SQL executor for schemas sharing one SQL
// connection, and an in-memory fallback that intersects by player uuid
// across heterogeneous backends.
package query

import (
	"time"

	"github.com/haroldsh/fulcrum/internal/data"
)

// JoinType is the SQL-style join kind used when reordering and when the
// native executor emits JOIN clauses.
type JoinType string

const (
	JoinInner JoinType = "INNER"
	JoinLeft  JoinType = "LEFT"
	JoinRight JoinType = "RIGHT"
	JoinFull  JoinType = "FULL"
)

// SortDirection is ascending or descending, with an explicit nulls
// placement for the native executor's ORDER BY.
type SortDirection string

const (
	SortAsc  SortDirection = "ASC"
	SortDesc SortDirection = "DESC"
)

// NullsOrder controls whether NULLs sort first or last.
type NullsOrder string

const (
	NullsFirst NullsOrder = "FIRST"
	NullsLast  NullsOrder = "LAST"
)

// Join is one edge in the query's join graph: Schema is joined to the
// root schema (never to another join), matching the root's OnField
// against the joined schema's JoinedOn.
type Join struct {
	Schema   string
	Type     JoinType
	OnField  string // field name on the root schema's primary key side
	JoinedOn string // field name on the joined schema
}

// SortOrder is one ORDER BY clause element.
type SortOrder struct {
	Schema    string
	Field     string
	Direction SortDirection
	Nulls     NullsOrder
}

// Query is the planner's input: a root schema, the joins hanging off
// it, per-schema filters, sort orders, and a limit/offset.
type Query struct {
	RootSchema string
	Joins      []Join
	Filters    map[string][]data.Filter // schema key -> filters
	Sort       []SortOrder
	Limit      int
	Offset     int
}

// Plan is the optimizer's output: the query plus derived pushdown
// filters, the reordered join sequence, an estimated cost, and advisory
// recommendation strings.
type Plan struct {
	Query           Query
	PushdownFilters map[string][]data.Filter
	ResidualFilters map[string][]data.Filter // filters that cannot push down (CUSTOM, unsupported backend)
	ReorderedJoins  []Join
	EstimatedCost   float64
	Recommendations []string
	ComputedAt      time.Time
}

// SchemaStats is the cardinality/avgRecordSize pair the cost estimator
// consumes, held in a TTL cache per schema.
type SchemaStats struct {
	Cardinality   int
	AvgRecordSize int
}

// CrossSchemaResult is one joined row: a player uuid plus the record
// contributed by each schema referenced in the query.
type CrossSchemaResult struct {
	PlayerUUID string
	Data       map[string]data.Record
}

// BackendKind distinguishes storage families for default stats and for
// deciding whether filter pushdown is available for string operators.
type BackendKind string

const (
	BackendSQL      BackendKind = "SQL"
	BackendDocument BackendKind = "DOCUMENT"
	BackendJSON     BackendKind = "JSON"
)

// pushdownSet is the operator set eligible for pushdown on any backend
// (spec §4.G.3 step 2); string operators additionally push down only on
// backends that support string operations (SQL, document-style).
var pushdownSet = map[data.Operator]bool{
	data.OpEquals:    true,
	data.OpNotEquals: true,
	data.OpGT:        true,
	data.OpGE:        true,
	data.OpLT:        true,
	data.OpLE:        true,
	data.OpIn:        true,
	data.OpIsNull:    true,
	data.OpIsNotNull: true,
}

var stringOperators = map[data.Operator]bool{
	data.OpLike:       true,
	data.OpStartsWith: true,
	data.OpEndsWith:   true,
}

func supportsStringOps(kind BackendKind) bool {
	return kind == BackendSQL || kind == BackendDocument
}

// isPushdownEligible reports whether f can be pushed to the backend of
// kind, per spec §4.G.3 step 2. CUSTOM predicates never push down.
func isPushdownEligible(f data.Filter, kind BackendKind) bool {
	if f.Operator == data.OpCustom {
		return false
	}
	if pushdownSet[f.Operator] {
		return true
	}
	if stringOperators[f.Operator] {
		return supportsStringOps(kind)
	}
	return false
}
