package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/haroldsh/fulcrum/internal/data"
	"github.com/haroldsh/fulcrum/internal/data/schema"
	sqlbackend "github.com/haroldsh/fulcrum/internal/data/sql"
)

// dialectSchemaProvider is implemented by *sqlbackend.Backend; the
// native join compiler uses it to quote identifiers/build placeholders
// consistently with the shared connection and to resolve table/column/
// primary-key metadata.
type dialectSchemaProvider interface {
	Dialect() sqlbackend.SqlDialect
	Schemas() *schema.Registry
}

// SqlSchemaJoinExecutor builds and runs one native SQL query across
// every schema in a Query when all of them share a single SQL
// connection (spec §4.G.3): aliased columns `t<i>_<col>`, aliased joins
// whose ON clause compares the root's Join.OnField with the joined
// schema's Join.JoinedOn (the descriptors' primary keys are not consulted
// for it), pushdown filters as
// parameter-bound WHERE conditions, ORDER BY with NULLS FIRST/LAST, and
// LIMIT/OFFSET.
type SqlSchemaJoinExecutor struct {
	registry *BackendRegistry
}

// NewSqlSchemaJoinExecutor creates a SqlSchemaJoinExecutor over registry.
func NewSqlSchemaJoinExecutor(registry *BackendRegistry) *SqlSchemaJoinExecutor {
	return &SqlSchemaJoinExecutor{registry: registry}
}

// CanExecute reports whether every schema the plan touches shares one
// SQL connection and exposes dialect/schema metadata.
func (e *SqlSchemaJoinExecutor) CanExecute(plan Plan) bool {
	schemas := schemasOf(plan.Query)
	if _, ok := e.registry.sharedSQLConn(schemas); !ok {
		return false
	}
	for _, s := range schemas {
		b, _ := e.registry.Backend(s)
		if _, ok := b.(dialectSchemaProvider); !ok {
			return false
		}
	}
	return true
}

// Execute runs the compiled join and extracts rows into CrossSchemaResult.
func (e *SqlSchemaJoinExecutor) Execute(ctx context.Context, plan Plan) ([]CrossSchemaResult, error) {
	conn, ok := e.registry.sharedSQLConn(schemasOf(plan.Query))
	if !ok {
		return nil, fmt.Errorf("query: schemas do not share a SQL connection")
	}

	rootBackend, _ := e.registry.Backend(plan.Query.RootSchema)
	provider := rootBackend.(dialectSchemaProvider)
	dialect := provider.Dialect()
	schemas := provider.Schemas()

	sqlText, args, aliasOf, err := e.compile(plan, dialect, schemas)
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryxContext(ctx, conn.Rebind(sqlText), args...)
	if err != nil {
		return nil, fmt.Errorf("query: execute native join: %w", err)
	}
	defer rows.Close()

	rootDesc, err := schemas.Get(plan.Query.RootSchema)
	if err != nil {
		return nil, err
	}

	var out []CrossSchemaResult
	for rows.Next() {
		row := make(map[string]interface{})
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		result := splitAliasedRow(row, aliasOf)
		uuid := fmt.Sprintf("%v", result[plan.Query.RootSchema][rootDesc.PrimaryKeyField])
		out = append(out, CrossSchemaResult{PlayerUUID: uuid, Data: result})
	}
	return out, nil
}

// StreamExecute is Execute's cursor-based sibling: it runs the same
// compiled query but hands rows to onRow one at a time via sqlx's
// forward-only *sqlx.Rows, so callers never materialize the full result
// set (spec §4.G.3: "support streaming via forward-only cursor +
// fetch-size"). fetchSize is accepted but not applied.
func (e *SqlSchemaJoinExecutor) StreamExecute(ctx context.Context, plan Plan, fetchSize int, onRow func(CrossSchemaResult) error) error {
	conn, ok := e.registry.sharedSQLConn(schemasOf(plan.Query))
	if !ok {
		return fmt.Errorf("query: schemas do not share a SQL connection")
	}

	rootBackend, _ := e.registry.Backend(plan.Query.RootSchema)
	provider := rootBackend.(dialectSchemaProvider)
	dialect := provider.Dialect()
	schemas := provider.Schemas()

	sqlText, args, aliasOf, err := e.compile(plan, dialect, schemas)
	if err != nil {
		return err
	}

	rootDesc, err := schemas.Get(plan.Query.RootSchema)
	if err != nil {
		return err
	}

	rows, err := conn.QueryxContext(ctx, conn.Rebind(sqlText), args...)
	if err != nil {
		return fmt.Errorf("query: stream native join: %w", err)
	}
	defer rows.Close()

	fetched := 0
	for rows.Next() {
		row := make(map[string]interface{})
		if err := rows.MapScan(row); err != nil {
			return err
		}
		result := splitAliasedRow(row, aliasOf)
		uuid := fmt.Sprintf("%v", result[plan.Query.RootSchema][rootDesc.PrimaryKeyField])
		if err := onRow(CrossSchemaResult{PlayerUUID: uuid, Data: result}); err != nil {
			return err
		}
		fetched++
		_ = fetchSize // fetchSize is not passed to the driver; sqlx streams row-by-row
	}
	return nil
}

func schemasOf(q Query) []string {
	schemas := []string{q.RootSchema}
	for _, j := range q.Joins {
		schemas = append(schemas, j.Schema)
	}
	return schemas
}

// compile builds the aliased SELECT ... JOIN ... WHERE ... ORDER BY ...
// LIMIT/OFFSET statement for plan, returning the SQL text, bound args,
// and the schema->alias map used to unpack result rows.
func (e *SqlSchemaJoinExecutor) compile(plan Plan, dialect sqlbackend.SqlDialect, schemas *schema.Registry) (string, []interface{}, map[string]string, error) {
	q := plan.Query
	aliasOf := map[string]string{q.RootSchema: "t0"}
	for i, j := range plan.ReorderedJoins {
		aliasOf[j.Schema] = fmt.Sprintf("t%d", i+1)
	}

	rootDesc, err := schemas.Get(q.RootSchema)
	if err != nil {
		return "", nil, nil, err
	}

	var selectCols []string
	selectCols = append(selectCols, aliasedColumns(dialect, rootDesc, aliasOf[q.RootSchema])...)

	fromTable := dialect.QuoteIdent(strings.ToLower(q.RootSchema)) + " AS " + aliasOf[q.RootSchema]

	var joinClauses []string
	for _, j := range plan.ReorderedJoins {
		joinDesc, err := schemas.Get(j.Schema)
		if err != nil {
			return "", nil, nil, err
		}
		selectCols = append(selectCols, aliasedColumns(dialect, joinDesc, aliasOf[j.Schema])...)

		joinKeyword := string(j.Type) + " JOIN"
		onClause := fmt.Sprintf("%s.%s = %s.%s",
			aliasOf[q.RootSchema], dialect.QuoteIdent(j.OnField),
			aliasOf[j.Schema], dialect.QuoteIdent(j.JoinedOn))
		joinClauses = append(joinClauses, fmt.Sprintf("%s %s AS %s ON %s",
			joinKeyword, dialect.QuoteIdent(strings.ToLower(j.Schema)), aliasOf[j.Schema], onClause))
	}

	var where []string
	var args []interface{}
	argN := 1
	for schemaKey, filters := range plan.PushdownFilters {
		alias, ok := aliasOf[schemaKey]
		if !ok {
			continue
		}
		for _, f := range filters {
			clause, clauseArgs, ok := aliasedFilterClause(dialect, alias, f, &argN)
			if !ok {
				continue
			}
			where = append(where, clause)
			args = append(args, clauseArgs...)
		}
	}

	var orderBy []string
	for _, so := range q.Sort {
		alias, ok := aliasOf[so.Schema]
		if !ok {
			continue
		}
		clause := fmt.Sprintf("%s.%s %s", alias, dialect.QuoteIdent(so.Field), so.Direction)
		if so.Nulls == NullsFirst {
			clause += " NULLS FIRST"
		} else if so.Nulls == NullsLast {
			clause += " NULLS LAST"
		}
		orderBy = append(orderBy, clause)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(selectCols, ", "))
	b.WriteString(" FROM ")
	b.WriteString(fromTable)
	for _, j := range joinClauses {
		b.WriteString(" ")
		b.WriteString(j)
	}
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	if len(orderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(orderBy, ", "))
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	if q.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", q.Offset)
	}

	return b.String(), args, aliasOf, nil
}

func aliasedColumns(dialect sqlbackend.SqlDialect, desc schema.Descriptor, alias string) []string {
	cols := make([]string, 0, len(desc.Columns))
	for _, c := range desc.Columns {
		cols = append(cols, fmt.Sprintf("%s.%s AS %s", alias, dialect.QuoteIdent(c.Name), alias+"_"+c.Name))
	}
	return cols
}

func aliasedFilterClause(dialect sqlbackend.SqlDialect, alias string, f data.Filter, argN *int) (string, []interface{}, bool) {
	if f.Operator == data.OpCustom {
		return "", nil, false
	}
	col := alias + "." + dialect.QuoteIdent(f.Field)

	switch f.Operator {
	case data.OpEquals:
		ph := dialect.Placeholder(*argN)
		*argN++
		return col + " = " + ph, []interface{}{f.Value}, true
	case data.OpNotEquals:
		ph := dialect.Placeholder(*argN)
		*argN++
		return col + " != " + ph, []interface{}{f.Value}, true
	case data.OpGT:
		ph := dialect.Placeholder(*argN)
		*argN++
		return col + " > " + ph, []interface{}{f.Value}, true
	case data.OpGE:
		ph := dialect.Placeholder(*argN)
		*argN++
		return col + " >= " + ph, []interface{}{f.Value}, true
	case data.OpLT:
		ph := dialect.Placeholder(*argN)
		*argN++
		return col + " < " + ph, []interface{}{f.Value}, true
	case data.OpLE:
		ph := dialect.Placeholder(*argN)
		*argN++
		return col + " <= " + ph, []interface{}{f.Value}, true
	case data.OpIsNull:
		return col + " IS NULL", nil, true
	case data.OpIsNotNull:
		return col + " IS NOT NULL", nil, true
	case data.OpIn:
		values, ok := f.Value.([]interface{})
		if !ok || len(values) == 0 {
			return "", nil, false
		}
		placeholders := make([]string, len(values))
		for i := range values {
			placeholders[i] = dialect.Placeholder(*argN)
			*argN++
		}
		return col + " IN (" + strings.Join(placeholders, ", ") + ")", values, true
	case data.OpLike, data.OpStartsWith, data.OpEndsWith:
		ph := dialect.Placeholder(*argN)
		*argN++
		return col + " LIKE " + ph, []interface{}{aliasedLikePattern(f)}, true
	default:
		return "", nil, false
	}
}

func aliasedLikePattern(f data.Filter) string {
	s := fmt.Sprintf("%v", f.Value)
	switch f.Operator {
	case data.OpStartsWith:
		return s + "%"
	case data.OpEndsWith:
		return "%" + s
	default:
		return "%" + s + "%"
	}
}

// splitAliasedRow regroups a flat `t<i>_<col>` row back into per-schema
// records keyed by schema name.
func splitAliasedRow(row map[string]interface{}, aliasOf map[string]string) map[string]data.Record {
	aliasToSchema := make(map[string]string, len(aliasOf))
	for schemaKey, alias := range aliasOf {
		aliasToSchema[alias] = schemaKey
	}

	result := make(map[string]data.Record, len(aliasOf))
	for col, val := range row {
		parts := strings.SplitN(col, "_", 2)
		if len(parts) != 2 {
			continue
		}
		alias, field := parts[0], parts[1]
		schemaKey, ok := aliasToSchema[alias]
		if !ok {
			continue
		}
		if result[schemaKey] == nil {
			result[schemaKey] = make(data.Record)
		}
		result[schemaKey][field] = val
	}
	return result
}
