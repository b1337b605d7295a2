package sql

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/haroldsh/fulcrum/internal/apperrors"
	"github.com/haroldsh/fulcrum/internal/data"
	"github.com/haroldsh/fulcrum/internal/data/schema"
)

// Backend implements data.PlayerDataBackend against a single SQL
// connection (Postgres or SQLite), table-per-schema, using a SqlDialect
// for quoting/type-mapping/upsert construction and sqlx for scanning.
type Backend struct {
	db      *sqlx.DB
	dialect SqlDialect
	schemas *schema.Registry
}

// Open dials driverName/dsn and wraps it in a Backend for the given
// dialect and schema registry.
func Open(dsn string, dialect SqlDialect, schemas *schema.Registry) (*Backend, error) {
	db, err := sqlx.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("sql: open %s: %w", dialect.DriverName(), err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sql: ping %s: %w", dialect.DriverName(), err)
	}
	return &Backend{db: db, dialect: dialect, schemas: schemas}, nil
}

// Conn exposes the underlying *sqlx.DB so the cross-schema executor can
// detect a shared connection across schemas (spec §4.G G3).
func (b *Backend) Conn() *sqlx.DB { return b.db }

// Dialect exposes the backend's SqlDialect so the cross-schema executor
// can quote identifiers and build placeholders consistently with this
// connection's native query path.
func (b *Backend) Dialect() SqlDialect { return b.dialect }

// Schemas exposes the backend's schema registry so the cross-schema
// executor can resolve table/column/primary-key metadata without a
// second registry.
func (b *Backend) Schemas() *schema.Registry { return b.schemas }

// Close closes the underlying connection.
func (b *Backend) Close() error { return b.db.Close() }

func tableName(schemaKey string) string { return strings.ToLower(schemaKey) }

func (b *Backend) Load(ctx context.Context, uuid, schemaKey string) (data.Record, error) {
	desc, err := b.schemas.Get(schemaKey)
	if err != nil {
		return nil, err
	}
	table := b.dialect.QuoteIdent(tableName(schemaKey))
	pk := b.dialect.QuoteIdent(desc.PrimaryKeyField)

	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = %s", table, pk, b.dialect.Placeholder(1))
	rows, err := b.db.QueryxContext(ctx, b.db.Rebind(query), uuid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, data.ErrNotFound
	}
	row := make(map[string]interface{})
	if err := rows.MapScan(row); err != nil {
		return nil, err
	}
	return data.Record(row), nil
}

func (b *Backend) Save(ctx context.Context, uuid, schemaKey string, rec data.Record) error {
	desc, err := b.schemas.Get(schemaKey)
	if err != nil {
		return err
	}
	return b.saveOne(ctx, b.db, desc, schemaKey, uuid, rec)
}

// saveOne runs Save's upsert with autocommit=true: it operates directly
// on the shared connection/transaction passed in, restoring nothing
// itself (single-statement autocommit is the caller's default mode).
func (b *Backend) saveOne(ctx context.Context, ext sqlx.ExtContext, desc schema.Descriptor, schemaKey, uuid string, rec data.Record) error {
	rec[desc.PrimaryKeyField] = uuid
	cols, args := columnsAndArgs(desc, rec)

	stmt := b.dialect.Upsert(tableName(schemaKey), []string{desc.PrimaryKeyField}, cols)
	if _, err := ext.ExecContext(ctx, stmt, args...); err != nil {
		return apperrors.Wrap(apperrors.CodeSaveFailed, fmt.Sprintf("save %s/%s failed", schemaKey, uuid), err)
	}
	return nil
}

func columnsAndArgs(desc schema.Descriptor, rec data.Record) ([]string, []interface{}) {
	cols := make([]string, 0, len(desc.Columns))
	args := make([]interface{}, 0, len(desc.Columns))
	for _, c := range desc.Columns {
		cols = append(cols, c.Name)
		args = append(args, rec[c.Name])
	}
	return cols, args
}

func (b *Backend) LoadOrCreate(ctx context.Context, uuid, schemaKey string, deflt data.Record) (data.Record, error) {
	rec, err := b.Load(ctx, uuid, schemaKey)
	if err == nil {
		return rec, nil
	}
	if err != data.ErrNotFound {
		return nil, err
	}
	if err := b.Save(ctx, uuid, schemaKey, deflt); err != nil {
		return nil, err
	}
	return deflt, nil
}

// SaveBatch opens a transaction, iterates every (uuid, schemaKey) entry,
// commits on success, and rolls back and returns 0 on any SQL failure
// (spec §4.G G1).
func (b *Backend) SaveBatch(ctx context.Context, entries map[string]map[string]data.Record) (int, error) {
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}

	count := 0
	for uuid, bySchema := range entries {
		for schemaKey, rec := range bySchema {
			desc, err := b.schemas.Get(schemaKey)
			if err != nil {
				tx.Rollback()
				return 0, err
			}
			if err := b.saveOne(ctx, tx, desc, schemaKey, uuid, rec); err != nil {
				tx.Rollback()
				return 0, err
			}
			count++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

// SaveChangedFields degrades to a full-row save.
// TODO: translate changedFields into a partial UPDATE once dialects
// expose a stable column-subset upsert.
func (b *Backend) SaveChangedFields(ctx context.Context, uuid, schemaKey string, rec data.Record, changedFields []string) error {
	return b.Save(ctx, uuid, schemaKey, rec)
}

func (b *Backend) Query(ctx context.Context, schemaKey string, filters []data.Filter, limit, offset int) ([]data.Record, error) {
	desc, err := b.schemas.Get(schemaKey)
	if err != nil {
		return nil, err
	}
	table := b.dialect.QuoteIdent(tableName(schemaKey))

	var where []string
	var args []interface{}
	argN := 1
	for _, f := range filters {
		clause, arg, ok := filterClause(b.dialect, desc, f, &argN)
		if !ok {
			continue // opaque/custom filters cannot push down to SQL
		}
		where = append(where, clause)
		if values, isList := arg.([]interface{}); isList && f.Operator == data.OpIn {
			args = append(args, values...)
		} else if arg != nil {
			args = append(args, arg)
		}
	}

	query := "SELECT * FROM " + table
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	if offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", offset)
	}

	rows, err := b.db.QueryxContext(ctx, b.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []data.Record
	for rows.Next() {
		row := make(map[string]interface{})
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		out = append(out, data.Record(row))
	}
	return out, nil
}

func filterClause(d SqlDialect, desc schema.Descriptor, f data.Filter, argN *int) (string, interface{}, bool) {
	if f.Operator == data.OpCustom {
		return "", nil, false
	}
	col := d.QuoteIdent(f.Field)

	switch f.Operator {
	case data.OpEquals:
		ph := d.Placeholder(*argN)
		*argN++
		return fmt.Sprintf("%s = %s", col, ph), f.Value, true
	case data.OpNotEquals:
		ph := d.Placeholder(*argN)
		*argN++
		return fmt.Sprintf("%s != %s", col, ph), f.Value, true
	case data.OpGT:
		ph := d.Placeholder(*argN)
		*argN++
		return fmt.Sprintf("%s > %s", col, ph), f.Value, true
	case data.OpGE:
		ph := d.Placeholder(*argN)
		*argN++
		return fmt.Sprintf("%s >= %s", col, ph), f.Value, true
	case data.OpLT:
		ph := d.Placeholder(*argN)
		*argN++
		return fmt.Sprintf("%s < %s", col, ph), f.Value, true
	case data.OpLE:
		ph := d.Placeholder(*argN)
		*argN++
		return fmt.Sprintf("%s <= %s", col, ph), f.Value, true
	case data.OpIsNull:
		return fmt.Sprintf("%s IS NULL", col), nil, true
	case data.OpIsNotNull:
		return fmt.Sprintf("%s IS NOT NULL", col), nil, true
	case data.OpIn:
		values, ok := f.Value.([]interface{})
		if !ok || len(values) == 0 {
			return "", nil, false
		}
		placeholders := make([]string, len(values))
		for i := range values {
			placeholders[i] = d.Placeholder(*argN)
			*argN++
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")), values, true
	case data.OpLike, data.OpStartsWith, data.OpEndsWith:
		ph := d.Placeholder(*argN)
		*argN++
		return fmt.Sprintf("%s LIKE %s", col, ph), likePattern(f), true
	default:
		return "", nil, false
	}
}

func likePattern(f data.Filter) string {
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

func (b *Backend) SupportsNativeQueries() bool { return true }

var _ data.PlayerDataBackend = (*Backend)(nil)
