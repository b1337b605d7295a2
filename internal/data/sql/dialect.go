// Package sql implements the SQL-backed PlayerDataBackend: a SqlDialect
// abstracts identifier quoting, type mapping, and upsert construction
// over jmoiron/sqlx, with lib/pq (Postgres) and modernc.org/sqlite
// (SQLite) as the two concrete dialects the spec names.
package sql

import (
	"fmt"
	"strings"

	"github.com/haroldsh/fulcrum/internal/data/schema"
)

// SqlDialect abstracts identifier quoting, placeholder style, and upsert
// construction across database engines.
type SqlDialect interface {
	// DriverName is the database/sql driver name passed to sqlx.Open.
	DriverName() string

	// QuoteIdent quotes an identifier, doubling any internal quote char.
	QuoteIdent(name string) string

	// Placeholder returns the positional parameter marker for the n-th
	// (1-indexed) bound argument.
	Placeholder(n int) string

	// Upsert builds an INSERT ... that updates on conflict, given the
	// table name, primary key columns, and the full column list in the
	// same order as args.
	Upsert(table string, pkCols, allCols []string) string

	// ColumnType maps a ColumnDescriptor's logical type to this
	// dialect's DDL type name.
	ColumnType(col schema.ColumnDescriptor) string

	// CreateTableIfNotExists builds the DDL for a schema's table, plus
	// one single-column index per Indexed column. It emits no composite
	// indexes and no per-column ASC/DESC order.
	CreateTableIfNotExists(table string, desc schema.Descriptor) string
}

// PostgresDialect quotes identifiers with double quotes and builds
// ON CONFLICT ... DO UPDATE upserts.
type PostgresDialect struct{}

func (PostgresDialect) DriverName() string { return "postgres" }

func (PostgresDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (PostgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (d PostgresDialect) Upsert(table string, pkCols, allCols []string) string {
	quotedTable := d.QuoteIdent(table)
	cols := make([]string, len(allCols))
	placeholders := make([]string, len(allCols))
	for i, c := range allCols {
		cols[i] = d.QuoteIdent(c)
		placeholders[i] = d.Placeholder(i + 1)
	}
	pk := make([]string, len(pkCols))
	for i, c := range pkCols {
		pk[i] = d.QuoteIdent(c)
	}

	var setClauses []string
	for _, c := range allCols {
		if containsString(pkCols, c) {
			continue
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", d.QuoteIdent(c), d.QuoteIdent(c)))
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		quotedTable, strings.Join(cols, ", "), strings.Join(placeholders, ", "),
		strings.Join(pk, ", "), strings.Join(setClauses, ", "),
	)
}

func (PostgresDialect) ColumnType(col schema.ColumnDescriptor) string {
	if col.SQLType != "" {
		return col.SQLType
	}
	return goTypeToPostgres(col.GoType)
}

func (d PostgresDialect) CreateTableIfNotExists(table string, desc schema.Descriptor) string {
	return buildCreateTable(d, table, desc)
}

func goTypeToPostgres(goType string) string {
	switch goType {
	case "int", "int64":
		return "BIGINT"
	case "float64":
		return "DOUBLE PRECISION"
	case "bool":
		return "BOOLEAN"
	case "time.Time":
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

// SQLiteDialect quotes identifiers with backticks and builds
// INSERT OR REPLACE upserts.
type SQLiteDialect struct{}

func (SQLiteDialect) DriverName() string { return "sqlite" }

func (SQLiteDialect) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (SQLiteDialect) Placeholder(int) string { return "?" }

func (d SQLiteDialect) Upsert(table string, _ []string, allCols []string) string {
	quotedTable := d.QuoteIdent(table)
	cols := make([]string, len(allCols))
	placeholders := make([]string, len(allCols))
	for i, c := range allCols {
		cols[i] = d.QuoteIdent(c)
		placeholders[i] = "?"
	}
	return fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)", quotedTable, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
}

func (SQLiteDialect) ColumnType(col schema.ColumnDescriptor) string {
	if col.SQLType != "" {
		return col.SQLType
	}
	return goTypeToSQLite(col.GoType)
}

func (d SQLiteDialect) CreateTableIfNotExists(table string, desc schema.Descriptor) string {
	return buildCreateTable(d, table, desc)
}

func goTypeToSQLite(goType string) string {
	switch goType {
	case "int", "int64":
		return "INTEGER"
	case "float64":
		return "REAL"
	case "bool":
		return "INTEGER"
	case "time.Time":
		return "TEXT"
	default:
		return "TEXT"
	}
}

func buildCreateTable(d SqlDialect, table string, desc schema.Descriptor) string {
	var cols []string
	var indexes []string
	for _, c := range desc.Columns {
		cols = append(cols, fmt.Sprintf("%s %s", d.QuoteIdent(c.Name), d.ColumnType(c)))
		if c.Indexed {
			indexName := fmt.Sprintf("idx_%s_%s", table, c.Name)
			indexes = append(indexes, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
				d.QuoteIdent(indexName), d.QuoteIdent(table), d.QuoteIdent(c.Name)))
		}
	}

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s, PRIMARY KEY (%s))",
		d.QuoteIdent(table), strings.Join(cols, ", "), d.QuoteIdent(desc.PrimaryKeyField))

	if len(indexes) > 0 {
		stmt += ";\n" + strings.Join(indexes, ";\n")
	}
	return stmt
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
