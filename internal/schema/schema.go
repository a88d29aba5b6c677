package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/askdb/askdb/internal/database"
)

// Entry is one table of the database catalog with its columns in physical order.
type Entry struct {
	TableName   string   `json:"table_name"`
	ColumnNames []string `json:"column_names"`
}

const (
	sqliteTablesQuery  = `SELECT name FROM sqlite_master WHERE type = 'table'`
	sqliteColumnsQuery = `SELECT name FROM pragma_table_info(?) ORDER BY cid`

	informationSchemaTablesQuery = `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = current_schema()`
	informationSchemaColumnsQuery = `
SELECT column_name
FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1
ORDER BY ordinal_position`
)

type Introspector struct {
	db      *sql.DB
	dialect database.Dialect
}

func NewIntrospector(db *sql.DB, dialect database.Dialect) *Introspector {
	return &Introspector{db: db, dialect: dialect}
}

// Introspect lists every table in catalog order. Table names are collected
// before any column lookup so a single-connection pool is never held twice.
func (i *Introspector) Introspect(ctx context.Context) ([]Entry, error) {
	if i.db == nil {
		return nil, fmt.Errorf("database is required")
	}
	tablesQuery, columnsQuery := i.queries()

	tables, err := i.queryStrings(ctx, tablesQuery)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	entries := make([]Entry, 0, len(tables))
	for _, table := range tables {
		columns, err := i.queryStrings(ctx, columnsQuery, table)
		if err != nil {
			return nil, fmt.Errorf("list columns of %q: %w", table, err)
		}
		entries = append(entries, Entry{TableName: table, ColumnNames: columns})
	}
	return entries, nil
}

func (i *Introspector) queries() (string, string) {
	if i.dialect == database.DialectDuckDB || i.dialect == database.DialectPostgres {
		return informationSchemaTablesQuery, informationSchemaColumnsQuery
	}
	return sqliteTablesQuery, sqliteColumnsQuery
}

func (i *Introspector) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := i.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make([]string, 0)
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

// Describe renders entries as the text handed to the model:
//
//	Table: products
//	Columns: id, name, price
//
// with one such block per table, blocks separated by a newline.
func Describe(entries []Entry) string {
	blocks := make([]string, 0, len(entries))
	for _, entry := range entries {
		blocks = append(blocks, fmt.Sprintf("Table: %s\nColumns: %s", entry.TableName, strings.Join(entry.ColumnNames, ", ")))
	}
	return strings.Join(blocks, "\n")
}
