package schema

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/marcboeker/go-duckdb" // DuckDB driver
	"github.com/queryforge/queryforge/internal/errors"
)

// DuckDBSource loads schema snapshots from a DuckDB database through
// information_schema queries.
type DuckDBSource struct {
	db   *sql.DB
	path string
}

// NewDuckDBSource opens a DuckDB database with connection pooling and
// verifies connectivity.
func NewDuckDBSource(dbPath string) (*DuckDBSource, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeConfig, "failed to create database directory %s", dir)
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeConfig, "failed to open database")
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeConfig, "failed to ping database")
	}

	return &DuckDBSource{db: db, path: dbPath}, nil
}

// DB exposes the underlying pool so the executor can share the connection.
func (s *DuckDBSource) DB() *sql.DB {
	return s.db
}

// Close releases the connection pool.
func (s *DuckDBSource) Close() error {
	return s.db.Close()
}

// Load reads tables, columns, and key constraints from information_schema
// and returns an immutable snapshot. Constraint introspection failures are
// tolerated: a snapshot without key metadata is still usable, it just
// renders without join hints.
func (s *DuckDBSource) Load(ctx context.Context) (*Snapshot, error) {
	tables, err := s.loadTables(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeSchema, "failed to load schema")
	}

	s.loadConstraints(ctx, tables)

	ordered := make([]Table, 0, len(tables))
	for _, name := range sortedKeys(tables) {
		ordered = append(ordered, *tables[name])
	}

	return NewSnapshot(ordered), nil
}

func (s *DuckDBSource) loadTables(ctx context.Context) (map[string]*Table, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT table_name, column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = 'main'
		ORDER BY table_name, ordinal_position`)
	if err != nil {
		return nil, fmt.Errorf("querying columns: %w", err)
	}
	defer rows.Close()

	tables := make(map[string]*Table)

	for rows.Next() {
		var tableName, columnName, dataType, nullable string

		if err := rows.Scan(&tableName, &columnName, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("scanning column row: %w", err)
		}

		table, ok := tables[tableName]
		if !ok {
			table = &Table{Name: tableName}
			tables[tableName] = table
		}

		table.Columns = append(table.Columns, Column{
			Name:     columnName,
			Type:     dataType,
			Nullable: nullable == "YES",
		})
	}

	return tables, rows.Err()
}

// loadConstraints fills primary and foreign keys from duckdb_constraints().
// Errors are swallowed: older DuckDB builds expose constraints differently
// and key metadata is an enrichment, not a requirement.
func (s *DuckDBSource) loadConstraints(ctx context.Context, tables map[string]*Table) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT table_name, constraint_type, constraint_column_names,
		       coalesce(referenced_table, ''), coalesce(referenced_column_names, [])
		FROM duckdb_constraints()
		WHERE constraint_type IN ('PRIMARY KEY', 'FOREIGN KEY')`)
	if err != nil {
		return
	}
	defer rows.Close()

	for rows.Next() {
		var (
			tableName, constraintType, refTable string
			columnsRaw, refColumnsRaw           any
		)

		if err := rows.Scan(&tableName, &constraintType, &columnsRaw, &refTable, &refColumnsRaw); err != nil {
			continue
		}

		columns, _ := columnsRaw.([]any)
		refColumns, _ := refColumnsRaw.([]any)

		table, ok := tables[tableName]
		if !ok {
			continue
		}

		switch constraintType {
		case "PRIMARY KEY":
			for _, c := range columns {
				if name, ok := c.(string); ok {
					table.PrimaryKey = append(table.PrimaryKey, name)
				}
			}
		case "FOREIGN KEY":
			for i, c := range columns {
				name, ok := c.(string)
				if !ok || i >= len(refColumns) {
					continue
				}

				refName, ok := refColumns[i].(string)
				if !ok {
					continue
				}

				table.ForeignKeys = append(table.ForeignKeys, ForeignKey{
					Column:           name,
					ReferencedTable:  refTable,
					ReferencedColumn: refName,
				})
			}
		}
	}
}

func sortedKeys(tables map[string]*Table) []string {
	keys := make([]string, 0, len(tables))
	for k := range tables {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
