package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/paveg/featurekit/internal/dataframe"
	"github.com/paveg/featurekit/internal/series"

	_ "github.com/lib/pq"  // registers the "postgres" driver
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Supported database/sql driver names
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// dialect captures the SQL differences between the supported drivers
type dialect struct {
	name        string
	placeholder func(n int) string
	types       map[arrow.Type]string
	existsQuery string
}

var dialects = map[string]dialect{
	DriverSQLite: {
		name:        DriverSQLite,
		placeholder: func(int) string { return "?" },
		types: map[arrow.Type]string{
			arrow.STRING:    "TEXT",
			arrow.INT64:     "INTEGER",
			arrow.FLOAT64:   "REAL",
			arrow.BOOL:      "INTEGER",
			arrow.TIMESTAMP: "TIMESTAMP",
		},
		existsQuery: `SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
	},
	DriverPostgres: {
		name:        DriverPostgres,
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		types: map[arrow.Type]string{
			arrow.STRING:    "TEXT",
			arrow.INT64:     "BIGINT",
			arrow.FLOAT64:   "DOUBLE PRECISION",
			arrow.BOOL:      "BOOLEAN",
			arrow.TIMESTAMP: "TIMESTAMPTZ",
		},
		existsQuery: `SELECT count(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1`,
	},
}

// SQLSink writes tables through database/sql
type SQLSink struct {
	db      *sql.DB
	dialect dialect
	owned   bool
}

// Open connects to driver at dsn and verifies the connection
func Open(ctx context.Context, driver, dsn string) (*SQLSink, error) {
	if _, ok := dialects[driver]; !ok {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	sink, err := NewSQLSink(db, driver)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	sink.owned = true
	return sink, nil
}

// NewSQLSink wraps an existing connection pool. The caller keeps ownership of db.
func NewSQLSink(db *sql.DB, driver string) (*SQLSink, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	return &SQLSink{db: db, dialect: d}, nil
}

// DB returns the underlying connection pool
func (s *SQLSink) DB() *sql.DB {
	return s.db
}

// Close closes the connection pool when the sink opened it
func (s *SQLSink) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}

// Write creates table according to policy and inserts every row of df in one transaction
func (s *SQLSink) Write(ctx context.Context, table string, df *dataframe.DataFrame, policy IfExists) error {
	if table == "" {
		return fmt.Errorf("write: empty table name")
	}
	if df.Width() == 0 {
		return fmt.Errorf("write %s: table has no columns", table)
	}

	create, err := s.dialect.createTable(table, df)
	if err != nil {
		return fmt.Errorf("write %s: %w", table, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write %s: begin: %w", table, err)
	}
	defer func() { _ = tx.Rollback() }()

	exists, err := s.tableExists(ctx, tx, table)
	if err != nil {
		return fmt.Errorf("write %s: %w", table, err)
	}

	switch policy {
	case Fail:
		if exists {
			return fmt.Errorf("write %s: %w", table, ErrTableExists)
		}
	case Replace:
		if exists {
			if _, err := tx.ExecContext(ctx, "DROP TABLE "+quoteIdent(table)); err != nil {
				return fmt.Errorf("write %s: drop: %w", table, err)
			}
			exists = false
		}
	case Append:
	default:
		return fmt.Errorf("write %s: unknown policy %s", table, policy)
	}

	if !exists {
		if _, err := tx.ExecContext(ctx, create); err != nil {
			return fmt.Errorf("write %s: create: %w", table, err)
		}
	}

	if err := s.insertRows(ctx, tx, table, df); err != nil {
		return fmt.Errorf("write %s: %w", table, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write %s: commit: %w", table, err)
	}
	return nil
}

func (s *SQLSink) tableExists(ctx context.Context, tx *sql.Tx, table string) (bool, error) {
	var n int
	if err := tx.QueryRowContext(ctx, s.dialect.existsQuery, table).Scan(&n); err != nil {
		return false, fmt.Errorf("check table: %w", err)
	}
	return n > 0, nil
}

func (s *SQLSink) insertRows(ctx context.Context, tx *sql.Tx, table string, df *dataframe.DataFrame) error {
	names := df.Columns()
	stmt, err := tx.PrepareContext(ctx, s.dialect.insert(table, names))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	arrs := make([]arrow.Array, len(names))
	for j, name := range names {
		col, _ := df.Column(name)
		arrs[j] = col.Array()
	}
	defer func() {
		for _, a := range arrs {
			a.Release()
		}
	}()

	args := make([]any, len(names))
	for i := 0; i < df.Len(); i++ {
		for j, arr := range arrs {
			args[j] = series.ValueAt(arr, i)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	return nil
}

// createTable renders the CREATE TABLE statement for df's columns
func (d dialect) createTable(table string, df *dataframe.DataFrame) (string, error) {
	defs := make([]string, 0, df.Width())
	for _, name := range df.Columns() {
		col, _ := df.Column(name)
		typ, ok := d.types[col.DataType().ID()]
		if !ok {
			return "", fmt.Errorf("column %s: no %s type for %s", name, d.name, col.DataType())
		}
		defs = append(defs, quoteIdent(name)+" "+typ)
	}
	return "CREATE TABLE " + quoteIdent(table) + " (" + strings.Join(defs, ", ") + ")", nil
}

// insert renders a parameterized INSERT for the given columns
func (d dialect) insert(table string, columns []string) string {
	quoted := make([]string, len(columns))
	params := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
		params[i] = d.placeholder(i + 1)
	}
	return "INSERT INTO " + quoteIdent(table) +
		" (" + strings.Join(quoted, ", ") + ") VALUES (" + strings.Join(params, ", ") + ")"
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
