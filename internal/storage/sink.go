// Package storage persists DataFrames into relational tables.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/paveg/featurekit/internal/dataframe"
)

// IfExists selects what Write does when the destination table already exists
type IfExists int

const (
	// Replace drops the existing table and creates it again
	Replace IfExists = iota
	// Append inserts into the existing table, creating it when missing
	Append
	// Fail returns ErrTableExists
	Fail
)

// ErrTableExists is returned by Write under the Fail policy
var ErrTableExists = errors.New("table already exists")

func (p IfExists) String() string {
	switch p {
	case Replace:
		return "replace"
	case Append:
		return "append"
	case Fail:
		return "fail"
	default:
		return fmt.Sprintf("IfExists(%d)", int(p))
	}
}

// ParseIfExists parses a policy name; the empty string means Replace
func ParseIfExists(s string) (IfExists, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "replace":
		return Replace, nil
	case "append":
		return Append, nil
	case "fail":
		return Fail, nil
	default:
		return Replace, fmt.Errorf("unknown if-exists policy %q", s)
	}
}

// Sink receives a finished table
type Sink interface {
	Write(ctx context.Context, table string, df *dataframe.DataFrame, policy IfExists) error
}

// MemorySink keeps written tables in memory. It is used when no database is
// configured and by tests.
type MemorySink struct {
	tables map[string]*dataframe.DataFrame
}

// NewMemorySink creates an empty MemorySink
func NewMemorySink() *MemorySink {
	return &MemorySink{tables: make(map[string]*dataframe.DataFrame)}
}

// Write stores a shared copy of df under table
func (m *MemorySink) Write(ctx context.Context, table string, df *dataframe.DataFrame, policy IfExists) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if table == "" {
		return fmt.Errorf("write: empty table name")
	}

	existing, ok := m.tables[table]
	switch {
	case ok && policy == Fail:
		return fmt.Errorf("write %s: %w", table, ErrTableExists)
	case ok && policy == Append:
		combined, err := appendFrames(existing, df)
		if err != nil {
			return fmt.Errorf("write %s: %w", table, err)
		}
		existing.Release()
		m.tables[table] = combined
	default:
		if ok {
			existing.Release()
		}
		m.tables[table] = df.Select(df.Columns()...)
	}
	return nil
}

// Table returns the stored table, or false
func (m *MemorySink) Table(name string) (*dataframe.DataFrame, bool) {
	df, ok := m.tables[name]
	return df, ok
}

// Close releases every stored table
func (m *MemorySink) Close() error {
	for name, df := range m.tables {
		df.Release()
		delete(m.tables, name)
	}
	return nil
}

func appendFrames(top, bottom *dataframe.DataFrame) (*dataframe.DataFrame, error) {
	if strings.Join(top.Columns(), ",") != strings.Join(bottom.Columns(), ",") {
		return nil, fmt.Errorf("append: columns %v do not match %v", bottom.Columns(), top.Columns())
	}
	return dataframe.Concat(top, bottom)
}
