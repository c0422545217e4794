// Package dataframe provides the copy-on-write table used by every pipeline stage
package dataframe

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/featurekit/internal/errors"
	"github.com/paveg/featurekit/internal/series"
)

// DataFrame represents a table of data with typed columns.
// A DataFrame is never modified after construction; every method returns a new value.
type DataFrame struct {
	columns map[string]ISeries
	order   []string // Maintains column order
}

// New creates a new DataFrame from a slice of ISeries.
// A later series with the same name replaces an earlier one in place.
func New(columns ...ISeries) *DataFrame {
	byName := make(map[string]ISeries, len(columns))
	order := make([]string, 0, len(columns))

	for _, s := range columns {
		name := s.Name()
		if _, exists := byName[name]; !exists {
			order = append(order, name)
		}
		byName[name] = s
	}

	return &DataFrame{
		columns: byName,
		order:   order,
	}
}

// Columns returns the names of all columns in order
func (df *DataFrame) Columns() []string {
	if len(df.order) == 0 {
		return []string{}
	}
	return append([]string(nil), df.order...)
}

// Len returns the number of rows (assumes all columns have same length)
func (df *DataFrame) Len() int {
	if len(df.order) == 0 {
		return 0
	}
	return df.columns[df.order[0]].Len()
}

// Width returns the number of columns
func (df *DataFrame) Width() int {
	return len(df.order)
}

// Column returns the series for the given column name
func (df *DataFrame) Column(name string) (ISeries, bool) {
	s, exists := df.columns[name]
	return s, exists
}

// HasColumn checks if a column exists
func (df *DataFrame) HasColumn(name string) bool {
	_, exists := df.columns[name]
	return exists
}

// Select returns a new DataFrame with only the specified columns.
// Unknown names are skipped.
func (df *DataFrame) Select(names ...string) *DataFrame {
	selected := make([]ISeries, 0, len(names))
	for _, name := range names {
		if s, exists := df.columns[name]; exists {
			selected = append(selected, s.Share())
		}
	}
	return New(selected...)
}

// Drop returns a new DataFrame without the specified columns
func (df *DataFrame) Drop(names ...string) *DataFrame {
	dropSet := make(map[string]bool, len(names))
	for _, name := range names {
		dropSet[name] = true
	}

	kept := make([]ISeries, 0, len(df.order))
	for _, name := range df.order {
		if !dropSet[name] {
			kept = append(kept, df.columns[name].Share())
		}
	}
	return New(kept...)
}

// WithColumn returns a new DataFrame with s appended, or replacing the column of the same name
func (df *DataFrame) WithColumn(s ISeries) (*DataFrame, error) {
	if df.Width() > 0 && s.Len() != df.Len() {
		return nil, errors.NewValidationError("WithColumn", s.Name(),
			fmt.Sprintf("expected length %d, got %d", df.Len(), s.Len()))
	}

	merged := make([]ISeries, 0, len(df.order)+1)
	replaced := false
	for _, name := range df.order {
		if name == s.Name() {
			merged = append(merged, s)
			replaced = true
			continue
		}
		merged = append(merged, df.columns[name].Share())
	}
	if !replaced {
		merged = append(merged, s)
	}
	return New(merged...), nil
}

// Rename returns a new DataFrame where column oldName is called newName
func (df *DataFrame) Rename(oldName, newName string) (*DataFrame, error) {
	s, exists := df.columns[oldName]
	if !exists {
		return nil, errors.NewColumnNotFoundError("Rename", oldName)
	}
	if oldName == newName {
		return df.Select(df.order...), nil
	}
	if df.HasColumn(newName) {
		return nil, errors.NewValidationError("Rename", newName, "column already exists")
	}

	arr := s.Array()
	defer arr.Release()
	renamed, err := series.FromArray(newName, arr, memory.NewGoAllocator())
	if err != nil {
		return nil, err
	}

	cols := make([]ISeries, 0, len(df.order))
	for _, name := range df.order {
		if name == oldName {
			cols = append(cols, renamed)
			continue
		}
		cols = append(cols, df.columns[name].Share())
	}
	return New(cols...), nil
}

// Take gathers the given row indices into a new DataFrame.
// A negative index produces a row of nulls.
func (df *DataFrame) Take(indices []int) (*DataFrame, error) {
	mem := memory.NewGoAllocator()
	gathered := make([]ISeries, 0, len(df.order))

	for _, name := range df.order {
		arr := df.columns[name].Array()
		s, err := series.Gather(name, arr, indices, mem)
		arr.Release()
		if err != nil {
			return nil, fmt.Errorf("take column %s: %w", name, err)
		}
		gathered = append(gathered, s)
	}
	return New(gathered...), nil
}

// Filter keeps the rows for which keep returns true, preserving order
func (df *DataFrame) Filter(keep func(row int) bool) (*DataFrame, error) {
	indices := make([]int, 0, df.Len())
	for i := 0; i < df.Len(); i++ {
		if keep(i) {
			indices = append(indices, i)
		}
	}
	return df.Take(indices)
}

// Slice creates a new DataFrame containing rows from start (inclusive) to end (exclusive)
func (df *DataFrame) Slice(start, end int) (*DataFrame, error) {
	length := df.Len()
	if start < 0 || start > length || end < start {
		return nil, errors.NewValidationError("Slice", "",
			fmt.Sprintf("invalid range [%d, %d) for %d rows", start, end, length))
	}
	if end > length {
		end = length
	}

	indices := make([]int, 0, end-start)
	for i := start; i < end; i++ {
		indices = append(indices, i)
	}
	return df.Take(indices)
}

// Head returns the first n rows; n <= 0 returns the frame unchanged
func (df *DataFrame) Head(n int) (*DataFrame, error) {
	if n <= 0 || n >= df.Len() {
		return df.Select(df.order...), nil
	}
	return df.Slice(0, n)
}

// String returns a string representation of the DataFrame
func (df *DataFrame) String() string {
	if len(df.columns) == 0 {
		return "DataFrame[empty]"
	}

	parts := []string{fmt.Sprintf("DataFrame[%dx%d]", df.Len(), df.Width())}

	for _, name := range df.order {
		s := df.columns[name]
		parts = append(parts, fmt.Sprintf("  %s: %s", name, s.DataType().String()))
	}

	return strings.Join(parts, "\n")
}

// Release releases all underlying Arrow memory
func (df *DataFrame) Release() {
	for _, s := range df.columns {
		s.Release()
	}
}

// ColumnAs returns the named column as a typed series
func ColumnAs[T any](df *DataFrame, name string) (*series.Series[T], error) {
	s, exists := df.Column(name)
	if !exists {
		return nil, errors.NewColumnNotFoundError("ColumnAs", name)
	}
	typed, ok := s.(*series.Series[T])
	if !ok {
		var zero T
		return nil, errors.NewTypeMismatchError("ColumnAs", name, fmt.Sprintf("%T", zero), s.DataType().String())
	}
	return typed, nil
}

// MissingColumns returns the names from required that df does not have, in input order
func MissingColumns(df *DataFrame, required ...string) []string {
	var missing []string
	for _, name := range required {
		if !df.HasColumn(name) {
			missing = append(missing, name)
		}
	}
	return missing
}
