// Package testutil provides fixtures and assertions shared by the pipeline tests.
//
// Raw fixtures are built the way the CSV loader builds raw tables: every
// column is text and an empty cell is null.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/featurekit/internal/dataframe"
	"github.com/paveg/featurekit/internal/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Header rows of the default fixtures
var (
	CustomersHeader    = []string{"customer_id", "name", "email", "signup_date"}
	ProductsHeader     = []string{"product_id", "product_name", "category", "price"}
	TransactionsHeader = []string{"transaction_id", "customer_id", "product_id", "purchase_date", "quantity"}
)

// RawFrame builds a table of nullable string columns from rows of cells.
// Empty cells are null and rows shorter than header are padded with nulls.
func RawFrame(tb testing.TB, mem memory.Allocator, header []string, rows [][]string) *dataframe.DataFrame {
	tb.Helper()
	if mem == nil {
		mem = memory.NewGoAllocator()
	}

	cols := make([]dataframe.ISeries, 0, len(header))
	for j, name := range header {
		values := make([]string, len(rows))
		valid := make([]bool, len(rows))
		for i, row := range rows {
			if j < len(row) {
				values[i] = row[j]
			}
			valid[i] = values[i] != ""
		}
		s, err := series.NewNullable(name, values, valid, mem)
		require.NoError(tb, err)
		cols = append(cols, s)
	}
	return dataframe.New(cols...)
}

// WriteCSV writes header and rows to dir/name and returns the path
func WriteCSV(tb testing.TB, dir, name string, header []string, rows [][]string) string {
	tb.Helper()

	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, strings.Join(header, ","))
	for _, row := range rows {
		lines = append(lines, strings.Join(row, ","))
	}

	path := filepath.Join(dir, name)
	require.NoError(tb, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	return path
}

// Strings returns the named column rendered as strings, "" for nulls
func Strings(tb testing.TB, df *dataframe.DataFrame, column string) []string {
	tb.Helper()

	col, ok := df.Column(column)
	require.True(tb, ok, "column %s should exist", column)

	out := make([]string, col.Len())
	for i := range out {
		if !col.IsNull(i) {
			out[i] = col.GetAsString(i)
		}
	}
	return out
}

// AssertDataFrameEqual compares shape, column order and every cell
func AssertDataFrameEqual(tb testing.TB, expected, actual *dataframe.DataFrame) {
	tb.Helper()

	require.NotNil(tb, expected, "expected DataFrame should not be nil")
	require.NotNil(tb, actual, "actual DataFrame should not be nil")

	assert.Equal(tb, expected.Len(), actual.Len(), "DataFrame lengths should match")
	require.Equal(tb, expected.Columns(), actual.Columns(), "DataFrame columns should match")

	for _, name := range expected.Columns() {
		expectedCol, _ := expected.Column(name)
		actualCol, _ := actual.Column(name)
		assert.Equal(tb, expectedCol.DataType().ID(), actualCol.DataType().ID(), "column %s type should match", name)
		assert.Equal(tb, Strings(tb, expected, name), Strings(tb, actual, name), "column %s data should match", name)
	}
}

// AssertDataFrameHasColumns verifies that a DataFrame has exactly the expected columns, in order.
func AssertDataFrameHasColumns(tb testing.TB, df *dataframe.DataFrame, expectedColumns []string) {
	tb.Helper()

	require.NotNil(tb, df, "DataFrame should not be nil")
	assert.Equal(tb, expectedColumns, df.Columns())
}
