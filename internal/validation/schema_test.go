package validation_test

import (
	"strconv"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/featurekit/internal/dataframe"
	dferrors "github.com/paveg/featurekit/internal/errors"
	"github.com/paveg/featurekit/internal/series"
	"github.com/paveg/featurekit/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stringColumn(t *testing.T, name string, values ...string) series.Interface {
	t.Helper()
	// "<null>" marks a null cell
	valid := make([]bool, len(values))
	for i, v := range values {
		valid[i] = v != "<null>"
		if !valid[i] {
			values[i] = ""
		}
	}
	s, err := series.NewNullable(name, values, valid, memory.NewGoAllocator())
	require.NoError(t, err)
	return s
}

func TestValidate_Transactions(t *testing.T) {
	raw := dataframe.New(
		stringColumn(t, "transaction_id", "T1", "T2", "T3"),
		stringColumn(t, "customer_id", "C1", "C1", "C2"),
		stringColumn(t, "product_id", "P1", "P2", "P1"),
		stringColumn(t, "purchase_date", "2023-06-01", "not a date", "<null>"),
		stringColumn(t, "quantity", "2", " 3 ", "1.0"),
		stringColumn(t, "total_price", "20", "<null>", "10.5"),
		stringColumn(t, "channel", "web", "store", "web"),
	)
	defer raw.Release()

	validated, err := validation.Validate(raw, validation.TransactionsSchema)
	require.NoError(t, err)
	defer validated.Release()

	assert.Equal(t, raw.Columns(), validated.Columns())
	assert.Equal(t, raw.Len(), validated.Len(), "validation never drops rows")

	dates, err := dataframe.ColumnAs[time.Time](validated, "purchase_date")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), dates.Value(0))
	assert.True(t, dates.IsNull(1), "unparsable date becomes null")
	assert.True(t, dates.IsNull(2))
	tsType, ok := dates.DataType().(*arrow.TimestampType)
	require.True(t, ok)
	assert.Equal(t, "UTC", tsType.TimeZone)

	quantity, err := dataframe.ColumnAs[int64](validated, "quantity")
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 1}, quantity.Values())

	totals, err := dataframe.ColumnAs[float64](validated, "total_price")
	require.NoError(t, err)
	assert.True(t, totals.IsNull(1), "nulls are preserved")
	assert.InDelta(t, 10.5, totals.Value(2), 1e-9)

	// undeclared columns are carried through untouched
	_, err = dataframe.ColumnAs[string](validated, "channel")
	require.NoError(t, err)

	// the raw table is not modified
	_, err = dataframe.ColumnAs[string](raw, "quantity")
	require.NoError(t, err)
}

func TestValidate_SchemaError(t *testing.T) {
	raw := dataframe.New(
		stringColumn(t, "customer_id", "C1"),
		stringColumn(t, "name", "Alice"),
	)
	defer raw.Release()

	_, err := validation.Validate(raw, validation.CustomersSchema)
	require.Error(t, err)

	var schemaErr *dferrors.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, []string{"email", "signup_date"}, schemaErr.Missing)
	assert.Contains(t, err.Error(), "customers")
}

func TestValidate_TypeConversionError(t *testing.T) {
	raw := dataframe.New(
		stringColumn(t, "product_id", "P1", "P2"),
		stringColumn(t, "product_name", "Mug", "Hat"),
		stringColumn(t, "price", "9.99", "ten"),
	)
	defer raw.Release()

	_, err := validation.Validate(raw, validation.ProductsSchema)
	require.Error(t, err)

	var convErr *dferrors.TypeConversionError
	require.ErrorAs(t, err, &convErr)
	assert.Equal(t, "price", convErr.Column)
	assert.Equal(t, "float", convErr.Type)
	assert.Equal(t, 1, convErr.Row)
	assert.ErrorIs(t, err, strconv.ErrSyntax)
}

func TestCoerceColumn(t *testing.T) {
	mem := memory.NewGoAllocator()

	tests := []struct {
		name    string
		input   series.Interface
		typ     validation.Type
		check   func(t *testing.T, out series.Interface)
		wantErr bool
	}{
		{
			name:  "float to int truncates",
			input: series.New("quantity", []float64{2.9, -1.5}, mem),
			typ:   validation.Int,
			check: func(t *testing.T, out series.Interface) {
				assert.Equal(t, []int64{2, -1}, out.(*series.Series[int64]).Values())
			},
		},
		{
			name:  "int to float",
			input: series.New("price", []int64{3}, mem),
			typ:   validation.Float,
			check: func(t *testing.T, out series.Interface) {
				assert.Equal(t, []float64{3}, out.(*series.Series[float64]).Values())
			},
		},
		{
			name:  "int to string",
			input: series.New("customer_id", []int64{101, 102}, mem),
			typ:   validation.String,
			check: func(t *testing.T, out series.Interface) {
				assert.Equal(t, []string{"101", "102"}, out.(*series.Series[string]).Values())
			},
		},
		{
			name:  "string to bool",
			input: series.New("active", []string{"TRUE", "0", "f"}, mem),
			typ:   validation.Bool,
			check: func(t *testing.T, out series.Interface) {
				assert.Equal(t, []bool{true, false, false}, out.(*series.Series[bool]).Values())
			},
		},
		{
			name:    "fractional string to int fails",
			input:   series.New("quantity", []string{"2.5"}, mem),
			typ:     validation.Int,
			wantErr: true,
		},
		{
			name:    "timestamp to float fails",
			input:   series.New("when", []time.Time{time.Now()}, mem),
			typ:     validation.Float,
			wantErr: true,
		},
		{
			name:  "datetime with offset is normalized to UTC",
			input: series.New("signup_date", []string{"2023-01-01T09:00:00+09:00", "garbage"}, mem),
			typ:   validation.DateTime,
			check: func(t *testing.T, out series.Interface) {
				dates := out.(*series.Series[time.Time])
				assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), dates.Value(0))
				assert.True(t, dates.IsNull(1))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer tt.input.Release()
			out, err := validation.CoerceColumn(tt.input, tt.typ, mem)
			if tt.wantErr {
				var convErr *dferrors.TypeConversionError
				require.ErrorAs(t, err, &convErr)
				assert.Equal(t, tt.input.Name(), convErr.Column)
				return
			}
			require.NoError(t, err)
			defer out.Release()
			assert.Equal(t, tt.input.Name(), out.Name())
			tt.check(t, out)
		})
	}
}

func TestParseDateTime(t *testing.T) {
	tests := []struct {
		in       string
		expected time.Time
		ok       bool
	}{
		{"2023-06-01", time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), true},
		{"2023-06-01 13:45:00", time.Date(2023, 6, 1, 13, 45, 0, 0, time.UTC), true},
		{"2023-06-01T13:45:00Z", time.Date(2023, 6, 1, 13, 45, 0, 0, time.UTC), true},
		{"06/01/2023", time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), true},
		{"  2023/06/01 ", time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), true},
		{"2023-13-45", time.Time{}, false},
		{"", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := validation.ParseDateTime(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.expected.Equal(got), "got %s", got)
			}
		})
	}
}
