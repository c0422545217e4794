package dataframe

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/paveg/featurekit/internal/errors"
)

// Sort returns a new DataFrame sorted by a single column
func (df *DataFrame) Sort(column string, ascending bool) (*DataFrame, error) {
	return df.SortBy([]string{column}, []bool{ascending})
}

// SortBy returns a new DataFrame sorted by the given columns.
// The sort is stable and nulls always sort last, whatever the direction.
func (df *DataFrame) SortBy(columns []string, ascending []bool) (*DataFrame, error) {
	if len(columns) != len(ascending) {
		return nil, errors.NewValidationError("SortBy", "",
			fmt.Sprintf("expected length %d, got %d", len(columns), len(ascending)))
	}
	if len(columns) == 0 {
		return df.Select(df.order...), nil
	}

	comparators := make([]func(i, j int) int, 0, len(columns))
	for k, name := range columns {
		col, exists := df.columns[name]
		if !exists {
			return nil, errors.NewColumnNotFoundError("SortBy", name)
		}
		arr := col.Array()
		defer arr.Release()

		compare, err := rowComparator(arr)
		if err != nil {
			return nil, errors.NewUnsupportedTypeError("SortBy", arr.DataType().String())
		}
		comparators = append(comparators, withNullsLast(arr, compare, ascending[k]))
	}

	indices := make([]int, df.Len())
	for i := range indices {
		indices[i] = i
	}
	slices.SortStableFunc(indices, func(i, j int) int {
		for _, compare := range comparators {
			if c := compare(i, j); c != 0 {
				return c
			}
		}
		return 0
	})

	return df.Take(indices)
}

// withNullsLast applies the sort direction to compare while keeping nulls at the end
func withNullsLast(arr arrow.Array, compare func(i, j int) int, ascending bool) func(i, j int) int {
	return func(i, j int) int {
		iNull, jNull := arr.IsNull(i), arr.IsNull(j)
		switch {
		case iNull && jNull:
			return 0
		case iNull:
			return 1
		case jNull:
			return -1
		}
		if ascending {
			return compare(i, j)
		}
		return -compare(i, j)
	}
}

// rowComparator compares two valid slots of arr
func rowComparator(arr arrow.Array) (func(i, j int) int, error) {
	switch a := arr.(type) {
	case *array.String:
		return func(i, j int) int { return cmp.Compare(a.Value(i), a.Value(j)) }, nil
	case *array.Int64:
		return func(i, j int) int { return cmp.Compare(a.Value(i), a.Value(j)) }, nil
	case *array.Float64:
		return func(i, j int) int { return cmp.Compare(a.Value(i), a.Value(j)) }, nil
	case *array.Timestamp:
		return func(i, j int) int { return cmp.Compare(a.Value(i), a.Value(j)) }, nil
	case *array.Boolean:
		return func(i, j int) int {
			vi, vj := a.Value(i), a.Value(j)
			switch {
			case vi == vj:
				return 0
			case !vi:
				return -1
			default:
				return 1
			}
		}, nil
	default:
		return nil, fmt.Errorf("unsupported type %s", arr.DataType())
	}
}
