package dataframe

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/featurekit/internal/errors"
	"github.com/paveg/featurekit/internal/series"
)

// JoinOptions configures LeftJoin
type JoinOptions struct {
	// On is the key column present on both sides
	On string
	// Suffix is appended to right-hand columns whose name already exists on the left
	Suffix string
}

// LeftJoin keeps every row of df in order and attaches the matching row of right.
// The right side must be unique on the key; otherwise a DuplicateKeyError is returned
// so the join can never multiply left rows. Unmatched rows get nulls for right columns.
func (df *DataFrame) LeftJoin(right *DataFrame, options *JoinOptions) (*DataFrame, error) {
	if options == nil || options.On == "" {
		return nil, errors.NewInvalidInputError("LeftJoin", "join key must be specified")
	}
	key := options.On

	leftKey, exists := df.columns[key]
	if !exists {
		return nil, errors.NewColumnNotFoundError("LeftJoin", key)
	}
	if !right.HasColumn(key) {
		return nil, errors.NewColumnNotFoundError("LeftJoin", key)
	}

	index, err := uniqueIndex(right, key, "LeftJoin")
	if err != nil {
		return nil, err
	}

	rightIndices := make([]int, df.Len())
	for i := range rightIndices {
		rightIndices[i] = -1 // -1 indicates null/missing
		if leftKey.IsNull(i) {
			continue
		}
		if rows, ok := index.Get(leftKey.GetAsString(i)); ok {
			rightIndices[i] = rows[0]
		}
	}

	return df.buildJoinResult(right, key, options.Suffix, rightIndices)
}

// buildJoinResult constructs the joined frame from the matched right rows
func (df *DataFrame) buildJoinResult(right *DataFrame, key, suffix string, rightIndices []int) (*DataFrame, error) {
	mem := memory.NewGoAllocator()
	result := make([]ISeries, 0, df.Width()+right.Width())

	for _, name := range df.order {
		result = append(result, df.columns[name].Share())
	}

	for _, name := range right.order {
		if name == key {
			continue
		}
		outName := name
		if df.HasColumn(name) {
			if suffix == "" {
				return nil, errors.NewValidationError("LeftJoin", name, "column exists on both sides and no suffix was given")
			}
			outName = name + suffix
		}

		arr := right.columns[name].Array()
		col, err := series.Gather(outName, arr, rightIndices, mem)
		arr.Release()
		if err != nil {
			return nil, fmt.Errorf("join column %s: %w", name, err)
		}
		result = append(result, col)
	}

	return New(result...), nil
}

// AssertUnique returns a DuplicateKeyError when column holds a repeated non-null value
func AssertUnique(df *DataFrame, column, op string) error {
	if !df.HasColumn(column) {
		return errors.NewColumnNotFoundError(op, column)
	}
	_, err := uniqueIndex(df, column, op)
	return err
}

// uniqueIndex indexes column and fails when any key maps to more than one row
func uniqueIndex(df *DataFrame, column, op string) (*HashIndex, error) {
	col := df.columns[column]
	index := NewHashIndex(df.Len())
	for i := 0; i < col.Len(); i++ {
		if col.IsNull(i) {
			continue
		}
		index.Put(col.GetAsString(i), i)
	}

	if dups := index.Duplicates(); len(dups) > 0 {
		return nil, errors.NewDuplicateKeyError(op, column, dups)
	}
	return index, nil
}
