package dataframe

import (
	"fmt"
	"slices"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/featurekit/internal/errors"
	"github.com/paveg/featurekit/internal/series"
)

// Concat stacks frames vertically. Every frame must have the same columns in
// the same order with the same types.
func Concat(frames ...*DataFrame) (*DataFrame, error) {
	if len(frames) == 0 {
		return New(), nil
	}

	first := frames[0]
	for _, f := range frames[1:] {
		if !slices.Equal(first.order, f.order) {
			return nil, errors.NewValidationError("Concat", "",
				fmt.Sprintf("column mismatch: %v vs %v", first.order, f.order))
		}
	}

	mem := memory.NewGoAllocator()
	result := make([]ISeries, 0, len(first.order))
	release := func() {
		for _, s := range result {
			s.Release()
		}
	}

	for _, name := range first.order {
		arrs := make([]arrow.Array, 0, len(frames))
		for _, f := range frames {
			arrs = append(arrs, f.columns[name].Array())
		}

		s, err := concatColumn(name, arrs, mem)
		for _, a := range arrs {
			a.Release()
		}
		if err != nil {
			release()
			return nil, err
		}
		result = append(result, s)
	}
	return New(result...), nil
}

func concatColumn(name string, arrs []arrow.Array, mem memory.Allocator) (ISeries, error) {
	for _, a := range arrs[1:] {
		if !arrow.TypeEqual(arrs[0].DataType(), a.DataType()) {
			return nil, errors.NewTypeMismatchError("Concat", name, arrs[0].DataType().String(), a.DataType().String())
		}
	}

	joined, err := array.Concatenate(arrs, mem)
	if err != nil {
		return nil, errors.NewInternalError("Concat", err)
	}
	defer joined.Release()
	return series.FromArray(name, joined, mem)
}
