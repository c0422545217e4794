package series

import (
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/featurekit/internal/errors"
)

// Gather builds a new series from the rows of arr at indices.
// A negative index produces a null row, which is how outer-join padding is expressed.
func Gather(name string, arr arrow.Array, indices []int, mem memory.Allocator) (Interface, error) {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}

	switch a := arr.(type) {
	case *array.String:
		return gather(name, a, indices, mem, a.Value)
	case *array.Int64:
		return gather(name, a, indices, mem, a.Value)
	case *array.Float64:
		return gather(name, a, indices, mem, a.Value)
	case *array.Boolean:
		return gather(name, a, indices, mem, a.Value)
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return gather(name, a, indices, mem, func(i int) time.Time {
			return a.Value(i).ToTime(unit).UTC()
		})
	default:
		return nil, errors.NewUnsupportedTypeError("gather", fmt.Sprintf("%T", arr))
	}
}

// FromArray wraps an Arrow array produced outside this package (e.g. by a
// Parquet reader) into a typed series, normalizing timestamps to UTC microseconds.
func FromArray(name string, arr arrow.Array, mem memory.Allocator) (Interface, error) {
	indices := make([]int, arr.Len())
	for i := range indices {
		indices[i] = i
	}
	return Gather(name, arr, indices, mem)
}

// Empty creates a zero-length series with the same element type as dt
func Empty(name string, dt arrow.DataType, mem memory.Allocator) (Interface, error) {
	//nolint:exhaustive // Only handling supported types
	switch dt.ID() {
	case arrow.STRING:
		return NewSafe(name, []string{}, mem)
	case arrow.INT64:
		return NewSafe(name, []int64{}, mem)
	case arrow.FLOAT64:
		return NewSafe(name, []float64{}, mem)
	case arrow.BOOL:
		return NewSafe(name, []bool{}, mem)
	case arrow.TIMESTAMP:
		return NewSafe(name, []time.Time{}, mem)
	default:
		return nil, errors.NewUnsupportedTypeError("series creation", dt.String())
	}
}

func gather[T any](
	name string, src arrow.Array, indices []int, mem memory.Allocator, get func(int) T,
) (*Series[T], error) {
	values := make([]T, len(indices))
	valid := make([]bool, len(indices))
	for j, idx := range indices {
		if idx < 0 || idx >= src.Len() || src.IsNull(idx) {
			continue
		}
		values[j] = get(idx)
		valid[j] = true
	}
	return NewNullable(name, values, valid, mem)
}
