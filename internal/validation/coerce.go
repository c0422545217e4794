package validation

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/featurekit/internal/errors"
	"github.com/paveg/featurekit/internal/series"
)

// Type is the target type a column is coerced to
type Type int

const (
	String Type = iota
	Float
	Int
	Bool
	DateTime
)

// String returns the type name used in error messages
func (t Type) String() string {
	switch t {
	case String:
		return "string"
	case Float:
		return "float"
	case Int:
		return "int"
	case Bool:
		return "bool"
	case DateTime:
		return "datetime"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// dateLayouts are tried in order; values without a zone are read as UTC
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"02-Jan-2006",
	"Jan 2, 2006",
	"2 January 2006",
}

// ParseDateTime parses s with the supported layouts and returns it in UTC
func ParseDateTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// CoerceColumn converts col to typ. Nulls stay null for every type.
// DateTime coercion never fails: values that cannot be parsed become null.
func CoerceColumn(col series.Interface, typ Type, mem memory.Allocator) (series.Interface, error) {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	arr := col.Array()
	defer arr.Release()

	switch typ {
	case String:
		if arr.DataType().ID() == arrow.STRING {
			return col.Share(), nil
		}
		return convert(col.Name(), arr, mem, func(i int) (string, bool, error) {
			return col.GetAsString(i), true, nil
		})
	case Float:
		return coerceFloat(col.Name(), arr, mem)
	case Int:
		return coerceInt(col.Name(), arr, mem)
	case Bool:
		return coerceBool(col.Name(), arr, mem)
	case DateTime:
		return coerceDateTime(col, arr, mem)
	default:
		return nil, errors.NewUnsupportedTypeError("coerce", typ.String())
	}
}

func coerceFloat(name string, arr arrow.Array, mem memory.Allocator) (series.Interface, error) {
	switch a := arr.(type) {
	case *array.Float64:
		return series.FromArray(name, a, mem)
	case *array.Int64:
		return convert(name, a, mem, func(i int) (float64, bool, error) {
			return float64(a.Value(i)), true, nil
		})
	case *array.String:
		return convert(name, a, mem, func(i int) (float64, bool, error) {
			s := strings.TrimSpace(a.Value(i))
			if s == "" {
				return 0, false, nil
			}
			v, err := strconv.ParseFloat(s, 64)
			return v, true, err
		})
	default:
		return nil, conversionError(name, Float, -1, arr)
	}
}

func coerceInt(name string, arr arrow.Array, mem memory.Allocator) (series.Interface, error) {
	switch a := arr.(type) {
	case *array.Int64:
		return series.FromArray(name, a, mem)
	case *array.Float64:
		// fractional parts are truncated toward zero
		return convert(name, a, mem, func(i int) (int64, bool, error) {
			v := a.Value(i)
			if math.IsNaN(v) {
				return 0, false, nil
			}
			if math.IsInf(v, 0) {
				return 0, true, fmt.Errorf("value %v out of range", v)
			}
			return int64(v), true, nil
		})
	case *array.Boolean:
		return convert(name, a, mem, func(i int) (int64, bool, error) {
			if a.Value(i) {
				return 1, true, nil
			}
			return 0, true, nil
		})
	case *array.String:
		return convert(name, a, mem, func(i int) (int64, bool, error) {
			s := strings.TrimSpace(a.Value(i))
			if s == "" {
				return 0, false, nil
			}
			v, err := strconv.ParseInt(s, 10, 64)
			if err == nil {
				return v, true, nil
			}
			// "2.0" is an integer written as a float
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr == nil && f == math.Trunc(f) && !math.IsInf(f, 0) {
				return int64(f), true, nil
			}
			return 0, true, err
		})
	default:
		return nil, conversionError(name, Int, -1, arr)
	}
}

func coerceBool(name string, arr arrow.Array, mem memory.Allocator) (series.Interface, error) {
	switch a := arr.(type) {
	case *array.Boolean:
		return series.FromArray(name, a, mem)
	case *array.Int64:
		return convert(name, a, mem, func(i int) (bool, bool, error) {
			return a.Value(i) != 0, true, nil
		})
	case *array.String:
		return convert(name, a, mem, func(i int) (bool, bool, error) {
			s := strings.TrimSpace(a.Value(i))
			if s == "" {
				return false, false, nil
			}
			v, err := strconv.ParseBool(strings.ToLower(s))
			return v, true, err
		})
	default:
		return nil, conversionError(name, Bool, -1, arr)
	}
}

func coerceDateTime(col series.Interface, arr arrow.Array, mem memory.Allocator) (series.Interface, error) {
	if arr.DataType().ID() == arrow.TIMESTAMP {
		return series.FromArray(col.Name(), arr, mem)
	}
	return convert(col.Name(), arr, mem, func(i int) (time.Time, bool, error) {
		t, ok := ParseDateTime(col.GetAsString(i))
		return t, ok, nil
	})
}

// convert applies parse to every valid slot of arr. parse reports whether the
// result is present and any conversion failure, which aborts with the row number.
func convert[T any](
	name string, arr arrow.Array, mem memory.Allocator, parse func(i int) (T, bool, error),
) (series.Interface, error) {
	values := make([]T, arr.Len())
	valid := make([]bool, arr.Len())
	for i := range values {
		if arr.IsNull(i) {
			continue
		}
		v, ok, err := parse(i)
		if err != nil {
			var zero T
			return nil, errors.NewTypeConversionError(name, typeNameOf(zero), i, err)
		}
		values[i] = v
		valid[i] = ok
	}
	return series.NewNullable(name, values, valid, mem)
}

func typeNameOf(v any) string {
	switch v.(type) {
	case float64:
		return Float.String()
	case int64:
		return Int.String()
	case bool:
		return Bool.String()
	case time.Time:
		return DateTime.String()
	default:
		return String.String()
	}
}

func conversionError(name string, typ Type, row int, arr arrow.Array) error {
	return errors.NewTypeConversionError(name, typ.String(), row,
		fmt.Errorf("unsupported source type %s", arr.DataType()))
}
