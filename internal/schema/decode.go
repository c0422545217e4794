package schema

import (
	"reflect"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/paveg/featurekit/internal/dataframe"
	dferrors "github.com/paveg/featurekit/internal/errors"
	"github.com/paveg/featurekit/internal/series"
)

// fieldBinding ties a struct field to a table column
type fieldBinding struct {
	index  []int
	column string
}

// Decode converts every row of df into a T. Fields are matched to columns by
// their db tag; fields without a matching column keep their zero value.
// Null cells leave pointer fields nil and other fields zero.
func Decode[T any](df *dataframe.DataFrame) ([]T, error) {
	if df == nil {
		return nil, dferrors.NewInvalidInputError("Decode", "nil DataFrame")
	}
	typ := reflect.TypeFor[T]()
	if typ.Kind() != reflect.Struct {
		return nil, dferrors.NewUnsupportedTypeError("Decode", typ.String())
	}

	var bindings []fieldBinding
	collectBindings(typ, nil, &bindings)

	arrays := make(map[string]arrow.Array, len(bindings))
	defer func() {
		for _, a := range arrays {
			a.Release()
		}
	}()
	for _, b := range bindings {
		if col, ok := df.Column(b.column); ok {
			arrays[b.column] = col.Array()
		}
	}

	out := make([]T, df.Len())
	for row := range out {
		rec := reflect.ValueOf(&out[row]).Elem()
		for _, b := range bindings {
			arr, ok := arrays[b.column]
			if !ok {
				continue
			}
			field := rec.FieldByIndex(b.index)
			if !assign(field, series.ValueAt(arr, row)) {
				return nil, dferrors.NewTypeMismatchError("Decode", b.column,
					field.Type().String(), arr.DataType().String())
			}
		}
	}
	return out, nil
}

// DecodeRaw decodes raw records and stamps each with meta
func DecodeRaw[T any, P interface {
	*T
	SetIngest(Ingest)
}](df *dataframe.DataFrame, meta Ingest) ([]T, error) {
	records, err := Decode[T](df)
	if err != nil {
		return nil, err
	}
	for i := range records {
		P(&records[i]).SetIngest(meta)
	}
	return records, nil
}

// Invalid returns the index and error of every record that fails Validate
func Invalid[T interface{ Validate() error }](records []T) map[int]error {
	bad := make(map[int]error)
	for i, r := range records {
		if err := r.Validate(); err != nil {
			bad[i] = err
		}
	}
	return bad
}

func collectBindings(typ reflect.Type, prefix []int, out *[]fieldBinding) {
	for i := range typ.NumField() {
		f := typ.Field(i)
		tag, tagged := f.Tag.Lookup("db")
		if tag == "-" || !f.IsExported() {
			continue
		}

		index := append(append([]int(nil), prefix...), i)
		if f.Anonymous && !tagged && f.Type.Kind() == reflect.Struct {
			collectBindings(f.Type, index, out)
			continue
		}
		if tag == "" {
			continue
		}
		*out = append(*out, fieldBinding{index: index, column: tag})
	}
}

// assign stores v into dst, allocating pointer targets. It reports false when
// the value cannot be represented by the field type.
func assign(dst reflect.Value, v any) bool {
	if v == nil {
		dst.SetZero()
		return true
	}

	target := dst
	if dst.Kind() == reflect.Pointer {
		target = reflect.New(dst.Type().Elem()).Elem()
	}

	src := reflect.ValueOf(v)
	switch {
	case src.Type().AssignableTo(target.Type()):
		target.Set(src)
	case src.Kind() == reflect.Int64 && target.Kind() == reflect.Float64:
		target.SetFloat(float64(src.Int()))
	default:
		return false
	}

	if dst.Kind() == reflect.Pointer {
		dst.Set(target.Addr())
	}
	return true
}

