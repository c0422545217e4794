package io

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/featurekit/internal/dataframe"
	dferrors "github.com/paveg/featurekit/internal/errors"
	"github.com/paveg/featurekit/internal/series"
)

const (
	// Boolean string constants
	trueStr  = "true"
	falseStr = "false"

	// utf8BOM prefixes files exported by spreadsheet tools
	utf8BOM = "\ufeff"
)

type columnKind int

const (
	kindString columnKind = iota
	kindBool
	kindInt
	kindFloat
)

// Read reads CSV data and returns a DataFrame.
// Empty cells become nulls. Rows shorter than the header are padded with nulls.
func (r *CSVReader) Read() (*dataframe.DataFrame, error) {
	csvReader := csv.NewReader(r.reader)
	if r.options.Delimiter != 0 {
		csvReader.Comma = r.options.Delimiter
	}
	csvReader.Comment = r.options.Comment
	csvReader.TrimLeadingSpace = r.options.SkipInitialSpace
	csvReader.FieldsPerRecord = -1

	var headers []string
	var rows [][]string

	for {
		if r.options.MaxRows > 0 && len(rows) >= r.options.MaxRows {
			break
		}
		record, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV: %w", err)
		}

		if headers == nil {
			if r.options.Header {
				if headers, err = headerNames(record); err != nil {
					return nil, err
				}
				continue
			}
			headers = make([]string, len(record))
			for i := range headers {
				headers[i] = fmt.Sprintf("column_%d", i)
			}
		}
		rows = append(rows, record)
	}

	// Handle empty CSV
	if headers == nil {
		return dataframe.New(), nil
	}

	columns := make([]dataframe.ISeries, 0, len(headers))
	for i, header := range headers {
		values := make([]string, len(rows))
		for j, row := range rows {
			if i < len(row) {
				values[j] = row[i]
			}
		}
		s, err := r.createSeriesFromStrings(header, values)
		if err != nil {
			for _, c := range columns {
				c.Release()
			}
			return nil, fmt.Errorf("creating series for column %s: %w", header, err)
		}
		columns = append(columns, s)
	}

	return dataframe.New(columns...), nil
}

// headerNames strips a leading byte order mark and rejects repeated column names
func headerNames(record []string) ([]string, error) {
	headers := append([]string(nil), record...)
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], utf8BOM)
	}

	seen := make(map[string]struct{}, len(headers))
	for _, name := range headers {
		if _, dup := seen[name]; dup {
			return nil, dferrors.NewInvalidInputError("ReadCSV", fmt.Sprintf("duplicate column %q in header", name))
		}
		seen[name] = struct{}{}
	}
	return headers, nil
}

// createSeriesFromStrings builds a nullable series, inferring the element type when enabled
func (r *CSVReader) createSeriesFromStrings(name string, data []string) (dataframe.ISeries, error) {
	valid := make([]bool, len(data))
	for i, v := range data {
		valid[i] = v != ""
	}

	kind := kindString
	if r.options.InferTypes {
		kind = inferKind(data)
	}

	switch kind {
	case kindBool:
		values := make([]bool, len(data))
		for i, v := range data {
			values[i] = strings.EqualFold(v, trueStr)
		}
		return series.NewNullable(name, values, valid, r.mem)
	case kindInt:
		values := make([]int64, len(data))
		for i, v := range data {
			if valid[i] {
				values[i], _ = strconv.ParseInt(v, 10, 64)
			}
		}
		return series.NewNullable(name, values, valid, r.mem)
	case kindFloat:
		values := make([]float64, len(data))
		for i, v := range data {
			if valid[i] {
				values[i], _ = strconv.ParseFloat(v, 64)
			}
		}
		return series.NewNullable(name, values, valid, r.mem)
	default:
		return series.NewNullable(name, data, valid, r.mem)
	}
}

// inferKind determines the most specific type every non-empty value parses as
func inferKind(data []string) columnKind {
	canBeInt := true
	canBeFloat := true
	canBeBool := true
	hasNonEmptyValue := false

	for _, value := range data {
		if value == "" {
			continue // Skip empty values for type inference
		}
		hasNonEmptyValue = true

		if canBeBool {
			lower := strings.ToLower(value)
			if lower != trueStr && lower != falseStr {
				canBeBool = false
			}
		}
		if canBeInt {
			if _, err := strconv.ParseInt(value, 10, 64); err != nil {
				canBeInt = false
			}
		}
		if canBeFloat {
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				canBeFloat = false
			}
		}
	}

	switch {
	case !hasNonEmptyValue:
		return kindString
	case canBeBool:
		return kindBool
	case canBeInt:
		return kindInt
	case canBeFloat:
		return kindFloat
	default:
		return kindString
	}
}

// Write writes the DataFrame to CSV format.
// Nulls are written as empty cells and timestamps as RFC 3339 in UTC.
func (w *CSVWriter) Write(df *dataframe.DataFrame) error {
	csvWriter := csv.NewWriter(w.writer)
	if w.options.Delimiter != 0 {
		csvWriter.Comma = w.options.Delimiter
	}

	names := df.Columns()
	if w.options.Header {
		if err := csvWriter.Write(names); err != nil {
			return fmt.Errorf("writing headers: %w", err)
		}
	}

	arrs := make([]arrow.Array, len(names))
	for j, name := range names {
		col, _ := df.Column(name)
		arrs[j] = col.Array()
	}
	defer func() {
		for _, a := range arrs {
			a.Release()
		}
	}()

	row := make([]string, len(names))
	for i := 0; i < df.Len(); i++ {
		for j, arr := range arrs {
			row[j] = series.FormatValue(series.ValueAt(arr, i))
		}
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("flushing CSV: %w", err)
	}
	return nil
}

// ReadCSVFile opens path and reads it with the given options
func ReadCSVFile(path string, options CSVOptions, mem memory.Allocator) (*dataframe.DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	df, err := NewCSVReader(f, options, mem).Read()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return df, nil
}

// WriteCSVFile writes df to path, replacing any existing file
func WriteCSVFile(path string, df *dataframe.DataFrame, options CSVOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := NewCSVWriter(f, options).Write(df); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
