package io

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/paveg/featurekit/internal/dataframe"
	"github.com/paveg/featurekit/internal/series"
)

// Read reads Parquet data and returns a DataFrame.
func (r *ParquetReader) Read() (*dataframe.DataFrame, error) {
	return r.ReadContext(context.Background())
}

// ReadContext reads Parquet data and returns a DataFrame, honoring ctx cancellation.
func (r *ParquetReader) ReadContext(ctx context.Context) (*dataframe.DataFrame, error) {
	data, err := io.ReadAll(r.reader)
	if err != nil {
		return nil, fmt.Errorf("reading data: %w", err)
	}

	pqReader, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating parquet file reader: %w", err)
	}
	defer pqReader.Close()

	arrowReader, err := pqarrow.NewFileReader(pqReader, pqarrow.ArrowReadProperties{}, r.mem)
	if err != nil {
		return nil, fmt.Errorf("creating arrow file reader: %w", err)
	}

	table, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading table: %w", err)
	}
	defer table.Release()

	return r.tableToDataFrame(table)
}

// tableToDataFrame converts an Arrow table into a DataFrame, concatenating chunks per column
func (r *ParquetReader) tableToDataFrame(table arrow.Table) (*dataframe.DataFrame, error) {
	schema := table.Schema()
	columns := make([]dataframe.ISeries, 0, table.NumCols())
	release := func() {
		for _, c := range columns {
			c.Release()
		}
	}

	for i := range int(table.NumCols()) {
		field := schema.Field(i)
		s, err := r.columnToSeries(field, table.Column(i))
		if err != nil {
			release()
			return nil, fmt.Errorf("converting column %s: %w", field.Name, err)
		}
		columns = append(columns, s)
	}

	return dataframe.New(columns...), nil
}

func (r *ParquetReader) columnToSeries(field arrow.Field, column *arrow.Column) (dataframe.ISeries, error) {
	chunks := column.Data().Chunks()
	switch len(chunks) {
	case 0:
		return series.Empty(field.Name, field.Type, r.mem)
	case 1:
		return series.FromArray(field.Name, chunks[0], r.mem)
	default:
		arr, err := array.Concatenate(chunks, r.mem)
		if err != nil {
			return nil, err
		}
		defer arr.Release()
		return series.FromArray(field.Name, arr, r.mem)
	}
}

// Write writes the DataFrame to Parquet format. The Arrow schema is stored in
// the file so timestamp time zones survive a round trip.
func (w *ParquetWriter) Write(df *dataframe.DataFrame) error {
	record := dataFrameToRecord(df)
	defer record.Release()

	batchSize := w.options.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	props := parquet.NewWriterProperties(
		parquet.WithCompression(compressionCodec(w.options.Compression)),
		parquet.WithBatchSize(int64(batchSize)),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithAllocator(memory.NewGoAllocator()),
		pqarrow.WithStoreSchema(),
	)

	writer, err := pqarrow.NewFileWriter(record.Schema(), w.writer, props, arrowProps)
	if err != nil {
		return fmt.Errorf("creating file writer: %w", err)
	}

	if err := writer.Write(record); err != nil {
		_ = writer.Close()
		return fmt.Errorf("writing record: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing file writer: %w", err)
	}
	return nil
}

// compressionCodec maps a configured codec name to the Parquet codec, defaulting to snappy
func compressionCodec(name string) compress.Compression {
	switch name {
	case "gzip":
		return compress.Codecs.Gzip
	case "lz4":
		return compress.Codecs.Lz4Raw
	case "zstd":
		return compress.Codecs.Zstd
	case "uncompressed":
		return compress.Codecs.Uncompressed
	default:
		return compress.Codecs.Snappy
	}
}

// dataFrameToRecord exposes the DataFrame columns as one Arrow record without copying
func dataFrameToRecord(df *dataframe.DataFrame) arrow.Record {
	names := df.Columns()
	fields := make([]arrow.Field, 0, len(names))
	arrs := make([]arrow.Array, 0, len(names))

	for _, name := range names {
		col, _ := df.Column(name)
		arr := col.Array()
		fields = append(fields, arrow.Field{Name: name, Type: arr.DataType(), Nullable: true})
		arrs = append(arrs, arr)
	}

	record := array.NewRecord(arrow.NewSchema(fields, nil), arrs, int64(df.Len()))
	// NewRecord retains every column
	for _, arr := range arrs {
		arr.Release()
	}
	return record
}

// ReadParquetFile reads a whole Parquet file into a DataFrame
func ReadParquetFile(ctx context.Context, path string, mem memory.Allocator) (*dataframe.DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	df, err := NewParquetReader(f, mem).ReadContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return df, nil
}

// WriteParquetFile writes df to path, replacing any existing file
func WriteParquetFile(path string, df *dataframe.DataFrame, options ParquetOptions) error {
	var buf bytes.Buffer
	if err := NewParquetWriter(&buf, options).Write(df); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
