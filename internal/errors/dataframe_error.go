// Package errors provides standardized error types for table and pipeline operations.
// DataFrameError carries operation context for generic table failures, while
// SchemaError, TypeConversionError and DuplicateKeyError describe the structural
// problems that abort a pipeline run.
package errors

import (
	"fmt"
	"strings"
)

// DataFrameError represents standardized errors across all DataFrame operations
type DataFrameError struct {
	Op      string // Operation name (e.g., "SortBy", "LeftJoin", "Take")
	Column  string // Column name if applicable
	Message string // Human-readable error description
	Cause   error  // Underlying error cause
}

// Error implements the error interface
func (e *DataFrameError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s operation failed on column '%s': %s", e.Op, e.Column, e.Message)
	}
	return fmt.Sprintf("%s operation failed: %s", e.Op, e.Message)
}

// Unwrap returns the underlying cause for error wrapping support
func (e *DataFrameError) Unwrap() error {
	return e.Cause
}

// Is implements error equality checking for errors.Is()
func (e *DataFrameError) Is(target error) bool {
	if df, ok := target.(*DataFrameError); ok {
		return e.Op == df.Op && e.Column == df.Column && e.Message == df.Message
	}
	return false
}

// NewColumnNotFoundError creates an error for operations on non-existent columns
func NewColumnNotFoundError(op, column string) *DataFrameError {
	return &DataFrameError{
		Op:      op,
		Column:  column,
		Message: "column does not exist",
	}
}

// NewInvalidInputError creates an error for invalid operation inputs
func NewInvalidInputError(op, message string) *DataFrameError {
	return &DataFrameError{
		Op:      op,
		Message: message,
	}
}

// NewUnsupportedTypeError creates an error for unsupported data types
func NewUnsupportedTypeError(op, typeName string) *DataFrameError {
	return &DataFrameError{
		Op:      op,
		Message: fmt.Sprintf("unsupported type: %s", typeName),
	}
}

// NewTypeMismatchError creates an error for a column holding an unexpected type
func NewTypeMismatchError(op, column, expected, actual string) *DataFrameError {
	return &DataFrameError{
		Op:      op,
		Column:  column,
		Message: fmt.Sprintf("expected %s, got %s", expected, actual),
	}
}

// NewValidationError creates an error for input validation failures
func NewValidationError(op, column, message string) *DataFrameError {
	return &DataFrameError{
		Op:      op,
		Column:  column,
		Message: message,
	}
}

// NewInternalError creates an error for internal operation failures
func NewInternalError(op string, cause error) *DataFrameError {
	return &DataFrameError{
		Op:      op,
		Message: "internal error occurred",
		Cause:   cause,
	}
}

// Predefined error variables for common cases
var (
	// ErrMismatchedLength indicates length mismatches in operations
	ErrMismatchedLength = &DataFrameError{
		Op:      "validation",
		Message: "arrays must have the same length",
	}

	// ErrInvalidIndex indicates out-of-bounds index access
	ErrInvalidIndex = &DataFrameError{
		Op:      "indexing",
		Message: "index out of bounds",
	}
)

// SchemaError reports required columns absent from an input table
type SchemaError struct {
	Table   string   // Logical table name, e.g. "customers"
	Missing []string // Missing column names, sorted
}

// Error implements the error interface
func (e *SchemaError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("schema error in %s: missing columns [%s]", e.Table, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("schema error: missing columns [%s]", strings.Join(e.Missing, ", "))
}

// NewSchemaError creates a SchemaError for the given table
func NewSchemaError(table string, missing []string) *SchemaError {
	return &SchemaError{Table: table, Missing: missing}
}

// TypeConversionError reports a column that could not be coerced to its declared type
type TypeConversionError struct {
	Column string // Column being coerced
	Type   string // Target type name
	Row    int    // First offending row, -1 when not row specific
	Cause  error  // Underlying parse failure
}

// Error implements the error interface
func (e *TypeConversionError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("cannot convert column '%s' to %s at row %d: %v", e.Column, e.Type, e.Row, e.Cause)
	}
	return fmt.Sprintf("cannot convert column '%s' to %s: %v", e.Column, e.Type, e.Cause)
}

// Unwrap returns the underlying cause
func (e *TypeConversionError) Unwrap() error {
	return e.Cause
}

// NewTypeConversionError creates a TypeConversionError
func NewTypeConversionError(column, typeName string, row int, cause error) *TypeConversionError {
	return &TypeConversionError{Column: column, Type: typeName, Row: row, Cause: cause}
}

// maxReportedKeys bounds how many offending keys a DuplicateKeyError lists
const maxReportedKeys = 5

// DuplicateKeyError reports a join key that is not unique on the side that must be unique
type DuplicateKeyError struct {
	Op     string   // Operation that required uniqueness
	Column string   // Key column
	Keys   []string // Sample of duplicated key values
	Count  int      // Number of distinct duplicated keys
}

// Error implements the error interface
func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("%s: key column '%s' is not unique (%d duplicated keys, e.g. %s)",
		e.Op, e.Column, e.Count, strings.Join(e.Keys, ", "))
}

// NewDuplicateKeyError creates a DuplicateKeyError keeping a bounded sample of keys
func NewDuplicateKeyError(op, column string, keys []string) *DuplicateKeyError {
	sample := keys
	if len(sample) > maxReportedKeys {
		sample = sample[:maxReportedKeys]
	}
	return &DuplicateKeyError{
		Op:     op,
		Column: column,
		Keys:   append([]string(nil), sample...),
		Count:  len(keys),
	}
}
