// Package validation checks raw tables against an entity schema before cleaning.
// Structural problems (missing columns, values that cannot take the declared
// type) fail fast; row-level date problems are turned into nulls instead.
package validation

import (
	"sort"

	"github.com/paveg/featurekit/internal/errors"
)

// Validator interface for input validation
type Validator interface {
	Validate() error
}

// ColumnProvider interface for types that provide column information
type ColumnProvider interface {
	HasColumn(name string) bool
	Columns() []string
	Len() int
	Width() int
}

// RequiredColumnsValidator validates that a table carries every required column
type RequiredColumnsValidator struct {
	df      ColumnProvider
	table   string
	columns []string
}

// NewRequiredColumnsValidator creates a validator for the required columns of table
func NewRequiredColumnsValidator(df ColumnProvider, table string, columns ...string) *RequiredColumnsValidator {
	return &RequiredColumnsValidator{
		df:      df,
		table:   table,
		columns: columns,
	}
}

// Validate reports all missing columns at once, sorted by name
func (v *RequiredColumnsValidator) Validate() error {
	var missing []string
	for _, column := range v.columns {
		if !v.df.HasColumn(column) {
			missing = append(missing, column)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return errors.NewSchemaError(v.table, missing)
}

// ValidatorFunc adapts a plain function to the Validator interface
type ValidatorFunc func() error

// Validate calls f
func (f ValidatorFunc) Validate() error {
	return f()
}

// CompoundValidator combines multiple validators
type CompoundValidator struct {
	validators []Validator
}

// NewCompoundValidator creates a validator that checks multiple conditions
func NewCompoundValidator(validators ...Validator) *CompoundValidator {
	return &CompoundValidator{
		validators: validators,
	}
}

// Validate runs all validators and returns the first error encountered
func (v *CompoundValidator) Validate() error {
	for _, validator := range v.validators {
		if err := validator.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateRequired is a convenience function for required column validation
func ValidateRequired(df ColumnProvider, table string, columns ...string) error {
	return NewRequiredColumnsValidator(df, table, columns...).Validate()
}
