// Package clean narrows validated entity tables to one canonical row per key.
//
// Each cleaner normalizes text casing, re-coerces its date column to UTC, drops
// rows missing a required field and removes later duplicates of the natural key.
// Malformed rows are dropped rather than reported as errors; how many were
// dropped is returned in a Report. Cleaning an already clean table is a no-op.
package clean

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/featurekit/internal/dataframe"
	"github.com/paveg/featurekit/internal/series"
	"github.com/paveg/featurekit/internal/validation"
)

// Report summarizes what a cleaner removed
type Report struct {
	Entity            string `json:"entity"`
	RowsIn            int    `json:"rows_in"`
	MissingDropped    int    `json:"missing_dropped"`
	DuplicatesDropped int    `json:"duplicates_dropped"`
	RowsOut           int    `json:"rows_out"`
}

// String returns a one-line summary
func (r Report) String() string {
	return fmt.Sprintf("%s: %d in, %d missing, %d duplicates, %d out",
		r.Entity, r.RowsIn, r.MissingDropped, r.DuplicatesDropped, r.RowsOut)
}

// recipe describes how one entity is cleaned
type recipe struct {
	entity    string
	key       string
	required  []string
	lowercase []string
	dates     []string
}

var (
	customerRecipe = recipe{
		entity:    "customers",
		key:       "customer_id",
		required:  []string{"customer_id", "email", "signup_date"},
		lowercase: []string{"name"},
		dates:     []string{"signup_date"},
	}
	productRecipe = recipe{
		entity:    "products",
		key:       "product_id",
		required:  []string{"product_id", "product_name"},
		lowercase: []string{"product_name"},
	}
	transactionRecipe = recipe{
		entity:   "transactions",
		key:      "transaction_id",
		required: []string{"transaction_id", "customer_id", "product_id", "purchase_date"},
		dates:    []string{"purchase_date"},
	}
)

// Customers lowercases name, coerces signup_date, drops rows missing
// customer_id, email or signup_date and keeps the first row per customer_id.
func Customers(df *dataframe.DataFrame) (*dataframe.DataFrame, Report, error) {
	return customerRecipe.apply(df)
}

// Products lowercases product_name, drops rows missing product_id or
// product_name and keeps the first row per product_id.
func Products(df *dataframe.DataFrame) (*dataframe.DataFrame, Report, error) {
	return productRecipe.apply(df)
}

// Transactions coerces purchase_date to UTC, drops rows missing
// transaction_id, customer_id, product_id or purchase_date and keeps the
// first row per transaction_id.
func Transactions(df *dataframe.DataFrame) (*dataframe.DataFrame, Report, error) {
	return transactionRecipe.apply(df)
}

func (r recipe) apply(df *dataframe.DataFrame) (*dataframe.DataFrame, Report, error) {
	report := Report{Entity: r.entity, RowsIn: df.Len()}

	if err := validation.ValidateRequired(df, r.entity, r.required...); err != nil {
		return nil, report, err
	}

	mem := memory.NewGoAllocator()
	out := df.Select(df.Columns()...)

	replace := func(col series.Interface) error {
		next, err := out.WithColumn(col)
		if err != nil {
			return err
		}
		out.Release()
		out = next
		return nil
	}

	for _, name := range r.lowercase {
		col, exists := out.Column(name)
		if !exists {
			continue
		}
		lowered, err := lowercase(col, mem)
		if err != nil {
			out.Release()
			return nil, report, fmt.Errorf("clean %s: %w", r.entity, err)
		}
		if err := replace(lowered); err != nil {
			out.Release()
			return nil, report, err
		}
	}

	for _, name := range r.dates {
		col, _ := out.Column(name)
		coerced, err := validation.CoerceColumn(col, validation.DateTime, mem)
		if err != nil {
			out.Release()
			return nil, report, fmt.Errorf("clean %s: %w", r.entity, err)
		}
		if err := replace(coerced); err != nil {
			out.Release()
			return nil, report, err
		}
	}

	present, err := out.Filter(func(row int) bool {
		return !missingAny(out, r.required, row)
	})
	out.Release()
	if err != nil {
		return nil, report, fmt.Errorf("clean %s: %w", r.entity, err)
	}
	report.MissingDropped = report.RowsIn - present.Len()

	deduped, err := firstPerKey(present, r.key)
	present.Release()
	if err != nil {
		return nil, report, fmt.Errorf("clean %s: %w", r.entity, err)
	}
	report.DuplicatesDropped = report.RowsIn - report.MissingDropped - deduped.Len()
	report.RowsOut = deduped.Len()

	return deduped, report, nil
}

// missingAny reports whether any of columns is null or blank at row
func missingAny(df *dataframe.DataFrame, columns []string, row int) bool {
	for _, name := range columns {
		col, _ := df.Column(name)
		if col.IsNull(row) {
			return true
		}
		if s, ok := col.(*series.Series[string]); ok && strings.TrimSpace(s.Value(row)) == "" {
			return true
		}
	}
	return false
}

// firstPerKey keeps the first row of each distinct key, preserving row order
func firstPerKey(df *dataframe.DataFrame, key string) (*dataframe.DataFrame, error) {
	groups, err := df.GroupBy(key)
	if err != nil {
		return nil, err
	}
	keep := make([]int, 0, groups.Len())
	for _, g := range groups.Groups() {
		keep = append(keep, g.Rows[0])
	}
	return df.Take(keep)
}

func lowercase(col series.Interface, mem memory.Allocator) (series.Interface, error) {
	asString, err := validation.CoerceColumn(col, validation.String, mem)
	if err != nil {
		return nil, err
	}
	defer asString.Release()

	s := asString.(*series.Series[string])
	values := s.Values()
	for i, v := range values {
		values[i] = strings.ToLower(v)
	}
	return series.NewNullable(col.Name(), values, s.Valid(), mem)
}
