package validation

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/featurekit/internal/dataframe"
	"github.com/paveg/featurekit/internal/errors"
)

// Schema describes the columns a raw table must carry and the types to coerce them to
type Schema struct {
	Table    string
	Required []string
	Types    map[string]Type
}

// Entity schemas for the three raw input tables
var (
	CustomersSchema = Schema{
		Table:    "customers",
		Required: []string{"customer_id", "name", "email", "signup_date"},
		Types: map[string]Type{
			"customer_id": String,
			"name":        String,
			"email":       String,
			"signup_date": DateTime,
		},
	}

	ProductsSchema = Schema{
		Table:    "products",
		Required: []string{"product_id", "product_name", "price"},
		Types: map[string]Type{
			"product_id":   String,
			"product_name": String,
			"category":     String,
			"price":        Float,
		},
	}

	TransactionsSchema = Schema{
		Table:    "transactions",
		Required: []string{"transaction_id", "customer_id", "product_id", "purchase_date", "quantity"},
		Types: map[string]Type{
			"transaction_id": String,
			"customer_id":    String,
			"product_id":     String,
			"purchase_date":  DateTime,
			"quantity":       Int,
			"total_price":    Float,
		},
	}
)

// Validate checks df against schema and returns a new table with every declared
// column coerced. Typed columns absent from df are skipped; no rows are dropped.
func Validate(df *dataframe.DataFrame, schema Schema) (*dataframe.DataFrame, error) {
	checks := NewCompoundValidator(
		NewRequiredColumnsValidator(df, schema.Table, schema.Required...),
		ValidatorFunc(func() error {
			for name, typ := range schema.Types {
				if typ < String || typ > DateTime {
					return errors.NewUnsupportedTypeError("validate "+schema.Table, fmt.Sprintf("%s for column %s", typ, name))
				}
			}
			return nil
		}),
	)
	if err := checks.Validate(); err != nil {
		return nil, err
	}

	mem := memory.NewGoAllocator()
	result := df.Select(df.Columns()...)
	for _, name := range df.Columns() {
		typ, declared := schema.Types[name]
		if !declared {
			continue
		}
		col, _ := result.Column(name)
		coerced, err := CoerceColumn(col, typ, mem)
		if err != nil {
			result.Release()
			return nil, fmt.Errorf("validate %s: %w", schema.Table, err)
		}
		next, err := result.WithColumn(coerced)
		if err != nil {
			result.Release()
			return nil, err
		}
		result.Release()
		result = next
	}
	return result, nil
}
