package features

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/featurekit/internal/dataframe"
	"github.com/paveg/featurekit/internal/series"
	"github.com/paveg/featurekit/internal/validation"
)

// Products adds popularity_score, the number of transactions referencing each
// product, and category_popularity, the summed popularity of all products in
// the same category. Products without a category count towards "unknown";
// without a category column every category_popularity is 0.
func Products(transactions, products *dataframe.DataFrame) (*dataframe.DataFrame, error) {
	checks := validation.NewCompoundValidator(
		validation.NewRequiredColumnsValidator(products, "products", "product_id"),
		validation.NewRequiredColumnsValidator(transactions, "transactions", "product_id"),
		validation.ValidatorFunc(func() error {
			return dataframe.AssertUnique(products, "product_id", "product features")
		}),
	)
	if err := checks.Validate(); err != nil {
		return nil, err
	}

	groups, err := transactions.GroupBy("product_id")
	if err != nil {
		return nil, fmt.Errorf("product features: %w", err)
	}
	counts := groups.Count()

	ids, _ := products.Column("product_id")
	n := products.Len()
	popularity := make([]int64, n)
	for i := 0; i < n; i++ {
		if !ids.IsNull(i) {
			popularity[i] = counts[ids.GetAsString(i)]
		}
	}

	categoryPopularity := make([]int64, n)
	if category, ok := products.Column("category"); ok {
		bucket := func(i int) string {
			if category.IsNull(i) {
				return UnknownCategory
			}
			return category.GetAsString(i)
		}
		totals := make(map[string]int64)
		for i := 0; i < n; i++ {
			totals[bucket(i)] += popularity[i]
		}
		for i := 0; i < n; i++ {
			categoryPopularity[i] = totals[bucket(i)]
		}
	}

	mem := memory.NewGoAllocator()
	return withColumns(products,
		series.New("popularity_score", popularity, mem),
		series.New("category_popularity", categoryPopularity, mem),
	)
}
