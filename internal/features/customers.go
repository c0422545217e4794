package features

import (
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/featurekit/internal/dataframe"
	"github.com/paveg/featurekit/internal/series"
	"github.com/paveg/featurekit/internal/validation"
	"github.com/shopspring/decimal"
)

const productSuffix = "_product"

// customerAggregate holds the reduction of one customer's transactions
type customerAggregate struct {
	spent      decimal.Decimal
	purchases  int64
	lastSeen   time.Time
	hasDate    bool
	categories []string // distinct categories in first-seen order
	counts     map[string]int
}

// topCategory returns the most frequent category. Ties go to the category seen
// first in the customer's transactions, which depends on input order.
func (a *customerAggregate) topCategory() string {
	best, bestCount := UnknownCategory, 0
	for _, c := range a.categories {
		if a.counts[c] > bestCount {
			best, bestCount = c, a.counts[c]
		}
	}
	return best
}

// Customers adds total_spent, num_purchases, avg_purchase_value, recency_days,
// days_since_signup and top_category to customers.
//
// Transactions are joined to products on product_id to price each purchase as
// price * quantity. Customers without transactions get 0, 0, 0 and
// opts.RecencySentinel for the first four features and "unknown" as top category.
// customer_id must be unique in customers and product_id unique in products.
func Customers(customers, transactions, products *dataframe.DataFrame, opts Options) (*dataframe.DataFrame, error) {
	checks := validation.NewCompoundValidator(
		validation.NewRequiredColumnsValidator(customers, "customers", "customer_id", "signup_date"),
		validation.NewRequiredColumnsValidator(transactions, "transactions", "customer_id", "product_id", "quantity", "purchase_date"),
		validation.NewRequiredColumnsValidator(products, "products", "product_id", "price"),
		validation.ValidatorFunc(func() error {
			return dataframe.AssertUnique(customers, "customer_id", "customer features")
		}),
	)
	if err := checks.Validate(); err != nil {
		return nil, err
	}

	aggregates, err := aggregatePurchases(transactions, products)
	if err != nil {
		return nil, fmt.Errorf("customer features: %w", err)
	}

	idCol, _ := customers.Column("customer_id")
	signups, err := timeColumn(customers, "signup_date")
	if err != nil {
		return nil, fmt.Errorf("customer features: %w", err)
	}

	now := opts.now()
	n := customers.Len()
	totalSpent := make([]float64, n)
	numPurchases := make([]int64, n)
	avgValue := make([]float64, n)
	recency := make([]int64, n)
	tenure := make([]int64, n)
	tenureValid := make([]bool, n)
	topCategory := make([]string, n)

	for i := 0; i < n; i++ {
		if !signups.IsNull(i) {
			tenure[i] = wholeDays(now, signups.Value(i))
			tenureValid[i] = true
		}

		agg, ok := aggregates[idCol.GetAsString(i)]
		if idCol.IsNull(i) || !ok || agg.purchases == 0 {
			recency[i] = opts.RecencySentinel
			topCategory[i] = UnknownCategory
			continue
		}

		totalSpent[i] = agg.spent.InexactFloat64()
		numPurchases[i] = agg.purchases
		avgValue[i] = agg.spent.Div(decimal.NewFromInt(agg.purchases)).InexactFloat64()
		recency[i] = opts.RecencySentinel
		if agg.hasDate {
			recency[i] = wholeDays(now, agg.lastSeen)
		}
		topCategory[i] = agg.topCategory()
	}

	mem := memory.NewGoAllocator()
	tenureSeries, err := series.NewNullable("days_since_signup", tenure, tenureValid, mem)
	if err != nil {
		return nil, err
	}

	return withColumns(customers,
		series.New("total_spent", totalSpent, mem),
		series.New("num_purchases", numPurchases, mem),
		series.New("avg_purchase_value", avgValue, mem),
		series.New("recency_days", recency, mem),
		tenureSeries,
		series.New("top_category", topCategory, mem),
	)
}

// aggregatePurchases groups the priced transactions by customer_id
func aggregatePurchases(transactions, products *dataframe.DataFrame) (map[string]*customerAggregate, error) {
	productCols := []string{"product_id", "price"}
	hasCategory := products.HasColumn("category")
	if hasCategory {
		productCols = append(productCols, "category")
	}
	lookup := products.Select(productCols...)
	defer lookup.Release()

	joined, err := transactions.LeftJoin(lookup, &dataframe.JoinOptions{On: "product_id", Suffix: productSuffix})
	if err != nil {
		return nil, err
	}
	defer joined.Release()

	prices, err := dataframe.ColumnAs[float64](joined, joinedName(transactions, "price", productSuffix))
	if err != nil {
		return nil, err
	}
	quantities, err := dataframe.ColumnAs[int64](joined, "quantity")
	if err != nil {
		return nil, err
	}
	dates, err := timeColumn(joined, "purchase_date")
	if err != nil {
		return nil, err
	}
	var categories *series.Series[string]
	if hasCategory {
		categories, err = dataframe.ColumnAs[string](joined, joinedName(transactions, "category", productSuffix))
		if err != nil {
			return nil, err
		}
	}

	groups, err := joined.GroupBy("customer_id")
	if err != nil {
		return nil, err
	}

	aggregates := make(map[string]*customerAggregate, groups.Len())
	for _, g := range groups.Groups() {
		agg := &customerAggregate{counts: make(map[string]int)}
		for _, row := range g.Rows {
			agg.purchases++
			if !prices.IsNull(row) && !quantities.IsNull(row) {
				value := decimal.NewFromFloat(prices.Value(row)).Mul(decimal.NewFromInt(quantities.Value(row)))
				agg.spent = agg.spent.Add(value)
			}
			if !dates.IsNull(row) {
				if d := dates.Value(row); !agg.hasDate || d.After(agg.lastSeen) {
					agg.lastSeen, agg.hasDate = d, true
				}
			}
			if categories != nil {
				category := UnknownCategory
				if !categories.IsNull(row) {
					category = categories.Value(row)
				}
				if agg.counts[category] == 0 {
					agg.categories = append(agg.categories, category)
				}
				agg.counts[category]++
			}
		}
		aggregates[g.Key] = agg
	}
	return aggregates, nil
}

// timeColumn returns name as a timestamp column, parsing strings when needed
func timeColumn(df *dataframe.DataFrame, name string) (*series.Series[time.Time], error) {
	col, exists := df.Column(name)
	if !exists {
		return dataframe.ColumnAs[time.Time](df, name)
	}
	if typed, ok := col.(*series.Series[time.Time]); ok {
		return typed, nil
	}
	coerced, err := validation.CoerceColumn(col, validation.DateTime, nil)
	if err != nil {
		return nil, err
	}
	return coerced.(*series.Series[time.Time]), nil
}

// withColumns appends cols to df, replacing columns of the same name
func withColumns(df *dataframe.DataFrame, cols ...series.Interface) (*dataframe.DataFrame, error) {
	out := df.Select(df.Columns()...)
	for _, col := range cols {
		next, err := out.WithColumn(col)
		if err != nil {
			out.Release()
			return nil, err
		}
		out.Release()
		out = next
	}
	return out, nil
}
