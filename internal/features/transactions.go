package features

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/featurekit/internal/dataframe"
	"github.com/paveg/featurekit/internal/series"
	"github.com/paveg/featurekit/internal/validation"
)

// Transactions sorts by (customer_id, purchase_date) and adds
// days_since_last_purchase, the whole-day gap to the same customer's previous
// purchase. Rows without a previous purchase are filled per opts.GapFill.
func Transactions(transactions *dataframe.DataFrame, opts Options) (*dataframe.DataFrame, error) {
	if err := validation.ValidateRequired(transactions, "transactions", "customer_id", "purchase_date"); err != nil {
		return nil, err
	}

	sorted, err := transactions.SortBy([]string{"customer_id", "purchase_date"}, []bool{true, true})
	if err != nil {
		return nil, fmt.Errorf("transaction features: %w", err)
	}
	defer sorted.Release()

	customers, _ := sorted.Column("customer_id")
	dates, err := timeColumn(sorted, "purchase_date")
	if err != nil {
		return nil, fmt.Errorf("transaction features: %w", err)
	}

	n := sorted.Len()
	gaps := make([]float64, n)
	observed := make([]bool, n)
	var observedGaps []float64
	for i := 1; i < n; i++ {
		if customers.IsNull(i) || customers.IsNull(i-1) || customers.GetAsString(i) != customers.GetAsString(i-1) {
			continue
		}
		if dates.IsNull(i) || dates.IsNull(i-1) {
			continue
		}
		gaps[i] = float64(wholeDays(dates.Value(i), dates.Value(i-1)))
		observed[i] = true
		observedGaps = append(observedGaps, gaps[i])
	}

	fill := opts.GapSentinel
	if opts.GapFill == FillMedian {
		fill = median(observedGaps)
	}
	for i := range gaps {
		if !observed[i] {
			gaps[i] = fill
		}
	}

	return withColumns(sorted, series.New("days_since_last_purchase", gaps, memory.NewGoAllocator()))
}
