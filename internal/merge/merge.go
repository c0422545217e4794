// Package merge builds the final denormalized table of one row per transaction.
package merge

import (
	"fmt"
	"log/slog"

	"github.com/paveg/featurekit/internal/dataframe"
)

// Suffixes appended to feature columns whose name is already taken on the left
const (
	ProductSuffix  = "_product"
	CustomerSuffix = "_customer"
)

// Merge left-joins transactions to product features on product_id and the
// result to customer features on customer_id. Every transaction is kept in
// order; rows without a match carry nulls in the feature columns. Both feature
// tables must be unique on their key.
func Merge(transactions, productFeatures, customerFeatures *dataframe.DataFrame, logger *slog.Logger) (*dataframe.DataFrame, error) {
	if logger == nil {
		logger = slog.Default()
	}

	withProducts, err := transactions.LeftJoin(productFeatures, &dataframe.JoinOptions{
		On:     "product_id",
		Suffix: ProductSuffix,
	})
	if err != nil {
		return nil, fmt.Errorf("merge product features: %w", err)
	}
	defer withProducts.Release()

	merged, err := withProducts.LeftJoin(customerFeatures, &dataframe.JoinOptions{
		On:     "customer_id",
		Suffix: CustomerSuffix,
	})
	if err != nil {
		return nil, fmt.Errorf("merge customer features: %w", err)
	}

	logger.Info("merge complete",
		slog.Int("rows", merged.Len()),
		slog.Int("columns", merged.Width()))
	return merged, nil
}
