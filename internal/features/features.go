// Package features derives per-customer, per-product and per-transaction
// features from cleaned entity tables.
//
// Every function is a pure transform: the input tables are never changed and
// the only notion of "now" is the Now field of Options, so the same inputs and
// options always produce the same output.
package features

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/paveg/featurekit/internal/dataframe"
	"github.com/paveg/featurekit/internal/errors"
	"gonum.org/v1/gonum/stat"
)

const (
	// DefaultRecencySentinel marks a customer with no observed purchase
	DefaultRecencySentinel int64 = 999
	// DefaultGapSentinel fills the first purchase gap under FillSentinel
	DefaultGapSentinel float64 = 999
	// UnknownCategory buckets products without a category
	UnknownCategory = "unknown"
)

// GapFill selects how the first purchase of each customer, which has no
// previous purchase, is given a days_since_last_purchase value
type GapFill int

const (
	// FillMedian uses the median of every observed gap, 0 when there is none
	FillMedian GapFill = iota
	// FillSentinel uses Options.GapSentinel
	FillSentinel
)

// String returns the policy name used in configuration
func (g GapFill) String() string {
	switch g {
	case FillMedian:
		return "median"
	case FillSentinel:
		return "sentinel"
	default:
		return fmt.Sprintf("GapFill(%d)", int(g))
	}
}

// ParseGapFill parses "median" or "sentinel"
func ParseGapFill(s string) (GapFill, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "median":
		return FillMedian, nil
	case "sentinel":
		return FillSentinel, nil
	default:
		return 0, errors.NewInvalidInputError("ParseGapFill", fmt.Sprintf("unknown gap fill policy %q", s))
	}
}

// Options controls feature computation
type Options struct {
	// Now is the reference time for recency and tenure; zero means time.Now
	Now time.Time
	// RecencySentinel is the recency_days of customers without purchases
	RecencySentinel int64
	// GapFill is the policy for the first purchase gap of each customer
	GapFill GapFill
	// GapSentinel is the fill value under FillSentinel
	GapSentinel float64
}

// DefaultOptions returns the options used by the pipeline
func DefaultOptions() Options {
	return Options{
		RecencySentinel: DefaultRecencySentinel,
		GapFill:         FillMedian,
		GapSentinel:     DefaultGapSentinel,
	}
}

func (o Options) now() time.Time {
	if o.Now.IsZero() {
		return time.Now().UTC()
	}
	return o.Now.UTC()
}

// wholeDays returns the number of whole days from earlier to later, rounded down
func wholeDays(later, earlier time.Time) int64 {
	return int64(math.Floor(float64(later.Sub(earlier)) / float64(24*time.Hour)))
}

// median returns the median of values, averaging the middle pair for even counts
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	if len(sorted)%2 == 1 {
		return mid
	}
	// Empirical returns the lower of the two middle values
	return (mid + sorted[len(sorted)/2]) / 2
}

// joinedName returns the name a right-hand column gets after a join with suffix
func joinedName(left *dataframe.DataFrame, name, suffix string) string {
	if left.HasColumn(name) {
		return name + suffix
	}
	return name
}
