package dataframe

import (
	"github.com/paveg/featurekit/internal/series"
)

// ISeries provides a type-erased interface for Series of any type
type ISeries = series.Interface
