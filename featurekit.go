// Package featurekit turns raw customer, product and transaction tables into a
// single denormalized table of engineered features, one row per transaction.
//
// A run validates and coerces the three raw tables, cleans them, derives
// product, customer and transaction features, and left-joins everything onto
// the transactions. This package is the public API; the stages themselves live
// under internal/.
//
// Basic usage:
//
//	p, err := featurekit.New(featurekit.NewConfig())
//	in, err := p.Load(ctx, "data")
//	defer in.Release()
//	res, err := p.Run(ctx, in)
//	defer res.Release()
//	err = p.Store(ctx, sink, res)
package featurekit

import (
	"context"

	"github.com/paveg/featurekit/internal/clean"
	"github.com/paveg/featurekit/internal/config"
	"github.com/paveg/featurekit/internal/dataframe"
	"github.com/paveg/featurekit/internal/errors"
	"github.com/paveg/featurekit/internal/monitoring"
	"github.com/paveg/featurekit/internal/schema"
	"github.com/paveg/featurekit/internal/storage"
)

// Table and configuration types
type (
	DataFrame    = dataframe.DataFrame
	Config       = config.Config
	SinkConfig   = config.SinkConfig
	CleanReport  = clean.Report
	StageMetrics = monitoring.StageMetrics
	Ingest       = schema.Ingest
	Sink         = storage.Sink
	IfExists     = storage.IfExists
)

// Error types, matchable with errors.As
type (
	DataFrameError      = errors.DataFrameError
	SchemaError         = errors.SchemaError
	TypeConversionError = errors.TypeConversionError
	DuplicateKeyError   = errors.DuplicateKeyError
)

// Table replace policies
const (
	Replace = storage.Replace
	Append  = storage.Append
	Fail    = storage.Fail
)

// ErrTableExists is returned by Store under the Fail policy when the table exists
var ErrTableExists = storage.ErrTableExists

// NewConfig returns the default run configuration
func NewConfig() Config {
	return config.NewConfig()
}

// LoadConfig builds a configuration from defaults, an optional JSON or YAML
// file and the environment, in that order of precedence. A .env file in the
// working directory is loaded first when present.
func LoadConfig(path string) (Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return Config{}, err
	}

	cfg := config.NewConfig()
	if path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}

	cfg = config.LoadFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SQLSink is a Sink backed by a database/sql connection pool
type SQLSink = storage.SQLSink

// OpenSink connects to the database described by sc
func OpenSink(ctx context.Context, sc SinkConfig) (*SQLSink, error) {
	return storage.Open(ctx, sc.Driver, sc.DataSourceName())
}

// NewMemorySink returns a Sink that keeps tables in memory
func NewMemorySink() *storage.MemorySink {
	return storage.NewMemorySink()
}

// Decode converts a table into typed records by db tag
func Decode[T any](df *DataFrame) ([]T, error) {
	return schema.Decode[T](df)
}

// Record contracts
type (
	RawCustomer    = schema.RawCustomer
	RawProduct     = schema.RawProduct
	RawTransaction = schema.RawTransaction

	CustomerFeatures    = schema.CustomerFeatures
	ProductFeatures     = schema.ProductFeatures
	TransactionFeatures = schema.TransactionFeatures
)
