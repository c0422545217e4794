package featurekit

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/featurekit/internal/clean"
	"github.com/paveg/featurekit/internal/features"
	"github.com/paveg/featurekit/internal/io"
	"github.com/paveg/featurekit/internal/merge"
	"github.com/paveg/featurekit/internal/monitoring"
	"github.com/paveg/featurekit/internal/schema"
	"github.com/paveg/featurekit/internal/storage"
	"github.com/paveg/featurekit/internal/validation"
)

// Input file names expected by Load
const (
	CustomersFile    = "customers.csv"
	ProductsFile     = "products.csv"
	TransactionsFile = "transactions.csv"
)

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the logger; the default is slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock sets the clock read once per run for recency and tenure
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithAllocator sets the Arrow allocator used when reading files
func WithAllocator(mem memory.Allocator) Option {
	return func(p *Pipeline) {
		if mem != nil {
			p.mem = mem
		}
	}
}

// Pipeline runs the feature pipeline for one configuration
type Pipeline struct {
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
	mem     memory.Allocator
	gapFill features.GapFill
	policy  storage.IfExists
}

// New validates cfg and creates a Pipeline
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	gapFill, err := features.ParseGapFill(cfg.GapFill)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	policy, err := storage.ParseIfExists(cfg.Sink.IfExists)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	p := &Pipeline{
		cfg:     cfg,
		logger:  slog.Default(),
		now:     time.Now,
		mem:     memory.NewGoAllocator(),
		gapFill: gapFill,
		policy:  policy,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config returns the configuration the pipeline was built with
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Inputs holds the three raw tables of a run
type Inputs struct {
	Customers    *DataFrame
	Products     *DataFrame
	Transactions *DataFrame
	Ingest       Ingest
}

// Release releases every table
func (in Inputs) Release() {
	for _, df := range []*DataFrame{in.Customers, in.Products, in.Transactions} {
		if df != nil {
			df.Release()
		}
	}
}

// RawCustomers decodes the raw customers table, stamping each record with the ingest metadata
func (in Inputs) RawCustomers() ([]RawCustomer, error) {
	return schema.DecodeRaw[schema.RawCustomer](in.Customers, in.Ingest)
}

// RawProducts decodes the raw products table, stamping each record with the ingest metadata
func (in Inputs) RawProducts() ([]RawProduct, error) {
	return schema.DecodeRaw[schema.RawProduct](in.Products, in.Ingest)
}

// RawTransactions decodes the raw transactions table, stamping each record with the ingest metadata
func (in Inputs) RawTransactions() ([]RawTransaction, error) {
	return schema.DecodeRaw[schema.RawTransaction](in.Transactions, in.Ingest)
}

// Load reads customers.csv, products.csv and transactions.csv from dir. Every
// column is read as text and each file is cut at the configured row limit.
func (p *Pipeline) Load(ctx context.Context, dir string) (Inputs, error) {
	options := io.DefaultCSVOptions()
	options.MaxRows = p.cfg.RowLimit

	in := Inputs{Ingest: schema.NewIngest(dir, p.now())}
	targets := []struct {
		file string
		dst  **DataFrame
	}{
		{CustomersFile, &in.Customers},
		{ProductsFile, &in.Products},
		{TransactionsFile, &in.Transactions},
	}

	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			in.Release()
			return Inputs{}, err
		}
		df, err := io.ReadCSVFile(filepath.Join(dir, target.file), options, p.mem)
		if err != nil {
			in.Release()
			return Inputs{}, fmt.Errorf("load: %w", err)
		}
		*target.dst = df
		p.logger.Debug("loaded file",
			slog.String("file", target.file),
			slog.Int("rows", df.Len()),
			slog.Int("columns", df.Width()))
	}

	p.logger.Info("inputs loaded",
		slog.String("dir", dir),
		slog.String("ingest_batch_id", in.Ingest.IngestBatchID.String()))
	return in, nil
}

// Result holds every table a run produced
type Result struct {
	// Cleaned entity tables
	Customers    *DataFrame
	Products     *DataFrame
	Transactions *DataFrame

	// Feature tables
	CustomerFeatures    *DataFrame
	ProductFeatures     *DataFrame
	TransactionFeatures *DataFrame

	// Final is the merged table, one row per clean transaction
	Final *DataFrame

	Reports []CleanReport
	// ContractViolations counts cleaned records failing their record contract, per entity
	ContractViolations map[string]int
	Metrics            []StageMetrics
	Now                time.Time
	Ingest             Ingest
}

// Release releases every table of the result
func (r *Result) Release() {
	for _, df := range []*DataFrame{
		r.Customers, r.Products, r.Transactions,
		r.CustomerFeatures, r.ProductFeatures, r.TransactionFeatures,
		r.Final,
	} {
		if df != nil {
			df.Release()
		}
	}
}

// Run validates, cleans, engineers features and merges. The input tables are not modified.
func (p *Pipeline) Run(ctx context.Context, in Inputs) (*Result, error) {
	if in.Customers == nil || in.Products == nil || in.Transactions == nil {
		return nil, fmt.Errorf("run: all three input tables are required")
	}

	metrics := monitoring.NewMetricsCollector(p.cfg.MetricsCollection)
	res := &Result{
		Now:                p.now().UTC(),
		Ingest:             in.Ingest,
		ContractViolations: make(map[string]int),
	}
	r := runner{ctx: ctx, logger: p.logger, metrics: metrics}

	entities := []struct {
		name   string
		raw    *DataFrame
		schema validation.Schema
		clean  func(*DataFrame) (*DataFrame, clean.Report, error)
		dst    **DataFrame
	}{
		{"customers", in.Customers, validation.CustomersSchema, clean.Customers, &res.Customers},
		{"products", in.Products, validation.ProductsSchema, clean.Products, &res.Products},
		{"transactions", in.Transactions, validation.TransactionsSchema, clean.Transactions, &res.Transactions},
	}

	for _, e := range entities {
		validated, err := r.stage("validate_"+e.name, func() (*DataFrame, error) {
			return validation.Validate(e.raw, e.schema)
		})
		if err != nil {
			res.Release()
			return nil, err
		}

		var report clean.Report
		cleaned, err := r.stage("clean_"+e.name, func() (*DataFrame, error) {
			df, rep, err := e.clean(validated)
			report = rep
			return df, err
		})
		validated.Release()
		if err != nil {
			res.Release()
			return nil, err
		}
		*e.dst = cleaned
		res.Reports = append(res.Reports, report)
		p.logger.Info("cleaned",
			slog.String("entity", report.Entity),
			slog.Int("rows_in", report.RowsIn),
			slog.Int("missing_dropped", report.MissingDropped),
			slog.Int("duplicates_dropped", report.DuplicatesDropped),
			slog.Int("rows_out", report.RowsOut))
	}

	p.checkContracts(res)

	opts := features.Options{
		Now:             res.Now,
		RecencySentinel: p.cfg.RecencySentinel,
		GapFill:         p.gapFill,
		GapSentinel:     p.cfg.GapSentinel,
	}

	var err error
	if res.ProductFeatures, err = r.stage("product_features", func() (*DataFrame, error) {
		return features.Products(res.Transactions, res.Products)
	}); err != nil {
		res.Release()
		return nil, err
	}

	if res.CustomerFeatures, err = r.stage("customer_features", func() (*DataFrame, error) {
		return features.Customers(res.Customers, res.Transactions, res.Products, opts)
	}); err != nil {
		res.Release()
		return nil, err
	}

	if res.TransactionFeatures, err = r.stage("transaction_features", func() (*DataFrame, error) {
		return features.Transactions(res.Transactions, opts)
	}); err != nil {
		res.Release()
		return nil, err
	}

	if res.Final, err = r.stage("merge", func() (*DataFrame, error) {
		return merge.Merge(res.TransactionFeatures, res.ProductFeatures, res.CustomerFeatures, p.logger)
	}); err != nil {
		res.Release()
		return nil, err
	}

	res.Metrics = metrics.GetMetrics()
	summary := metrics.GetSummary()
	p.logger.Info("run complete",
		slog.Int("rows", res.Final.Len()),
		slog.Int("columns", res.Final.Width()),
		slog.Int("stages", summary.TotalStages),
		slog.Duration("duration", summary.TotalDuration))
	return res, nil
}

// checkContracts decodes the cleaned tables into record contracts and counts
// the records that fail validation. Violations are reported, never dropped.
func (p *Pipeline) checkContracts(res *Result) {
	count := func(entity string, bad map[int]error, err error) {
		if err != nil {
			p.logger.Warn("contract check skipped", slog.String("entity", entity), slog.Any("error", err))
			return
		}
		res.ContractViolations[entity] = len(bad)
		if len(bad) > 0 {
			p.logger.Warn("contract violations", slog.String("entity", entity), slog.Int("records", len(bad)))
		}
	}

	customers, err := schema.Decode[schema.CleanCustomer](res.Customers)
	count("customers", schema.Invalid(customers), err)
	products, err := schema.Decode[schema.CleanProduct](res.Products)
	count("products", schema.Invalid(products), err)
	transactions, err := schema.Decode[schema.CleanTransaction](res.Transactions)
	count("transactions", schema.Invalid(transactions), err)
}

// Store writes the final table to sink under the configured table name and policy
func (p *Pipeline) Store(ctx context.Context, sink Sink, res *Result) error {
	if res == nil || res.Final == nil {
		return fmt.Errorf("store: no result to store")
	}
	table := p.cfg.Sink.Table
	if err := sink.Write(ctx, table, res.Final, p.policy); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	p.logger.Info("stored",
		slog.String("table", table),
		slog.String("if_exists", p.policy.String()),
		slog.Int("rows", res.Final.Len()))
	return nil
}

// Export writes the final table to the configured Parquet and CSV paths, if any
func (p *Pipeline) Export(res *Result) error {
	if res == nil || res.Final == nil {
		return fmt.Errorf("export: no result to export")
	}
	if path := p.cfg.ParquetPath; path != "" {
		if err := io.WriteParquetFile(path, res.Final, io.DefaultParquetOptions()); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		p.logger.Info("exported", slog.String("format", "parquet"), slog.String("path", path))
	}
	if path := p.cfg.CSVPath; path != "" {
		if err := io.WriteCSVFile(path, res.Final, io.DefaultCSVOptions()); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		p.logger.Info("exported", slog.String("format", "csv"), slog.String("path", path))
	}
	return nil
}

// runner executes stages with cancellation checks, metrics and logging
type runner struct {
	ctx     context.Context
	logger  *slog.Logger
	metrics *monitoring.MetricsCollector
}

func (r runner) stage(name string, fn func() (*DataFrame, error)) (*DataFrame, error) {
	if err := r.ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	var out *DataFrame
	err := r.metrics.RecordStage(name, func() (int, error) {
		df, err := fn()
		if err != nil {
			return 0, err
		}
		out = df
		return df.Len(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	r.logger.Debug("stage complete", slog.String("stage", name), slog.Int("rows", out.Len()))
	return out, nil
}
