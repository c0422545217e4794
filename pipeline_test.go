package featurekit_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/paveg/featurekit"
	"github.com/paveg/featurekit/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

var (
	customerRows = [][]string{
		{"C1", "Alice", "a@x.com", "2023-01-01"},
		{"C2", "Bob", "b@x.com", "2023-03-01"},
		{"C2", "Bobby", "bobby@x.com", "2023-04-01"},
		{"C3", "Carol", "c@x.com", ""},
	}
	productRows = [][]string{
		{"P1", "Mug", "kitchen", "10.0"},
		{"P2", "Hat", "apparel", "5"},
	}
	transactionRows = [][]string{
		{"T1", "C1", "P1", "2023-06-01", "2"},
		{"T2", "C1", "P2", "", "1"},
		{"T1", "C1", "P2", "2023-06-05", "3"},
		{"T3", "C2", "P2", "2023-06-10", "1"},
	}
)

// writeFixtures writes the three input files and returns their directory
func writeFixtures(t *testing.T, customers, products, transactions [][]string) string {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteCSV(t, dir, featurekit.CustomersFile, testutil.CustomersHeader, customers)
	testutil.WriteCSV(t, dir, featurekit.ProductsFile, testutil.ProductsHeader, products)
	testutil.WriteCSV(t, dir, featurekit.TransactionsFile, testutil.TransactionsHeader, transactions)
	return dir
}

func newPipeline(t *testing.T, cfg featurekit.Config, logs *bytes.Buffer) *featurekit.Pipeline {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	p, err := featurekit.New(cfg, featurekit.WithClock(clock), featurekit.WithLogger(logger))
	require.NoError(t, err)
	return p
}

func run(t *testing.T, p *featurekit.Pipeline, dir string) (featurekit.Inputs, *featurekit.Result) {
	t.Helper()
	ctx := context.Background()

	in, err := p.Load(ctx, dir)
	require.NoError(t, err)
	t.Cleanup(in.Release)

	res, err := p.Run(ctx, in)
	require.NoError(t, err)
	t.Cleanup(res.Release)
	return in, res
}

func TestPipelineRun(t *testing.T) {
	var logs bytes.Buffer
	p := newPipeline(t, featurekit.NewConfig(), &logs)
	in, res := run(t, p, writeFixtures(t, customerRows, productRows, transactionRows))

	t.Run("inputs are untouched", func(t *testing.T) {
		assert.Equal(t, 4, in.Customers.Len())
		assert.Equal(t, 4, in.Transactions.Len())
		assert.Equal(t, []string{"T1", "T2", "T1", "T3"}, testutil.Strings(t, in.Transactions, "transaction_id"))
		assert.Equal(t, []string{"2023-06-01", "", "2023-06-05", "2023-06-10"}, testutil.Strings(t, in.Transactions, "purchase_date"))
	})

	t.Run("clean reports", func(t *testing.T) {
		require.Len(t, res.Reports, 3)
		assert.Equal(t, featurekit.CleanReport{Entity: "customers", RowsIn: 4, MissingDropped: 1, DuplicatesDropped: 1, RowsOut: 2}, res.Reports[0])
		assert.Equal(t, featurekit.CleanReport{Entity: "products", RowsIn: 2, RowsOut: 2}, res.Reports[1])
		assert.Equal(t, featurekit.CleanReport{Entity: "transactions", RowsIn: 4, MissingDropped: 1, DuplicatesDropped: 1, RowsOut: 2}, res.Reports[2])

		assert.Equal(t, []string{"alice", "bob"}, testutil.Strings(t, res.Customers, "name"))
		assert.Equal(t, map[string]int{"customers": 0, "products": 0, "transactions": 0}, res.ContractViolations)
	})

	t.Run("customer features", func(t *testing.T) {
		records, err := featurekit.Decode[featurekit.CustomerFeatures](res.CustomerFeatures)
		require.NoError(t, err)
		require.Len(t, records, 2)

		c1 := records[0]
		assert.Equal(t, "C1", c1.CustomerID)
		assert.InDelta(t, 20.0, c1.TotalSpent, 1e-9)
		assert.Equal(t, int64(1), c1.NumPurchases)
		assert.InDelta(t, 20.0, c1.AvgPurchaseValue, 1e-9)
		assert.Equal(t, int64(214), c1.RecencyDays)
		require.NotNil(t, c1.DaysSinceSignup)
		assert.Equal(t, int64(365), *c1.DaysSinceSignup)
		assert.Equal(t, "kitchen", c1.TopCategory)
		assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), c1.SignupDate)

		c2 := records[1]
		assert.Equal(t, "C2", c2.CustomerID)
		assert.InDelta(t, 5.0, c2.TotalSpent, 1e-9)
		assert.Equal(t, int64(205), c2.RecencyDays)
		assert.Equal(t, "apparel", c2.TopCategory)
	})

	t.Run("product features", func(t *testing.T) {
		records, err := featurekit.Decode[featurekit.ProductFeatures](res.ProductFeatures)
		require.NoError(t, err)
		require.Len(t, records, 2)
		for _, r := range records {
			assert.Equal(t, int64(1), r.PopularityScore, r.ProductID)
			assert.Equal(t, int64(1), r.CategoryPopularity, r.ProductID)
		}
	})

	t.Run("transaction features", func(t *testing.T) {
		records, err := featurekit.Decode[featurekit.TransactionFeatures](res.TransactionFeatures)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "T1", records[0].TransactionID)
		assert.Equal(t, "T3", records[1].TransactionID)
		// single purchases have no observed gap; the median of nothing is 0
		assert.Equal(t, 0.0, records[0].DaysSinceLastPurchase)
		assert.Equal(t, 0.0, records[1].DaysSinceLastPurchase)
	})

	t.Run("final table", func(t *testing.T) {
		assert.Equal(t, 2, res.Final.Len())
		for _, name := range []string{"transaction_id", "popularity_score", "total_spent", "recency_days", "days_since_last_purchase"} {
			assert.True(t, res.Final.HasColumn(name), name)
		}
		assert.Equal(t, []string{"T1", "T3"}, testutil.Strings(t, res.Final, "transaction_id"))
	})

	t.Run("metrics and logs", func(t *testing.T) {
		assert.Len(t, res.Metrics, 10)
		assert.Equal(t, "validate_customers", res.Metrics[0].Stage)
		assert.Equal(t, "merge", res.Metrics[len(res.Metrics)-1].Stage)
		assert.Equal(t, fixedNow, res.Now)
		assert.Equal(t, in.Ingest, res.Ingest)

		out := logs.String()
		assert.Contains(t, out, "inputs loaded")
		assert.Contains(t, out, "stage complete")
		assert.Contains(t, out, "run complete")
		assert.Contains(t, out, in.Ingest.IngestBatchID.String())
	})
}

func TestPipelineRunInMemory(t *testing.T) {
	in := featurekit.Inputs{
		Customers:    testutil.RawFrame(t, nil, testutil.CustomersHeader, customerRows),
		Products:     testutil.RawFrame(t, nil, testutil.ProductsHeader, productRows),
		Transactions: testutil.RawFrame(t, nil, testutil.TransactionsHeader, transactionRows),
	}
	defer in.Release()

	var logs bytes.Buffer
	res, err := newPipeline(t, featurekit.NewConfig(), &logs).Run(context.Background(), in)
	require.NoError(t, err)
	defer res.Release()

	testutil.AssertDataFrameHasColumns(t, res.Customers, testutil.CustomersHeader)
	testutil.AssertDataFrameHasColumns(t, res.Transactions, testutil.TransactionsHeader)
	assert.Equal(t, 2, res.Final.Len())
}

func TestInputsRawRecords(t *testing.T) {
	dir := writeFixtures(t, customerRows, productRows, transactionRows)

	var logs bytes.Buffer
	in, err := newPipeline(t, featurekit.NewConfig(), &logs).Load(context.Background(), dir)
	require.NoError(t, err)
	defer in.Release()

	customers, err := in.RawCustomers()
	require.NoError(t, err)
	require.Len(t, customers, 4)
	assert.Equal(t, "C3", customers[3].CustomerID)
	assert.Nil(t, customers[3].SignupDate, "empty cell decodes to nil")
	require.NotNil(t, customers[0].Email)
	assert.Equal(t, "a@x.com", *customers[0].Email)
	for _, c := range customers {
		assert.Equal(t, in.Ingest, c.Ingest)
	}
	assert.Equal(t, dir, customers[0].Source)
	assert.Equal(t, fixedNow, customers[0].IngestedAt)

	products, err := in.RawProducts()
	require.NoError(t, err)
	require.Len(t, products, 2)
	require.NotNil(t, products[1].Price)
	assert.Equal(t, "5", *products[1].Price)

	transactions, err := in.RawTransactions()
	require.NoError(t, err)
	require.Len(t, transactions, 4)
	assert.Nil(t, transactions[1].PurchaseDate)
	assert.Nil(t, transactions[0].TotalPrice, "absent column leaves the field nil")
	assert.Equal(t, in.Ingest.IngestBatchID, transactions[0].IngestBatchID)

	_, err = featurekit.Inputs{}.RawCustomers()
	assert.Error(t, err)
}

func TestPipelineLoadByteOrderMark(t *testing.T) {
	dir := writeFixtures(t, customerRows, productRows, transactionRows)
	bomHeader := append([]string{"\ufeff" + testutil.CustomersHeader[0]}, testutil.CustomersHeader[1:]...)
	testutil.WriteCSV(t, dir, featurekit.CustomersFile, bomHeader, customerRows)

	var logs bytes.Buffer
	in, res := run(t, newPipeline(t, featurekit.NewConfig(), &logs), dir)

	testutil.AssertDataFrameHasColumns(t, in.Customers, testutil.CustomersHeader)
	assert.Equal(t, 2, res.Customers.Len())
	assert.Equal(t, 2, res.Final.Len())
}

func TestPipelineDeterministic(t *testing.T) {
	dir := writeFixtures(t, customerRows, productRows, transactionRows)

	var logs bytes.Buffer
	_, first := run(t, newPipeline(t, featurekit.NewConfig(), &logs), dir)
	_, second := run(t, newPipeline(t, featurekit.NewConfig(), &logs), dir)

	testutil.AssertDataFrameEqual(t, first.Final, second.Final)
}

func TestPipelineRowLimit(t *testing.T) {
	cfg := featurekit.NewConfig()
	cfg.RowLimit = 1

	var logs bytes.Buffer
	in, res := run(t, newPipeline(t, cfg, &logs), writeFixtures(t, customerRows, productRows, transactionRows))

	assert.Equal(t, 1, in.Customers.Len())
	assert.Equal(t, 1, in.Products.Len())
	assert.Equal(t, 1, in.Transactions.Len())
	assert.Equal(t, 1, res.Final.Len())
}

func TestPipelineSentinelGapFill(t *testing.T) {
	cfg := featurekit.NewConfig()
	cfg.GapFill = "sentinel"
	cfg.GapSentinel = 42

	var logs bytes.Buffer
	_, res := run(t, newPipeline(t, cfg, &logs), writeFixtures(t, customerRows, productRows, transactionRows))

	records, err := featurekit.Decode[featurekit.TransactionFeatures](res.TransactionFeatures)
	require.NoError(t, err)
	for _, r := range records {
		assert.Equal(t, 42.0, r.DaysSinceLastPurchase)
	}
}

func TestPipelineErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing column", func(t *testing.T) {
		dir := t.TempDir()
		testutil.WriteCSV(t, dir, featurekit.CustomersFile, []string{"customer_id", "name", "signup_date"}, [][]string{{"C1", "Alice", "2023-01-01"}})
		testutil.WriteCSV(t, dir, featurekit.ProductsFile, testutil.ProductsHeader, productRows)
		testutil.WriteCSV(t, dir, featurekit.TransactionsFile, testutil.TransactionsHeader, transactionRows)

		var logs bytes.Buffer
		p := newPipeline(t, featurekit.NewConfig(), &logs)
		in, err := p.Load(ctx, dir)
		require.NoError(t, err)
		defer in.Release()

		_, err = p.Run(ctx, in)
		require.Error(t, err)

		var schemaErr *featurekit.SchemaError
		require.True(t, errors.As(err, &schemaErr))
		assert.Equal(t, "customers", schemaErr.Table)
		assert.Equal(t, []string{"email"}, schemaErr.Missing)
		assert.True(t, strings.HasPrefix(err.Error(), "validate_customers: "))
	})

	t.Run("unconvertible quantity", func(t *testing.T) {
		rows := [][]string{{"T1", "C1", "P1", "2023-06-01", "two"}}
		var logs bytes.Buffer
		p := newPipeline(t, featurekit.NewConfig(), &logs)
		in, err := p.Load(ctx, writeFixtures(t, customerRows, productRows, rows))
		require.NoError(t, err)
		defer in.Release()

		_, err = p.Run(ctx, in)
		var convErr *featurekit.TypeConversionError
		require.True(t, errors.As(err, &convErr))
		assert.Equal(t, "quantity", convErr.Column)
		assert.Equal(t, 0, convErr.Row)
	})

	t.Run("missing file", func(t *testing.T) {
		dir := t.TempDir()
		testutil.WriteCSV(t, dir, featurekit.CustomersFile, testutil.CustomersHeader, customerRows)

		var logs bytes.Buffer
		_, err := newPipeline(t, featurekit.NewConfig(), &logs).Load(ctx, dir)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("cancelled context", func(t *testing.T) {
		var logs bytes.Buffer
		p := newPipeline(t, featurekit.NewConfig(), &logs)
		in, err := p.Load(ctx, writeFixtures(t, customerRows, productRows, transactionRows))
		require.NoError(t, err)
		defer in.Release()

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err = p.Run(cancelled, in)
		assert.ErrorIs(t, err, context.Canceled)

		_, err = p.Load(cancelled, t.TempDir())
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("nil inputs", func(t *testing.T) {
		var logs bytes.Buffer
		_, err := newPipeline(t, featurekit.NewConfig(), &logs).Run(ctx, featurekit.Inputs{})
		assert.Error(t, err)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := featurekit.NewConfig()
		cfg.GapFill = "mean"
		_, err := featurekit.New(cfg)
		assert.ErrorContains(t, err, "invalid configuration")
	})
}

func TestPipelineStore(t *testing.T) {
	ctx := context.Background()
	dir := writeFixtures(t, customerRows, productRows, transactionRows)

	t.Run("memory", func(t *testing.T) {
		var logs bytes.Buffer
		p := newPipeline(t, featurekit.NewConfig(), &logs)
		_, res := run(t, p, dir)

		sink := featurekit.NewMemorySink()
		defer sink.Close()
		require.NoError(t, p.Store(ctx, sink, res))

		stored, ok := sink.Table("final_dataset")
		require.True(t, ok)
		testutil.AssertDataFrameEqual(t, res.Final, stored)
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := featurekit.NewConfig()
		cfg.Sink.Driver = "sqlite"
		cfg.Sink.Database = filepath.Join(t.TempDir(), "features.db")
		cfg.Sink.Table = "features"
		cfg.Sink.IfExists = "fail"

		var logs bytes.Buffer
		p := newPipeline(t, cfg, &logs)
		_, res := run(t, p, dir)

		sink, err := featurekit.OpenSink(ctx, cfg.Sink)
		require.NoError(t, err)
		defer sink.Close()

		require.NoError(t, p.Store(ctx, sink, res))

		var count int
		require.NoError(t, sink.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM "features"`).Scan(&count))
		assert.Equal(t, 2, count)

		err = p.Store(ctx, sink, res)
		assert.ErrorIs(t, err, featurekit.ErrTableExists)
		assert.Contains(t, logs.String(), "stored")
	})

	t.Run("no result", func(t *testing.T) {
		var logs bytes.Buffer
		err := newPipeline(t, featurekit.NewConfig(), &logs).Store(ctx, featurekit.NewMemorySink(), nil)
		assert.Error(t, err)
	})
}

func TestPipelineExport(t *testing.T) {
	out := t.TempDir()
	cfg := featurekit.NewConfig()
	cfg.ParquetPath = filepath.Join(out, "final.parquet")
	cfg.CSVPath = filepath.Join(out, "final.csv")

	var logs bytes.Buffer
	p := newPipeline(t, cfg, &logs)
	_, res := run(t, p, writeFixtures(t, customerRows, productRows, transactionRows))
	require.NoError(t, p.Export(res))

	info, err := os.Stat(cfg.ParquetPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	data, err := os.ReadFile(cfg.CSVPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], strings.Join(res.Final.Columns()[:2], ",")))

	assert.Error(t, p.Export(nil))
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "featurekit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: input\nrow_limit: 10\ngap_fill: sentinel\nsink:\n  table: features\n  if_exists: append\n"), 0o600))

	t.Setenv("FEATUREKIT_ROW_LIMIT", "25")

	cfg, err := featurekit.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "input", cfg.DataDir)
	assert.Equal(t, 25, cfg.RowLimit)
	assert.Equal(t, "sentinel", cfg.GapFill)
	assert.Equal(t, "features", cfg.Sink.Table)
	assert.Equal(t, "append", cfg.Sink.IfExists)
	assert.True(t, cfg.MetricsCollection, "keys missing from the file keep their defaults")

	t.Setenv("FEATUREKIT_GAP_FILL", "mean")
	_, err = featurekit.LoadConfig(path)
	assert.Error(t, err)

	_, err = featurekit.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
