package main

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/paveg/featurekit"
	"github.com/paveg/featurekit/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func fixtureDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteCSV(t, dir, featurekit.CustomersFile, testutil.CustomersHeader, [][]string{
		{"C1", "Alice", "a@x.com", "2023-01-01"},
		{"C2", "Bob", "b@x.com", "2023-03-01"},
	})
	testutil.WriteCSV(t, dir, featurekit.ProductsFile, testutil.ProductsHeader, [][]string{
		{"P1", "Mug", "kitchen", "10.0"},
	})
	testutil.WriteCSV(t, dir, featurekit.TransactionsFile, testutil.TransactionsHeader, [][]string{
		{"T1", "C1", "P1", "2023-06-01", "2"},
		{"T2", "C2", "P1", "2023-06-02", "1"},
		{"T3", "C1", "P1", "2023-06-11", "1"},
	})
	return dir
}

func executeArgs(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()
	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"run", "version"}, names)

	run, _, err := root.Find([]string{"run"})
	require.NoError(t, err)
	for _, flag := range []string{"config", "data-dir", "limit", "gap-fill", "sink", "dsn", "table", "if-exists", "parquet", "csv", "verbose"} {
		assert.NotNil(t, run.Flags().Lookup(flag), flag)
	}
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := executeArgs(t, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "featurekit ")
}

func TestRunCommand(t *testing.T) {
	dir := fixtureDir(t)
	out := t.TempDir()
	dbPath := filepath.Join(out, "features.db")
	parquetPath := filepath.Join(out, "final.parquet")

	stdout, stderr, err := executeArgs(t, "run",
		"--data-dir", dir,
		"--sink", "sqlite",
		"--dsn", dbPath,
		"--table", "features",
		"--parquet", parquetPath,
		"--verbose")
	require.NoError(t, err)

	assert.Contains(t, stdout, "customers: 2 in, 0 missing, 0 duplicates, 2 out")
	assert.Contains(t, stdout, "final: 3 rows")
	assert.Contains(t, stdout, "STAGE")
	assert.Contains(t, stdout, "merge")
	assert.Contains(t, stderr, "level=DEBUG")
	assert.Contains(t, stderr, "stored")

	_, err = os.Stat(parquetPath)
	require.NoError(t, err)

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM "features"`).Scan(&count))
	assert.Equal(t, 3, count)

	t.Run("append", func(t *testing.T) {
		_, _, err := executeArgs(t, "run", "--data-dir", dir, "--sink", "sqlite", "--dsn", dbPath, "--table", "features", "--if-exists", "append")
		require.NoError(t, err)
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM "features"`).Scan(&count))
		assert.Equal(t, 6, count)
	})

	t.Run("fail", func(t *testing.T) {
		_, _, err := executeArgs(t, "run", "--data-dir", dir, "--sink", "sqlite", "--dsn", dbPath, "--table", "features", "--if-exists", "fail")
		assert.ErrorIs(t, err, featurekit.ErrTableExists)
	})
}

func TestRunCommandLimit(t *testing.T) {
	stdout, _, err := executeArgs(t, "run", "--data-dir", fixtureDir(t), "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "transactions: 1 in, 0 missing, 0 duplicates, 1 out")
	assert.Contains(t, stdout, "final: 1 rows")
}

func TestRunCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing data dir", []string{"run", "--data-dir", filepath.Join(t.TempDir(), "nope")}},
		{"invalid gap fill", []string{"run", "--data-dir", fixtureDir(t), "--gap-fill", "mean"}},
		{"invalid policy", []string{"run", "--data-dir", fixtureDir(t), "--if-exists", "merge"}},
		{"missing config file", []string{"run", "--config", filepath.Join(t.TempDir(), "featurekit.yaml")}},
		{"unexpected argument", []string{"run", "extra"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := executeArgs(t, tt.args...)
			assert.Error(t, err)
		})
	}
}
