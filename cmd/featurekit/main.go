package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/paveg/featurekit"
	"github.com/paveg/featurekit/internal/monitoring"
	"github.com/paveg/featurekit/internal/version"
	"github.com/spf13/cobra"
)

func main() {
	if err := execute(); err != nil {
		os.Exit(1)
	}
}

func execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCmd().ExecuteContext(ctx)
}

type runFlags struct {
	config   string
	dataDir  string
	limit    int
	gapFill  string
	driver   string
	dsn      string
	table    string
	ifExists string
	parquet  string
	csv      string
	verbose  bool
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "featurekit",
		Short: "Build a feature table from customer, product and transaction CSVs",
		Long: `featurekit reads customers.csv, products.csv and transactions.csv from a
data directory, validates and cleans them, derives customer, product and
transaction features and writes one merged row per transaction.

Configuration is read from defaults, an optional JSON or YAML file, the
environment (FEATUREKIT_*, .env) and finally the command line flags.`,
		SilenceUsage: true,
	}

	root.AddCommand(newRunCmd(), newVersionCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := featurekit.LoadConfig(flags.config)
			if err != nil {
				return err
			}
			cfg = flags.apply(cmd, cfg)
			return runPipeline(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.config, "config", "c", "", "JSON or YAML configuration file")
	f.StringVarP(&flags.dataDir, "data-dir", "d", "", "Directory holding the three input CSV files")
	f.IntVarP(&flags.limit, "limit", "n", 0, "Read only the first N rows of each file (0 = all)")
	f.StringVar(&flags.gapFill, "gap-fill", "", "First purchase gap policy: median or sentinel")
	f.StringVar(&flags.driver, "sink", "", "SQL sink driver: sqlite or postgres")
	f.StringVar(&flags.dsn, "dsn", "", "SQL sink data source name")
	f.StringVar(&flags.table, "table", "", "Destination table name")
	f.StringVar(&flags.ifExists, "if-exists", "", "Existing table policy: replace, append or fail")
	f.StringVar(&flags.parquet, "parquet", "", "Also write the merged table to this Parquet file")
	f.StringVar(&flags.csv, "csv", "", "Also write the merged table to this CSV file")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")
	return cmd
}

// apply overlays the flags the user actually set
func (f runFlags) apply(cmd *cobra.Command, cfg featurekit.Config) featurekit.Config {
	changed := cmd.Flags().Changed

	if changed("data-dir") {
		cfg.DataDir = f.dataDir
	}
	if changed("limit") {
		cfg.RowLimit = f.limit
	}
	if changed("gap-fill") {
		cfg.GapFill = f.gapFill
	}
	if changed("sink") {
		cfg.Sink.Driver = f.driver
	}
	if changed("dsn") {
		cfg.Sink.DSN = f.dsn
	}
	if changed("table") {
		cfg.Sink.Table = f.table
	}
	if changed("if-exists") {
		cfg.Sink.IfExists = f.ifExists
	}
	if changed("parquet") {
		cfg.ParquetPath = f.parquet
	}
	if changed("csv") {
		cfg.CSVPath = f.csv
	}
	if changed("verbose") {
		cfg.VerboseLogging = f.verbose
	}
	return cfg
}

func runPipeline(ctx context.Context, stdout, stderr io.Writer, cfg featurekit.Config) error {
	level := slog.LevelInfo
	if cfg.VerboseLogging {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	p, err := featurekit.New(cfg, featurekit.WithLogger(logger))
	if err != nil {
		return err
	}

	in, err := p.Load(ctx, cfg.DataDir)
	if err != nil {
		return err
	}
	defer in.Release()

	res, err := p.Run(ctx, in)
	if err != nil {
		return err
	}
	defer res.Release()

	if err := p.Export(res); err != nil {
		return err
	}

	if cfg.Sink.Driver != "" {
		sink, err := featurekit.OpenSink(ctx, cfg.Sink)
		if err != nil {
			return err
		}
		defer sink.Close()

		if err := p.Store(ctx, sink, res); err != nil {
			return err
		}
	}

	for _, report := range res.Reports {
		fmt.Fprintln(stdout, report.String())
	}
	fmt.Fprintf(stdout, "final: %d rows, %d columns\n", res.Final.Len(), res.Final.Width())
	if len(res.Metrics) > 0 {
		fmt.Fprintln(stdout)
		fmt.Fprint(stdout, monitoring.Table(res.Metrics))
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), version.Info().String())
		},
	}
}
