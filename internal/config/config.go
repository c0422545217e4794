// Package config provides configuration management for featurekit pipeline runs
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the configuration of one pipeline run
type Config struct {
	// Input Configuration
	DataDir  string `json:"data_dir" yaml:"data_dir"`   // Directory holding customers.csv, products.csv and transactions.csv
	RowLimit int    `json:"row_limit" yaml:"row_limit"` // Read only the first N rows of each file (0 = all)

	// Feature Configuration
	RecencySentinel int64   `json:"recency_sentinel" yaml:"recency_sentinel"` // recency_days of customers without purchases
	GapFill         string  `json:"gap_fill" yaml:"gap_fill"`                 // "median" or "sentinel"
	GapSentinel     float64 `json:"gap_sentinel" yaml:"gap_sentinel"`         // First purchase gap under the sentinel policy

	// Output Configuration
	Sink        SinkConfig `json:"sink" yaml:"sink"`
	ParquetPath string     `json:"parquet_path" yaml:"parquet_path"` // Also write the merged table as Parquet when set
	CSVPath     string     `json:"csv_path" yaml:"csv_path"`         // Also write the merged table as CSV when set

	// Debugging Configuration
	VerboseLogging    bool `json:"verbose_logging" yaml:"verbose_logging"`       // Enable debug logging
	MetricsCollection bool `json:"metrics_collection" yaml:"metrics_collection"` // Enable stage metrics collection
}

// SinkConfig describes the relational store the merged table is written to
type SinkConfig struct {
	Driver   string `json:"driver" yaml:"driver"`       // "sqlite" or "postgres"; empty disables the SQL sink
	DSN      string `json:"dsn" yaml:"dsn"`             // Full data source name; overrides the connection fields below
	Table    string `json:"table" yaml:"table"`         // Destination table name
	IfExists string `json:"if_exists" yaml:"if_exists"` // "replace", "append" or "fail"

	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	Database string `json:"database" yaml:"database"`
	SSLMode  string `json:"ssl_mode" yaml:"ssl_mode"`
}

// Default configuration values
const (
	DefaultDataDir         = "data"
	DefaultRecencySentinel = 999
	DefaultGapFill         = "median"
	DefaultGapSentinel     = 999
	DefaultTable           = "final_dataset"
	DefaultIfExists        = "replace"
	DefaultSQLitePath      = "featurekit.db"
	DefaultPostgresPort    = 5432
	DefaultSSLMode         = "disable"
)

// NewConfig creates a new configuration with default values
func NewConfig() Config {
	return Config{
		DataDir:         DefaultDataDir,
		RowLimit:        0, // All rows
		RecencySentinel: DefaultRecencySentinel,
		GapFill:         DefaultGapFill,
		GapSentinel:     DefaultGapSentinel,
		Sink: SinkConfig{
			Table:    DefaultTable,
			IfExists: DefaultIfExists,
		},
		VerboseLogging:    false,
		MetricsCollection: true,
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("DataDir must not be empty")
	}

	if c.RowLimit < 0 {
		return fmt.Errorf("RowLimit must be non-negative, got %d", c.RowLimit)
	}

	switch strings.ToLower(c.GapFill) {
	case "median", "sentinel":
	default:
		return fmt.Errorf("GapFill must be median or sentinel, got %q", c.GapFill)
	}

	return c.Sink.Validate()
}

// Validate validates the sink section
func (s *SinkConfig) Validate() error {
	switch s.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("Sink.Driver must be sqlite or postgres, got %q", s.Driver)
	}

	switch strings.ToLower(s.IfExists) {
	case "replace", "append", "fail":
	default:
		return fmt.Errorf("Sink.IfExists must be replace, append or fail, got %q", s.IfExists)
	}

	if s.Driver != "" && s.Table == "" {
		return fmt.Errorf("Sink.Table must not be empty")
	}

	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("Sink.Port must be between 0 and 65535, got %d", s.Port)
	}

	return nil
}

// WithDefaults returns a new configuration with default values filled in for zero values
func (c Config) WithDefaults() Config {
	defaults := NewConfig()

	if c.DataDir == "" {
		c.DataDir = defaults.DataDir
	}
	if c.RecencySentinel == 0 {
		c.RecencySentinel = defaults.RecencySentinel
	}
	if c.GapFill == "" {
		c.GapFill = defaults.GapFill
	}
	if c.GapSentinel == 0 {
		c.GapSentinel = defaults.GapSentinel
	}
	if c.Sink.Table == "" {
		c.Sink.Table = defaults.Sink.Table
	}
	if c.Sink.IfExists == "" {
		c.Sink.IfExists = defaults.Sink.IfExists
	}

	// Note: Boolean fields are intentionally not set to defaults here
	// This allows distinguishing between explicitly set false and unset values
	// Use NewConfig() directly if you need boolean defaults

	return c
}

// DataSourceName returns the DSN handed to database/sql for the configured driver
func (s SinkConfig) DataSourceName() string {
	if s.DSN != "" {
		return s.DSN
	}

	switch s.Driver {
	case "sqlite":
		if s.Database != "" {
			return s.Database
		}
		return DefaultSQLitePath
	case "postgres":
		port := s.Port
		if port == 0 {
			port = DefaultPostgresPort
		}
		host := s.Host
		if host == "" {
			host = "localhost"
		}
		sslMode := s.SSLMode
		if sslMode == "" {
			sslMode = DefaultSSLMode
		}

		u := url.URL{
			Scheme:   "postgres",
			Host:     fmt.Sprintf("%s:%d", host, port),
			Path:     "/" + s.Database,
			RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
		}
		if s.User != "" {
			if s.Password != "" {
				u.User = url.UserPassword(s.User, s.Password)
			} else {
				u.User = url.User(s.User)
			}
		}
		return u.String()
	default:
		return ""
	}
}

// LoadFromJSON loads configuration from JSON data on top of the defaults
func LoadFromJSON(data []byte) (Config, error) {
	config := NewConfig()
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing JSON configuration: %w", err)
	}
	return config.WithDefaults(), nil
}

// LoadFromFile loads configuration from a file (supports JSON and YAML).
// Keys absent from the file keep their default values.
func LoadFromFile(filename string) (Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file %s: %w", filename, err)
	}

	config := NewConfig()
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".json":
		err = json.Unmarshal(data, &config)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		return Config{}, fmt.Errorf("unsupported config file format: %s", ext)
	}

	if err != nil {
		return Config{}, fmt.Errorf("parsing config file %s: %w", filename, err)
	}

	return config.WithDefaults(), nil
}

// LoadDotEnv loads variables from the given .env files, or ./.env when none
// are given, without overriding variables already set. Missing files are ignored.
func LoadDotEnv(filenames ...string) error {
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}
	var existing []string
	for _, name := range filenames {
		if _, err := os.Stat(name); err == nil {
			existing = append(existing, name)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("loading env files: %w", err)
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables on top of base.
// FEATUREKIT_* variables configure the run; USERNAME, PASSWORD, HOST, PORT and
// DB_NAME configure the PostgreSQL connection.
func LoadFromEnv(base Config) Config {
	config := base

	if val := os.Getenv("FEATUREKIT_DATA_DIR"); val != "" {
		config.DataDir = val
	}

	if val := os.Getenv("FEATUREKIT_ROW_LIMIT"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			config.RowLimit = parsed
		}
	}

	if val := os.Getenv("FEATUREKIT_RECENCY_SENTINEL"); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			config.RecencySentinel = parsed
		}
	}

	if val := os.Getenv("FEATUREKIT_GAP_FILL"); val != "" {
		config.GapFill = val
	}

	if val := os.Getenv("FEATUREKIT_GAP_SENTINEL"); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			config.GapSentinel = parsed
		}
	}

	if val := os.Getenv("FEATUREKIT_SINK_DRIVER"); val != "" {
		config.Sink.Driver = val
	}

	if val := os.Getenv("FEATUREKIT_SINK_DSN"); val != "" {
		config.Sink.DSN = val
	}

	if val := os.Getenv("FEATUREKIT_SINK_TABLE"); val != "" {
		config.Sink.Table = val
	}

	if val := os.Getenv("FEATUREKIT_SINK_IF_EXISTS"); val != "" {
		config.Sink.IfExists = val
	}

	if val := os.Getenv("FEATUREKIT_PARQUET_PATH"); val != "" {
		config.ParquetPath = val
	}

	if val := os.Getenv("FEATUREKIT_CSV_PATH"); val != "" {
		config.CSVPath = val
	}

	if val := os.Getenv("FEATUREKIT_VERBOSE_LOGGING"); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			config.VerboseLogging = parsed
		}
	}

	if val := os.Getenv("FEATUREKIT_METRICS_COLLECTION"); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			config.MetricsCollection = parsed
		}
	}

	if val := os.Getenv("USERNAME"); val != "" {
		config.Sink.User = val
	}

	if val := os.Getenv("PASSWORD"); val != "" {
		config.Sink.Password = val
	}

	if val := os.Getenv("HOST"); val != "" {
		config.Sink.Host = val
	}

	if val := os.Getenv("PORT"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			config.Sink.Port = parsed
		}
	}

	if val := os.Getenv("DB_NAME"); val != "" {
		config.Sink.Database = val
	}

	return config
}
