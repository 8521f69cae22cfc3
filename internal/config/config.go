package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when SCREENER_CONFIG is unset.
const DefaultPath = "config/screener.yaml"

// DefaultTickers is the ingestion universe when none is configured.
var DefaultTickers = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "META", "JPM", "JNJ", "V", "PG", "XOM"}

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the screener.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Server   Server         `yaml:"server"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	Logging  Logging        `yaml:"logging"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Signals  SignalsConfig  `yaml:"signals"`
	Backtest BacktestConfig `yaml:"backtest"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// Storage selects the relational store and the bar archive location.
type Storage struct {
	Driver     string   `yaml:"driver"` // sqlite | postgres
	DataDir    string   `yaml:"data_dir"`
	SQLitePath string   `yaml:"sqlite_path"`
	DSN        string   `yaml:"dsn"`
	Postgres   Postgres `yaml:"postgres"`
	// Archive also writes ingested bars to Parquet under DataDir.
	Archive bool `yaml:"archive"`
}

// Postgres holds connection parameters used when DSN is empty.
type Postgres struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       string `yaml:"db"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// Server holds network listener configuration.
type Server struct {
	Host        string `yaml:"host"`
	GRPCPort    int    `yaml:"grpc_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// Alpaca holds credentials and endpoints for the Alpaca APIs.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// IngestConfig controls daily price ingestion.
type IngestConfig struct {
	Source          string        `yaml:"source"` // alpaca | csv
	CSVPath         string        `yaml:"csv_path"`
	Tickers         []string      `yaml:"tickers"`
	StartDate       string        `yaml:"start_date"`
	EndDate         string        `yaml:"end_date"`
	BatchSize       int           `yaml:"batch_size"`
	MaxWorkers      int           `yaml:"max_workers"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryBaseDelay  time.Duration `yaml:"retry_base_delay"`
}

// SignalsConfig controls the signal batch.
type SignalsConfig struct {
	Workers int `yaml:"workers"`
}

// BacktestConfig selects the strategy run by the backtest job.
type BacktestConfig struct {
	Strategy  string `yaml:"strategy"`
	TopN      int    `yaml:"top_n"`
	ReportDir string `yaml:"report_dir"`
}

// MetricsConfig controls Prometheus export from batch commands.
type MetricsConfig struct {
	// TextfilePath, when set, receives the registry in text format after
	// each command, for the node-exporter textfile collector.
	TextfilePath string `yaml:"textfile_path"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path returns the config file path from SCREENER_CONFIG or DefaultPath.
func Path() string {
	if p := os.Getenv("SCREENER_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads the YAML configuration file at the given path, then applies
// defaults, a .env file from the working directory if present, and
// environment variable overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	// .env never overrides variables already set in the environment.
	_ = godotenv.Load()

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	setDefault(&cfg.Storage.Driver, "sqlite")
	setDefault(&cfg.Storage.DataDir, "data")
	setDefault(&cfg.Storage.Postgres.Host, "localhost")
	setDefault(&cfg.Storage.Postgres.DB, "stock_screener")
	setDefault(&cfg.Storage.Postgres.User, "stocks_user")
	setDefault(&cfg.Storage.Postgres.SSLMode, "disable")
	if cfg.Storage.Postgres.Port == 0 {
		cfg.Storage.Postgres.Port = 5432
	}

	setDefault(&cfg.Server.Host, "127.0.0.1")
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = 9090
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9091
	}

	setDefault(&cfg.Alpaca.BaseURL, "https://api.alpaca.markets")
	setDefault(&cfg.Alpaca.Feed, "sip")

	setDefault(&cfg.Logging.Level, "info")
	setDefault(&cfg.Logging.Format, "json")

	setDefault(&cfg.Ingest.Source, "alpaca")
	setDefault(&cfg.Ingest.StartDate, "2015-01-01")
	if len(cfg.Ingest.Tickers) == 0 {
		cfg.Ingest.Tickers = append([]string(nil), DefaultTickers...)
	}
	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 100
	}
	if cfg.Ingest.MaxWorkers == 0 {
		cfg.Ingest.MaxWorkers = 4
	}
	if cfg.Ingest.RateLimitPerMin == 0 {
		cfg.Ingest.RateLimitPerMin = 200
	}
	if cfg.Ingest.MaxRetries == 0 {
		cfg.Ingest.MaxRetries = 3
	}
	if cfg.Ingest.RetryBaseDelay == 0 {
		cfg.Ingest.RetryBaseDelay = time.Second
	}

	setDefault(&cfg.Backtest.Strategy, "top10_momentum_daily")
	if cfg.Backtest.TopN == 0 {
		cfg.Backtest.TopN = 10
	}
	setDefault(&cfg.Backtest.ReportDir, "reports")
}

func setDefault(field *string, v string) {
	if *field == "" {
		*field = v
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}

	if v := os.Getenv("PG_HOST"); v != "" {
		cfg.Storage.Postgres.Host = v
	}
	if v := os.Getenv("PG_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Storage.Postgres.Port = port
		}
	}
	if v := os.Getenv("PG_DB"); v != "" {
		cfg.Storage.Postgres.DB = v
	}
	if v := os.Getenv("PG_USER"); v != "" {
		cfg.Storage.Postgres.User = v
	}
	if v := os.Getenv("PG_PASSWORD"); v != "" {
		cfg.Storage.Postgres.Password = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("SCREENER_TICKERS"); v != "" {
		var tickers []string
		for _, t := range strings.Split(v, ",") {
			if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
				tickers = append(tickers, t)
			}
		}
		if len(tickers) > 0 {
			cfg.Ingest.Tickers = tickers
		}
	}
	if v := os.Getenv("SIGNALS_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Signals.Workers = n
		}
	}

	// Standard Alpaca env vars (highest priority, canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = filepath.Join(cfg.Storage.DataDir, "screener.db")
	}
}

// ---------------------------------------------------------------------------
// Derived values
// ---------------------------------------------------------------------------

// Validate rejects configurations the jobs cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case "sqlite":
	case "postgres":
		if c.Storage.DSN == "" && c.Storage.Postgres.Password == "" {
			errs = append(errs, errors.New("storage: PG_PASSWORD is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage: unknown driver %q", c.Storage.Driver))
	}
	switch c.Ingest.Source {
	case "alpaca", "csv":
	default:
		errs = append(errs, fmt.Errorf("ingest: unknown source %q", c.Ingest.Source))
	}
	if c.Ingest.BatchSize < 0 || c.Ingest.MaxWorkers < 0 || c.Ingest.RateLimitPerMin < 0 {
		errs = append(errs, errors.New("ingest: batch_size, max_workers and rate_limit_per_min must not be negative"))
	}
	if c.Signals.Workers < 0 {
		errs = append(errs, errors.New("signals: workers must not be negative"))
	}
	if c.Backtest.TopN < 0 {
		errs = append(errs, errors.New("backtest: top_n must not be negative"))
	}
	return errors.Join(errs...)
}

// PostgresDSN returns Storage.DSN, or a URL built from Storage.Postgres.
func (c *Config) PostgresDSN() string {
	if c.Storage.DSN != "" {
		return c.Storage.DSN
	}
	pg := c.Storage.Postgres
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(pg.User, pg.Password),
		Host:     net.JoinHostPort(pg.Host, strconv.Itoa(pg.Port)),
		Path:     "/" + pg.DB,
		RawQuery: "sslmode=" + url.QueryEscape(pg.SSLMode),
	}
	return u.String()
}

// GRPCAddr returns the gRPC listen address.
func (c *Config) GRPCAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.GRPCPort))
}

// MetricsAddr returns the Prometheus listen address.
func (c *Config) MetricsAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.MetricsPort))
}
