package pipeline

import (
	"fmt"
	"path/filepath"
	"time"

	"screener/internal/config"
	"screener/internal/gather"
	"screener/internal/gather/us"
	"screener/internal/store"
)

// StoreOptions maps the storage config onto store.Options.
func StoreOptions(cfg *config.Config, migrate bool) store.Options {
	opts := store.Options{
		Driver:     cfg.Storage.Driver,
		SQLitePath: cfg.Storage.SQLitePath,
		Migrate:    migrate,
	}
	if cfg.Storage.Driver == store.DriverPostgres {
		opts.DSN = cfg.PostgresDSN()
	}
	return opts
}

// Sinks returns the bar stores ingestion writes to: the relational store,
// then the Parquet archive when enabled.
func Sinks(cfg *config.Config, s store.BarStore) gather.Sinks {
	sinks := gather.Sinks{s}
	if cfg.Storage.Archive {
		sinks = append(sinks, store.NewParquetStore(cfg.Storage.DataDir))
	}
	return sinks
}

// NewIngester builds the gatherer selected by cfg.Ingest.Source.
func NewIngester(cfg *config.Config, s store.BarStore) (gather.Gatherer, error) {
	sinks := Sinks(cfg, s)
	in := cfg.Ingest

	switch in.Source {
	case "csv":
		if in.CSVPath == "" {
			return nil, fmt.Errorf("ingest: csv source needs csv_path")
		}
		return gather.NewCSVGatherer(in.CSVPath, sinks, in.BatchSize), nil

	case "alpaca":
		dr, err := gather.ParseDateRange(in.StartDate, in.EndDate)
		if err != nil {
			return nil, fmt.Errorf("ingest: %w", err)
		}
		md, tr := us.NewAlpacaClients(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, cfg.Alpaca.BaseURL)
		return us.NewDailyPriceGatherer(md, tr, sinks, us.DailyPriceConfig{
			Tickers:         in.Tickers,
			Start:           dr.Start,
			End:             dr.End,
			Feed:            cfg.Alpaca.Feed,
			StateDir:        filepath.Join(cfg.Storage.DataDir, "us", "daily"),
			BatchSize:       in.BatchSize,
			MaxWorkers:      in.MaxWorkers,
			RateLimitPerMin: in.RateLimitPerMin,
			MaxRetries:      in.MaxRetries,
			RetryBaseDelay:  max(in.RetryBaseDelay, 100*time.Millisecond),
		}), nil
	}
	return nil, fmt.Errorf("ingest: unknown source %q", in.Source)
}
