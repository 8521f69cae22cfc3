package store

import (
	"context"
	"fmt"
)

// Supported relational drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects and locates the relational store.
type Options struct {
	Driver     string
	SQLitePath string
	DSN        string
	// Migrate applies the schema after connecting.
	Migrate bool
}

// Open connects to the store selected by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	var (
		s   Store
		err error
	)
	switch opts.Driver {
	case DriverSQLite, "":
		s, err = NewSQLiteStore(opts.SQLitePath)
	case DriverPostgres:
		s, err = NewPostgresStore(ctx, opts.DSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}

	if opts.Migrate {
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}
