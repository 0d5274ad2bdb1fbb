package daemon

import (
	"context"
	"fmt"

	"github.com/harun/feedbackbot/internal/config"
	"github.com/harun/feedbackbot/pkg/ledger"
	"github.com/harun/feedbackbot/pkg/ledger/postgres"
	"github.com/harun/feedbackbot/pkg/ledger/sqlite"
	"github.com/rs/zerolog"
)

// LedgerStore is a ledger backend that can be read back for reports.
type LedgerStore interface {
	ledger.Store
	ledger.RowReader
}

// OpenLedgerStore opens the backend selected by cfg.Ledger.Driver.
func OpenLedgerStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (LedgerStore, error) {
	switch cfg.Ledger.Driver {
	case config.DriverSQLite, "":
		store, err := sqlite.Open(cfg.Ledger.DSN, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite ledger: %w", err)
		}
		return store, nil
	case config.DriverPostgres:
		store, err := postgres.Open(ctx, cfg.Ledger.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres ledger: %w", err)
		}
		return store, nil
	case config.DriverMemory:
		return ledger.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", cfg.Ledger.Driver)
	}
}

// Ledger bundles an opened store with its bootstrapped table.
type Ledger struct {
	Store  LedgerStore
	Table  ledger.Table
	Writer *ledger.Writer
	Reader *ledger.Reader
}

// OpenLedger opens the configured store and bootstraps the feedback table.
// Any failure is fatal to startup.
func OpenLedger(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Ledger, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	store, err := OpenLedgerStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	table, err := ledger.Bootstrap(ctx, store, cfg.Ledger.Name, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Ledger{
		Store: store,
		Table: table,
		Writer: ledger.NewWriter(store, table, ledger.WriterOptions{
			Location: loc,
			Timeout:  cfg.WriteTimeout(),
			Logger:   logger,
		}),
		Reader: ledger.NewReader(store, table, loc, logger),
	}, nil
}

// Close releases the backing store.
func (l *Ledger) Close() error {
	if l == nil || l.Store == nil {
		return nil
	}
	return l.Store.Close()
}
