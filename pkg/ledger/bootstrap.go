package ledger

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Bootstrap locates the named table, creating it with Header when it does not
// exist. It runs once at startup; any failure is a *BootstrapError.
func Bootstrap(ctx context.Context, store Store, name string, logger zerolog.Logger) (Table, error) {
	if store == nil {
		return Table{}, &BootstrapError{Table: name, Op: "open", Err: errors.New("store is required")}
	}
	if name == "" {
		return Table{}, &BootstrapError{Table: name, Op: "open", Err: errors.New("table name is required")}
	}

	table, err := store.OpenTable(ctx, name)
	if err == nil {
		logger.Info().Str("table", name).Msg("Ledger table found")
		return table, nil
	}
	if !errors.Is(err, ErrTableNotFound) {
		return Table{}, &BootstrapError{Table: name, Op: "open", Err: err}
	}

	logger.Info().Str("table", name).Msg("Ledger table not found, creating")

	header := make([]string, len(Header))
	copy(header, Header)

	table, err = store.CreateTable(ctx, name, header)
	if errors.Is(err, ErrTableExists) {
		// created by another process between the lookup and the create
		table, err = store.OpenTable(ctx, name)
		if err != nil {
			return Table{}, &BootstrapError{Table: name, Op: "open", Err: err}
		}
		logger.Info().Str("table", name).Msg("Ledger table created concurrently, using it")
		return table, nil
	}
	if err != nil {
		return Table{}, &BootstrapError{Table: name, Op: "create", Err: err}
	}

	logger.Info().Str("table", name).Strs("header", header).Msg("Ledger table created")
	return table, nil
}
