// Package postgres stores ledger tables in PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harun/feedbackbot/pkg/ledger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements ledger.Store and ledger.RowReader.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects with the given DSN and prepares the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("postgres ledger dsn is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initLedgerSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func initLedgerSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ledger_tables (
			name TEXT PRIMARY KEY,
			header TEXT[] NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS ledger_rows (
			id BIGSERIAL PRIMARY KEY,
			table_name TEXT NOT NULL REFERENCES ledger_tables(name),
			cells TEXT[] NOT NULL,
			appended_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_rows_table_id ON ledger_rows (table_name, id);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init ledger schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *Store) OpenTable(ctx context.Context, name string) (ledger.Table, error) {
	var header []string
	err := s.pool.QueryRow(ctx, `SELECT header FROM ledger_tables WHERE name = $1`, name).Scan(&header)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Table{}, ledger.ErrTableNotFound
	}
	if err != nil {
		return ledger.Table{}, fmt.Errorf("lookup ledger table: %w", err)
	}
	return ledger.Table{Name: name, Header: header}, nil
}

func (s *Store) CreateTable(ctx context.Context, name string, header []string) (ledger.Table, error) {
	if header == nil {
		header = []string{}
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO ledger_tables (name, header) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
		name, header,
	)
	if err != nil {
		return ledger.Table{}, fmt.Errorf("create ledger table: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.Table{}, ledger.ErrTableExists
	}
	return ledger.Table{Name: name, Header: append([]string(nil), header...)}, nil
}

func (s *Store) AppendRow(ctx context.Context, table ledger.Table, values []string) error {
	if values == nil {
		values = []string{}
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO ledger_rows (table_name, cells)
		 SELECT name, $2::text[] FROM ledger_tables WHERE name = $1`,
		table.Name, values,
	)
	if err != nil {
		return fmt.Errorf("append ledger row: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrTableNotFound
	}
	return nil
}

func (s *Store) ReadRows(ctx context.Context, table ledger.Table) ([][]string, error) {
	if _, err := s.OpenTable(ctx, table.Name); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `SELECT cells FROM ledger_rows WHERE table_name = $1 ORDER BY id ASC`, table.Name)
	if err != nil {
		return nil, fmt.Errorf("query ledger rows: %w", err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var cells []string
		if err := rows.Scan(&cells); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		out = append(out, cells)
	}
	return out, rows.Err()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
