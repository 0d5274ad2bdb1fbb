// Package sqlite stores ledger tables in a single SQLite database file.
// Each table is a row in ledger_tables; its data rows live in ledger_rows
// ordered by an autoincrement id.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/harun/feedbackbot/pkg/ledger"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Store implements ledger.Store and ledger.RowReader on SQLite.
type Store struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// Open opens (or creates) the database at path and prepares the schema.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite ledger path is required")
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single writer keeps append order equal to call order.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		db:     db,
		path:   path,
		logger: logger.With().Str("component", "ledger.sqlite").Logger(),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Info().Str("path", path).Msg("SQLite ledger opened")
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS ledger_tables (
			name TEXT PRIMARY KEY,
			header TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS ledger_rows (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			table_name TEXT NOT NULL REFERENCES ledger_tables(name),
			cells TEXT NOT NULL,
			appended_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_ledger_rows_table ON ledger_rows(table_name, id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) OpenTable(ctx context.Context, name string) (ledger.Table, error) {
	var header string
	err := s.db.QueryRowContext(ctx, "SELECT header FROM ledger_tables WHERE name = ?", name).Scan(&header)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Table{}, ledger.ErrTableNotFound
	}
	if err != nil {
		return ledger.Table{}, fmt.Errorf("failed to look up table: %w", err)
	}

	cells, err := decodeCells(header)
	if err != nil {
		return ledger.Table{}, fmt.Errorf("corrupt header for table %q: %w", name, err)
	}
	return ledger.Table{Name: name, Header: cells}, nil
}

func (s *Store) CreateTable(ctx context.Context, name string, header []string) (ledger.Table, error) {
	encoded, err := encodeCells(header)
	if err != nil {
		return ledger.Table{}, err
	}

	res, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO ledger_tables (name, header) VALUES (?, ?)", name, encoded)
	if err != nil {
		return ledger.Table{}, fmt.Errorf("failed to create table: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ledger.Table{}, ledger.ErrTableExists
	}

	return ledger.Table{Name: name, Header: append([]string(nil), header...)}, nil
}

func (s *Store) AppendRow(ctx context.Context, table ledger.Table, values []string) error {
	encoded, err := encodeCells(values)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT 1 FROM ledger_tables WHERE name = ?", table.Name).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.ErrTableNotFound
		}
		return fmt.Errorf("failed to look up table: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "INSERT INTO ledger_rows (table_name, cells) VALUES (?, ?)", table.Name, encoded); err != nil {
		return fmt.Errorf("failed to insert row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) ReadRows(ctx context.Context, table ledger.Table) ([][]string, error) {
	if _, err := s.OpenTable(ctx, table.Name); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT cells FROM ledger_rows WHERE table_name = ? ORDER BY id ASC", table.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		cells, err := decodeCells(raw)
		if err != nil {
			s.logger.Warn().Err(err).Str("table", table.Name).Msg("Skipping undecodable row")
			continue
		}
		out = append(out, cells)
	}
	return out, rows.Err()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func encodeCells(cells []string) (string, error) {
	if cells == nil {
		cells = []string{}
	}
	b, err := json.Marshal(cells)
	if err != nil {
		return "", fmt.Errorf("failed to encode cells: %w", err)
	}
	return string(b), nil
}

func decodeCells(raw string) ([]string, error) {
	var cells []string
	if err := json.Unmarshal([]byte(raw), &cells); err != nil {
		return nil, err
	}
	return cells, nil
}
