package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Reader is the read path used by scheduled summaries. It is independent of
// Writer and may observe rows appended by other processes.
type Reader struct {
	rows   RowReader
	table  Table
	loc    *time.Location
	logger zerolog.Logger
}

// NewReader creates a reader over a table. Skipped rows are reported to
// logger.
func NewReader(rows RowReader, table Table, loc *time.Location, logger zerolog.Logger) *Reader {
	if loc == nil {
		loc = time.UTC
	}
	return &Reader{rows: rows, table: table, loc: loc, logger: logger}
}

// All returns every parseable record in append order. Rows that cannot be
// parsed (hand-edited cells, foreign rows) are skipped and logged.
func (r *Reader) All(ctx context.Context) ([]Record, error) {
	rows, err := r.rows.ReadRows(ctx, r.table)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger table %q: %w", r.table.Name, err)
	}

	records := make([]Record, 0, len(rows))
	for i, cells := range rows {
		rec, err := ParseRow(cells, r.loc)
		if err != nil {
			r.logger.Warn().Err(err).Str("table", r.table.Name).Int("row", i+2).Msg("Skipping unreadable ledger row")
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

// Between returns records with from <= timestamp < to.
func (r *Reader) Between(ctx context.Context, from, to time.Time) ([]Record, error) {
	all, err := r.All(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]Record, 0, len(all))
	for _, rec := range all {
		if rec.Timestamp.Before(from) || !rec.Timestamp.Before(to) {
			continue
		}
		filtered = append(filtered, rec)
	}
	return filtered, nil
}
