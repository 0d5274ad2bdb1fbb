package ledger

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata"
)

const (
	// TimestampLayout is the cell format of the time column.
	TimestampLayout = "2006-01-02 15:04:05"

	// DefaultTimezone is the zone timestamps are rendered in unless configured otherwise.
	DefaultTimezone = "Asia/Taipei"
)

// Header is the fixed first row of every ledger table.
var Header = []string{"time", "user", "content"}

// Record is one durable feedback row.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
}

// Row renders the record as cells in header order.
func (r Record) Row(loc *time.Location) []string {
	if loc == nil {
		loc = time.UTC
	}
	return []string{
		r.Timestamp.In(loc).Format(TimestampLayout),
		r.Username,
		r.Content,
	}
}

// ParseRow converts stored cells back into a Record.
func ParseRow(cells []string, loc *time.Location) (Record, error) {
	if len(cells) < len(Header) {
		return Record{}, fmt.Errorf("row has %d cells, want %d", len(cells), len(Header))
	}
	if loc == nil {
		loc = time.UTC
	}

	ts, err := time.ParseInLocation(TimestampLayout, cells[0], loc)
	if err != nil {
		return Record{}, fmt.Errorf("invalid timestamp %q: %w", cells[0], err)
	}

	return Record{
		Timestamp: ts,
		Username:  cells[1],
		Content:   cells[2],
	}, nil
}

// Table identifies a named table inside a store.
type Table struct {
	Name   string   `json:"name"`
	Header []string `json:"header"`
}

// Store is the write side of a tabular backing store.
type Store interface {
	// OpenTable returns ErrTableNotFound when no table with that name exists.
	OpenTable(ctx context.Context, name string) (Table, error)
	CreateTable(ctx context.Context, name string, header []string) (Table, error)
	AppendRow(ctx context.Context, table Table, values []string) error
	Close() error
}

// RowReader is the read side of a backing store. Rows exclude the header and
// are returned in append order.
type RowReader interface {
	ReadRows(ctx context.Context, table Table) ([][]string, error)
}

// LoadLocation resolves a zone name, falling back to DefaultTimezone when empty.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}
