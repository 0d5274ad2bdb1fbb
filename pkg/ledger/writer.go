package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/feedbackbot/internal/observability"
	"github.com/harun/feedbackbot/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultWriteTimeout bounds a single append against a network store.
const DefaultWriteTimeout = 15 * time.Second

// WriterOptions configures a Writer.
type WriterOptions struct {
	Location *time.Location
	Timeout  time.Duration
	Logger   zerolog.Logger
}

// Writer owns the append path to one ledger table. It adds no locking of its
// own: the store serialises concurrent appends.
type Writer struct {
	store   Store
	table   Table
	loc     *time.Location
	timeout time.Duration
	logger  zerolog.Logger
}

// NewWriter creates a writer for a table returned by Bootstrap.
func NewWriter(store Store, table Table, opts WriterOptions) *Writer {
	observability.EnsureRegistered()

	loc := opts.Location
	if loc == nil {
		if l, err := LoadLocation(DefaultTimezone); err == nil {
			loc = l
		} else {
			loc = time.UTC
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}

	return &Writer{
		store:   store,
		table:   table,
		loc:     loc,
		timeout: timeout,
		logger:  opts.Logger.With().Str("component", "ledger").Str("table", table.Name).Logger(),
	}
}

// Table returns the table this writer appends to.
func (w *Writer) Table() Table {
	return w.table
}

// Location returns the zone timestamps are rendered in.
func (w *Writer) Location() *time.Location {
	return w.loc
}

// Append writes one record as a new row. Identical records appended twice
// produce two rows.
func (w *Writer) Append(ctx context.Context, rec Record) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := tracing.StartSpan(
		ctx,
		"feedbackbot.ledger",
		"ledger.append",
		attribute.String("table", w.table.Name),
		attribute.Int("content_length", len(rec.Content)),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, w.logger)
	row := rec.Row(w.loc)

	appendCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	err := w.store.AppendRow(appendCtx, w.table, row)
	duration := time.Since(start)
	observability.RecordLedgerAppend(duration, err == nil)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		logger.Error().
			Err(err).
			Str("time", row[0]).
			Str("user", rec.Username).
			Int("content_length", len(rec.Content)).
			Dur("duration", duration).
			Msg("Ledger append failed")

		observability.RecordLedgerAudit(ctx, tracing.GetUserID(ctx), "failure", map[string]interface{}{
			"table":   w.table.Name,
			"time":    row[0],
			"user":    row[1],
			"content": row[2],
			"error":   err.Error(),
		})

		return &WriteError{Table: w.table.Name, Record: rec, Err: err}
	}

	logger.Debug().
		Str("time", row[0]).
		Dur("duration", duration).
		Msg("Ledger row appended")

	return nil
}

// String implements fmt.Stringer for diagnostics.
func (w *Writer) String() string {
	return fmt.Sprintf("ledger.Writer{table=%s, tz=%s}", w.table.Name, w.loc)
}
