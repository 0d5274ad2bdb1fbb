// Package report builds the periodic feedback summary from ledger records.
package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/harun/feedbackbot/internal/observability"
	"github.com/harun/feedbackbot/pkg/cron"
	"github.com/harun/feedbackbot/pkg/ledger"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

const (
	// DefaultLookback is the window of the first report in a process.
	DefaultLookback = 7 * 24 * time.Hour

	// AnonymousUser labels records with an empty username.
	AnonymousUser = "(anonymous)"

	maxRenderedEntries = 20
	maxRenderedContent = 200
)

// Source is the read side of the ledger. *ledger.Reader satisfies it.
type Source interface {
	Between(ctx context.Context, from, to time.Time) ([]ledger.Record, error)
}

// Deliverer publishes a rendered summary.
type Deliverer interface {
	Name() string
	Deliver(ctx context.Context, s Summary, text string) error
}

// Window is the half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls in the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// UserCount is the number of records one user submitted.
type UserCount struct {
	User  string `json:"user"`
	Count int    `json:"count"`
}

// Summary is the result of one report run.
type Summary struct {
	ID          string          `json:"id"`
	WindowStart time.Time       `json:"window_start"`
	WindowEnd   time.Time       `json:"window_end"`
	Total       int             `json:"total"`
	ByUser      []UserCount     `json:"by_user"`
	Records     []ledger.Record `json:"records"`
}

// Summarize groups the records that fall inside the window. Records outside it
// are dropped. ByUser is ordered by count, then name.
func Summarize(records []ledger.Record, window Window) Summary {
	s := Summary{
		WindowStart: window.Start,
		WindowEnd:   window.End,
	}

	counts := make(map[string]int)
	for _, rec := range records {
		if !window.Contains(rec.Timestamp) {
			continue
		}
		user := rec.Username
		if user == "" {
			user = AnonymousUser
		}
		counts[user]++
		s.Records = append(s.Records, rec)
	}
	s.Total = len(s.Records)

	s.ByUser = make([]UserCount, 0, len(counts))
	for user, n := range counts {
		s.ByUser = append(s.ByUser, UserCount{User: user, Count: n})
	}
	sort.Slice(s.ByUser, func(i, j int) bool {
		if s.ByUser[i].Count != s.ByUser[j].Count {
			return s.ByUser[i].Count > s.ByUser[j].Count
		}
		return s.ByUser[i].User < s.ByUser[j].User
	})

	return s
}

// Render formats a summary as plain text in loc.
func Render(s Summary, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 Feedback report %s → %s\n",
		s.WindowStart.In(loc).Format(ledger.TimestampLayout),
		s.WindowEnd.In(loc).Format(ledger.TimestampLayout))

	if s.Total == 0 {
		b.WriteString("No feedback received in this period.")
		return b.String()
	}

	fmt.Fprintf(&b, "Total: %d from %d user(s)\n", s.Total, len(s.ByUser))
	for _, uc := range s.ByUser {
		fmt.Fprintf(&b, "• %s: %d\n", uc.User, uc.Count)
	}

	b.WriteString("\nEntries:\n")
	for i, rec := range s.Records {
		if i == maxRenderedEntries {
			fmt.Fprintf(&b, "…and %d more\n", len(s.Records)-maxRenderedEntries)
			break
		}
		user := rec.Username
		if user == "" {
			user = AnonymousUser
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", rec.Timestamp.In(loc).Format(ledger.TimestampLayout), user, truncate(rec.Content, maxRenderedContent))
	}

	if s.ID != "" {
		fmt.Fprintf(&b, "\nReport %s", s.ID)
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}

// Options configures a Reporter.
type Options struct {
	Lookback time.Duration
	Location *time.Location
	Logger   zerolog.Logger
}

// Reporter is the weekly report task body.
type Reporter struct {
	source     Source
	deliverers []Deliverer
	lookback   time.Duration
	loc        *time.Location
	logger     zerolog.Logger
}

// NewReporter creates a reporter reading from source.
func NewReporter(source Source, deliverers []Deliverer, opts Options) *Reporter {
	observability.EnsureRegistered()

	lookback := opts.Lookback
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Reporter{
		source:     source,
		deliverers: deliverers,
		lookback:   lookback,
		loc:        loc,
		logger:     opts.Logger.With().Str("component", "report").Logger(),
	}
}

// WindowFor returns the read window of a firing.
func (r *Reporter) WindowFor(f cron.Firing) Window {
	end := f.ScheduledAt
	start := f.PreviousAt
	if start.IsZero() || !start.Before(end) {
		start = end.Add(-r.lookback)
	}
	return Window{Start: start, End: end}
}

// Build reads and summarises one window.
func (r *Reporter) Build(ctx context.Context, window Window) (Summary, error) {
	records, err := r.source.Between(ctx, window.Start, window.End)
	if err != nil {
		return Summary{}, fmt.Errorf("read ledger: %w", err)
	}

	s := Summarize(records, window)
	id, err := gonanoid.New()
	if err != nil {
		return Summary{}, fmt.Errorf("generate report id: %w", err)
	}
	s.ID = id
	return s, nil
}

// Run is a cron.Action. Every deliverer is attempted; their failures are
// joined into the returned error.
func (r *Reporter) Run(ctx context.Context, f cron.Firing) error {
	window := r.WindowFor(f)

	s, err := r.Build(ctx, window)
	if err != nil {
		return err
	}
	observability.SetReportRecordCount(s.Total)

	text := Render(s, r.loc)
	logger := r.logger.With().Str("report_id", s.ID).Logger()
	logger.Info().
		Time("window_start", window.Start).
		Time("window_end", window.End).
		Int("total", s.Total).
		Msg("Report built")

	var errs []error
	for _, d := range r.deliverers {
		if err := d.Deliver(ctx, s, text); err != nil {
			logger.Error().Err(err).Str("deliverer", d.Name()).Msg("Report delivery failed")
			errs = append(errs, fmt.Errorf("%s: %w", d.Name(), err))
		}
	}
	return errors.Join(errs...)
}
