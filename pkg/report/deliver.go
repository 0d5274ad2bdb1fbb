package report

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// LogDeliverer writes the summary to the structured log.
type LogDeliverer struct {
	Logger zerolog.Logger
}

func (d LogDeliverer) Name() string { return "log" }

func (d LogDeliverer) Deliver(ctx context.Context, s Summary, text string) error {
	users := make(map[string]int, len(s.ByUser))
	for _, uc := range s.ByUser {
		users[uc.User] = uc.Count
	}
	d.Logger.Info().
		Str("report_id", s.ID).
		Time("window_start", s.WindowStart).
		Time("window_end", s.WindowEnd).
		Int("total", s.Total).
		Interface("by_user", users).
		Str("text", text).
		Msg("Weekly feedback report")
	return nil
}

// WriterDeliverer prints the rendered summary.
type WriterDeliverer struct {
	W io.Writer
}

func (d WriterDeliverer) Name() string { return "writer" }

func (d WriterDeliverer) Deliver(ctx context.Context, s Summary, text string) error {
	_, err := fmt.Fprintln(d.W, text)
	return err
}
