package daemon

import (
	"context"
	"time"

	"github.com/harun/feedbackbot/internal/observability"
	"github.com/harun/feedbackbot/pkg/commandqueue"
	"github.com/harun/feedbackbot/pkg/dialogue"
	"github.com/rs/zerolog"
)

// DefaultMaintenanceInterval is how often the event loop refreshes gauges.
const DefaultMaintenanceInterval = 30 * time.Second

// EventLoop handles periodic maintenance of the running daemon
type EventLoop struct {
	tracker  *dialogue.Tracker
	queue    *commandqueue.CommandQueue
	interval time.Duration
	logger   zerolog.Logger
}

// NewEventLoop creates a new event loop
func NewEventLoop(tracker *dialogue.Tracker, queue *commandqueue.CommandQueue, interval time.Duration, logger zerolog.Logger) *EventLoop {
	if interval <= 0 {
		interval = DefaultMaintenanceInterval
	}
	return &EventLoop{
		tracker:  tracker,
		queue:    queue,
		interval: interval,
		logger:   logger.With().Str("module", "eventloop").Logger(),
	}
}

// Run runs the event loop with periodic maintenance tasks
func (e *EventLoop) Run(ctx context.Context) {
	e.logger.Info().Msg("Event loop started")

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("Event loop stopping")
			return

		case <-ticker.C:
			e.processTasks()
		}
	}
}

// processTasks refreshes the session gauge and logs busy lanes
func (e *EventLoop) processTasks() {
	observability.SetActiveSessions(e.tracker.Active())

	for _, st := range e.queue.Stats() {
		e.logger.Debug().
			Str("lane", st.Lane).
			Int("queued", st.Queued).
			Bool("running", st.Running).
			Msg("Queue stats")
	}
}

// HandleShutdown waits for in-flight events before the queue is closed.
func (e *EventLoop) HandleShutdown(timeout time.Duration) {
	e.logger.Info().Msg("Handling graceful shutdown")

	if e.queue.WaitIdle(timeout) {
		e.logger.Info().Msg("All active tasks completed")
	}
}
