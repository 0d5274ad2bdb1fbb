package cron

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrTaskExists is returned by Register for a duplicate task name.
	ErrTaskExists = errors.New("task already registered")
	// ErrTaskNotFound is returned by RunNow for an unknown task name.
	ErrTaskNotFound = errors.New("task not found")
	// ErrStopped is returned after Stop.
	ErrStopped = errors.New("scheduler is stopped")
)

// Firing describes one invocation of a task.
type Firing struct {
	Task string
	// ScheduledAt is the trigger time being served (the wall time for manual runs).
	ScheduledAt time.Time
	// PreviousAt is the previous scheduled firing in this process, zero on the first.
	PreviousAt time.Time
	// Manual is set for RunNow invocations.
	Manual bool
}

// Action is the body of a task.
type Action func(ctx context.Context, f Firing) error

// Task is a named recurring job.
type Task struct {
	Name string
	// Spec is a five-field cron expression, a descriptor such as "@weekly",
	// or the short "mon 09:00" form.
	Spec   string
	Action Action
}

// RunStatus is the result of one firing.
type RunStatus string

const (
	RunStatusOK      RunStatus = "ok"
	RunStatusError   RunStatus = "error"
	RunStatusSkipped RunStatus = "skipped"
)

// EntryInfo is a snapshot of a registered task.
type EntryInfo struct {
	Name              string        `json:"name"`
	Spec              string        `json:"spec"`
	Next              time.Time     `json:"next"`
	Previous          time.Time     `json:"previous,omitempty"`
	Running           bool          `json:"running"`
	Runs              int           `json:"runs"`
	LastStatus        RunStatus     `json:"last_status,omitempty"`
	LastError         string        `json:"last_error,omitempty"`
	LastDuration      time.Duration `json:"last_duration,omitempty"`
	ConsecutiveErrors int           `json:"consecutive_errors,omitempty"`
}

// EventAction is the kind of scheduler event.
type EventAction string

const (
	EventActionRegistered EventAction = "registered"
	EventActionFinished   EventAction = "finished"
	EventActionSkipped    EventAction = "skipped"
)

// Event is emitted to Options.OnEvent.
type Event struct {
	Action   EventAction
	Task     string
	Status   RunStatus
	Error    string
	Duration time.Duration
	Next     time.Time
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// DefaultTimeout bounds a single task run.
const DefaultTimeout = 5 * time.Minute

// Options configures a Scheduler.
type Options struct {
	// Location is the zone triggers are evaluated in. Defaults to UTC.
	Location *time.Location
	Clock    Clock
	// Timeout bounds each run. Zero uses DefaultTimeout; negative disables.
	Timeout time.Duration
	Logger  zerolog.Logger
	OnEvent func(Event)
}
