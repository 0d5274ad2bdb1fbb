package cron

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/harun/feedbackbot/internal/observability"
	"github.com/robfig/cron/v3"
)

type entry struct {
	task     Task
	spec     string
	schedule cron.Schedule

	next time.Time
	prev time.Time

	running           bool
	runs              int
	lastStatus        RunStatus
	lastError         string
	lastDuration      time.Duration
	consecutiveErrors int
}

// Scheduler fires registered tasks on their triggers. Nothing is persisted:
// triggers missed while the process is down, or while a wake-up is late, are
// skipped and the next run is computed from the current time.
type Scheduler struct {
	options Options
	loc     *time.Location
	clock   Clock

	mu      sync.Mutex
	entries map[string]*entry
	timer   *time.Timer
	started bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc

	wg sync.WaitGroup
}

// New creates a scheduler. Call Start to arm the timer.
func New(opts Options) *Scheduler {
	observability.EnsureRegistered()

	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	opts.Logger = opts.Logger.With().Str("component", "scheduler").Logger()

	return &Scheduler{
		options: opts,
		loc:     loc,
		clock:   clock,
		entries: make(map[string]*entry),
	}
}

// Register adds a task. Task names are unique.
func (s *Scheduler) Register(task Task) error {
	if task.Name == "" {
		return fmt.Errorf("task name is required")
	}
	if task.Action == nil {
		return fmt.Errorf("task %q has no action", task.Name)
	}

	spec, err := ParseTrigger(task.Spec)
	if err != nil {
		return fmt.Errorf("task %q: %w", task.Name, err)
	}
	schedule, err := specParser.Parse(spec)
	if err != nil {
		return fmt.Errorf("task %q: invalid cron expression: %w", task.Name, err)
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if _, exists := s.entries[task.Name]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskExists, task.Name)
	}

	e := &entry{
		task:     task,
		spec:     spec,
		schedule: schedule,
		next:     schedule.Next(s.clock.Now().In(s.loc)),
	}
	s.entries[task.Name] = e
	if s.started {
		s.armLocked()
	}
	next := e.next
	s.mu.Unlock()

	s.options.Logger.Info().
		Str("task", task.Name).
		Str("spec", spec).
		Time("next", next).
		Msg("Task registered")
	s.emit(Event{Action: EventActionRegistered, Task: task.Name, Next: next})

	return nil
}

// Start arms the timer. Runs use a context derived from ctx; cancelling it
// has the same effect as Stop on in-flight runs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true

	// Recompute from now so time spent between Register and Start is not
	// treated as missed.
	now := s.clock.Now().In(s.loc)
	for _, e := range s.entries {
		if !e.next.After(now) {
			e.next = e.schedule.Next(now)
		}
	}
	s.armLocked()

	s.options.Logger.Info().Int("tasks", len(s.entries)).Str("timezone", s.loc.String()).Msg("Scheduler started")
	return nil
}

// Stop disarms the timer and waits for in-flight runs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.options.Logger.Info().Msg("Scheduler stopped")
}

// RunDue fires every task whose next trigger is at or before now, waits for
// those runs, and returns the names fired. Each due task fires once however
// many triggers were missed, and its next trigger moves strictly after now.
// Tasks still running from an earlier firing are skipped.
func (s *Scheduler) RunDue(ctx context.Context, now time.Time) []string {
	now = now.In(s.loc)

	type job struct {
		e      *entry
		firing Firing
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	var jobs []job
	var skipped []string
	for _, name := range s.sortedNamesLocked() {
		e := s.entries[name]
		if e.next.IsZero() || e.next.After(now) {
			continue
		}

		scheduled := e.next
		e.next = e.schedule.Next(now)

		if e.running {
			e.lastStatus = RunStatusSkipped
			skipped = append(skipped, name)
			continue
		}

		jobs = append(jobs, job{e: e, firing: Firing{Task: name, ScheduledAt: scheduled, PreviousAt: e.prev}})
		e.prev = scheduled
		e.running = true
	}
	if s.started {
		s.armLocked()
	}
	s.wg.Add(len(jobs))
	s.mu.Unlock()

	for _, name := range skipped {
		s.options.Logger.Warn().Str("task", name).Msg("Task still running, skipping trigger")
		observability.RecordSchedulerRun(name, string(RunStatusSkipped), 0)
		s.emit(Event{Action: EventActionSkipped, Task: name, Status: RunStatusSkipped})
	}

	fired := make([]string, 0, len(jobs))
	var wg sync.WaitGroup
	for _, j := range jobs {
		fired = append(fired, j.firing.Task)
		wg.Add(1)
		go func(e *entry, f Firing) {
			defer wg.Done()
			defer s.wg.Done()
			s.execute(ctx, e, f)
		}(j.e, j.firing)
	}
	wg.Wait()

	return fired
}

// RunNow runs a task immediately, outside its schedule. Its next trigger and
// previous firing are left unchanged.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	e, ok := s.entries[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	if e.running {
		s.mu.Unlock()
		return fmt.Errorf("task %q is already running", name)
	}
	e.running = true
	firing := Firing{Task: name, ScheduledAt: s.clock.Now().In(s.loc), PreviousAt: e.prev, Manual: true}
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	return s.execute(ctx, e, firing)
}

// Entries returns a snapshot of all tasks ordered by name.
func (s *Scheduler) Entries() []EntryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]EntryInfo, 0, len(s.entries))
	for _, name := range s.sortedNamesLocked() {
		e := s.entries[name]
		out = append(out, EntryInfo{
			Name:              name,
			Spec:              e.spec,
			Next:              e.next,
			Previous:          e.prev,
			Running:           e.running,
			Runs:              e.runs,
			LastStatus:        e.lastStatus,
			LastError:         e.lastError,
			LastDuration:      e.lastDuration,
			ConsecutiveErrors: e.consecutiveErrors,
		})
	}
	return out
}

// Location returns the zone triggers are evaluated in.
func (s *Scheduler) Location() *time.Location {
	return s.loc
}

func (s *Scheduler) execute(ctx context.Context, e *entry, f Firing) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout := s.timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	logger := s.options.Logger.With().Str("task", f.Task).Time("scheduled_at", f.ScheduledAt).Logger()
	logger.Info().Bool("manual", f.Manual).Msg("Executing task")

	start := time.Now()
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task panicked: %v", r)
				logger.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("Task panicked")
			}
		}()
		err = e.task.Action(ctx, f)
	}()
	duration := time.Since(start)

	status := RunStatusOK
	if err != nil {
		status = RunStatusError
	}

	s.mu.Lock()
	e.running = false
	e.runs++
	e.lastStatus = status
	e.lastDuration = duration
	if err != nil {
		e.lastError = err.Error()
		e.consecutiveErrors++
	} else {
		e.lastError = ""
		e.consecutiveErrors = 0
	}
	consecutive := e.consecutiveErrors
	next := e.next
	s.mu.Unlock()

	observability.RecordSchedulerRun(f.Task, string(status), duration)
	metadata := map[string]interface{}{
		"scheduled_at": f.ScheduledAt.Format(time.RFC3339),
		"manual":       f.Manual,
		"duration_ms":  duration.Milliseconds(),
	}
	if err != nil {
		metadata["error"] = err.Error()
		logger.Error().Err(err).Int("consecutive_errors", consecutive).Dur("duration", duration).Msg("Task execution failed")
	} else {
		logger.Info().Dur("duration", duration).Time("next", next).Msg("Task execution completed")
	}
	observability.RecordScheduleAudit(ctx, f.Task, string(status), metadata)

	evt := Event{Action: EventActionFinished, Task: f.Task, Status: status, Duration: duration, Next: next}
	if err != nil {
		evt.Error = err.Error()
	}
	s.emit(evt)

	return err
}

// armLocked points the single timer at the earliest next trigger. Caller
// holds s.mu.
func (s *Scheduler) armLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	var earliest time.Time
	for _, e := range s.entries {
		if e.next.IsZero() {
			continue
		}
		if earliest.IsZero() || e.next.Before(earliest) {
			earliest = e.next
		}
	}
	if earliest.IsZero() {
		return
	}

	delay := earliest.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}

	ctx := s.ctx
	s.timer = time.AfterFunc(delay, func() {
		s.RunDue(ctx, s.clock.Now())
	})

	s.options.Logger.Debug().Dur("delay", delay).Time("next", earliest).Msg("Scheduler armed")
}

func (s *Scheduler) sortedNamesLocked() []string {
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Scheduler) timeout() time.Duration {
	switch {
	case s.options.Timeout < 0:
		return 0
	case s.options.Timeout == 0:
		return DefaultTimeout
	default:
		return s.options.Timeout
	}
}

func (s *Scheduler) emit(evt Event) {
	if s.options.OnEvent != nil {
		s.options.OnEvent(evt)
	}
}
