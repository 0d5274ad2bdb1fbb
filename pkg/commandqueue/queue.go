package commandqueue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/harun/feedbackbot/internal/observability"
	"github.com/harun/feedbackbot/internal/tracing"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// ErrClosed is returned for work submitted after Close and for work still
// waiting in a lane when Close runs.
var ErrClosed = errors.New("command queue is closed")

// Task is one unit of work run inside a lane.
type Task func(ctx context.Context) error

// SlowWait describes a task that sat in its lane past the warning threshold.
type SlowWait struct {
	Lane     string
	JobID    uint64
	Waited   time.Duration
	Position int
}

// Option configures a CommandQueue.
type Option func(*CommandQueue)

// WithLogger sets the queue logger. The zerolog global is used otherwise.
func WithLogger(logger zerolog.Logger) Option {
	return func(cq *CommandQueue) {
		cq.logger = logger
	}
}

// WithWaitWarning logs, and reports to fn when non-nil, every task that waits
// longer than after before starting.
func WithWaitWarning(after time.Duration, fn func(SlowWait)) Option {
	return func(cq *CommandQueue) {
		cq.warnAfter = after
		cq.onSlow = fn
	}
}

type job struct {
	id       uint64
	ctx      context.Context
	task     Task
	queuedAt time.Time
	timer    *time.Timer
	// done is nil for fire-and-forget submissions.
	done chan error
}

func (j *job) finish(err error) {
	if j.timer != nil {
		j.timer.Stop()
	}
	if j.done != nil {
		j.done <- err
	}
}

type lane struct {
	pending []*job
	active  *job
}

// CommandQueue runs tasks in named lanes. Each lane is drained in FIFO order
// by its own goroutine, one task at a time; separate lanes run concurrently.
// A lane exists only while it has work.
type CommandQueue struct {
	logger    zerolog.Logger
	warnAfter time.Duration
	onSlow    func(SlowWait)

	mu     sync.Mutex
	lanes  map[string]*lane
	seq    uint64
	closed bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an empty queue.
func New(opts ...Option) *CommandQueue {
	observability.EnsureRegistered()

	ctx, cancel := context.WithCancel(context.Background())
	cq := &CommandQueue{
		logger: log.Logger,
		lanes:  make(map[string]*lane),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(cq)
	}
	return cq
}

// UserLane returns the lane name that serializes one chat user's events.
func UserLane(userID string) string {
	return "user:" + userID
}

// Submit queues task and returns immediately. The task is in the lane before
// Submit returns, so submissions from one goroutine keep their order. Task
// errors are logged.
func (cq *CommandQueue) Submit(ctx context.Context, laneName string, task Task) error {
	_, err := cq.push(ctx, laneName, task, false)
	return err
}

// Do queues task and waits for it to finish or for ctx to end. A task whose
// caller stopped waiting still runs, with the caller's context.
func (cq *CommandQueue) Do(ctx context.Context, laneName string, task Task) error {
	j, err := cq.push(ctx, laneName, task, true)
	if err != nil {
		return err
	}
	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cq *CommandQueue) push(ctx context.Context, laneName string, task Task, wait bool) (*job, error) {
	if task == nil {
		return nil, fmt.Errorf("task is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cq.mu.Lock()
	if cq.closed {
		cq.mu.Unlock()
		return nil, ErrClosed
	}
	cq.seq++
	j := &job{
		id:       cq.seq,
		ctx:      ctx,
		task:     task,
		queuedAt: time.Now(),
	}
	if wait {
		j.done = make(chan error, 1)
	}

	l, ok := cq.lanes[laneName]
	if !ok {
		l = &lane{}
		cq.lanes[laneName] = l
		cq.wg.Add(1)
		go cq.drain(laneName, l)
	}
	l.pending = append(l.pending, j)
	depth := len(l.pending)
	if cq.warnAfter > 0 {
		j.timer = time.AfterFunc(cq.warnAfter, func() { cq.warnSlow(laneName, j) })
	}
	cq.mu.Unlock()

	observability.RecordQueueEnqueue(laneName, depth)
	qlog := tracing.LoggerFromContext(ctx, cq.logger)
	qlog.Debug().
		Str("lane", laneName).
		Uint64("job", j.id).
		Int("depth", depth).
		Msg("Task queued")
	return j, nil
}

// drain runs the lane until it is empty, then removes it.
func (cq *CommandQueue) drain(name string, l *lane) {
	defer cq.wg.Done()
	for {
		cq.mu.Lock()
		if len(l.pending) == 0 {
			l.active = nil
			delete(cq.lanes, name)
			cq.mu.Unlock()
			return
		}
		j := l.pending[0]
		l.pending[0] = nil
		l.pending = l.pending[1:]
		l.active = j
		depth := len(l.pending)
		cq.mu.Unlock()

		observability.SetQueueSize(name, depth)
		cq.execute(name, j)
	}
}

func (cq *CommandQueue) execute(name string, j *job) {
	if j.timer != nil {
		j.timer.Stop()
	}

	ctx, span := tracing.StartSpan(j.ctx, "feedbackbot.commandqueue", "commandqueue.run",
		attribute.String("lane", name),
		attribute.Int64("job", int64(j.id)),
	)
	runCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(cq.ctx, cancel)

	started := time.Now()
	err := safeRun(runCtx, j.task)
	elapsed := time.Since(started)

	stop()
	cancel()
	tracing.EndSpan(span, err)

	observability.RecordQueueCompletion(name, elapsed, err == nil, cq.depth(name))

	logger := tracing.LoggerFromContext(ctx, cq.logger)
	if err != nil {
		logger.Error().Err(err).
			Str("lane", name).
			Uint64("job", j.id).
			Dur("duration", elapsed).
			Msg("Task failed")
	} else {
		logger.Debug().
			Str("lane", name).
			Uint64("job", j.id).
			Dur("duration", elapsed).
			Msg("Task completed")
	}
	j.finish(err)
}

func safeRun(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx)
}

func (cq *CommandQueue) warnSlow(name string, j *job) {
	cq.mu.Lock()
	pos := -1
	if l, ok := cq.lanes[name]; ok {
		for i, p := range l.pending {
			if p == j {
				pos = i
				break
			}
		}
	}
	cq.mu.Unlock()
	if pos < 0 {
		return
	}

	w := SlowWait{Lane: name, JobID: j.id, Waited: time.Since(j.queuedAt), Position: pos}
	cq.logger.Warn().
		Str("lane", name).
		Uint64("job", j.id).
		Dur("waited", w.Waited).
		Int("position", pos).
		Msg("Task waiting longer than expected")
	if cq.onSlow != nil {
		cq.onSlow(w)
	}
}

func (cq *CommandQueue) depth(name string) int {
	cq.mu.Lock()
	defer cq.mu.Unlock()
	if l, ok := cq.lanes[name]; ok {
		return len(l.pending)
	}
	return 0
}

// LaneStats is a point-in-time view of one lane.
type LaneStats struct {
	Lane    string
	Queued  int
	Running bool
}

// Stats returns every live lane, sorted by name.
func (cq *CommandQueue) Stats() []LaneStats {
	cq.mu.Lock()
	out := make([]LaneStats, 0, len(cq.lanes))
	for name, l := range cq.lanes {
		out = append(out, LaneStats{Lane: name, Queued: len(l.pending), Running: l.active != nil})
	}
	cq.mu.Unlock()

	sort.Slice(out, func(i, k int) bool { return out[i].Lane < out[k].Lane })
	return out
}

// Idle reports whether no lane has queued or running work.
func (cq *CommandQueue) Idle() bool {
	cq.mu.Lock()
	defer cq.mu.Unlock()
	return len(cq.lanes) == 0
}

// WaitIdle polls until the queue is idle or timeout passes.
func (cq *CommandQueue) WaitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for !cq.Idle() {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
	return true
}

// Close rejects waiting tasks with ErrClosed, cancels the context of running
// ones and waits for every lane goroutine to exit.
func (cq *CommandQueue) Close() error {
	cq.mu.Lock()
	if cq.closed {
		cq.mu.Unlock()
		return nil
	}
	cq.closed = true

	var rejected []*job
	for name, l := range cq.lanes {
		rejected = append(rejected, l.pending...)
		l.pending = nil
		observability.SetQueueSize(name, 0)
	}
	cq.mu.Unlock()

	for _, j := range rejected {
		j.finish(ErrClosed)
	}
	if len(rejected) > 0 {
		cq.logger.Warn().Int("rejected", len(rejected)).Msg("Command queue closed with pending tasks")
	}

	cq.cancel()
	cq.wg.Wait()
	return nil
}
