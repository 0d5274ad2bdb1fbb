package cron

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func taipei(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Taipei")
	require.NoError(t, err)
	return loc
}

func newTestScheduler(t *testing.T, clock *fakeClock, loc *time.Location) *Scheduler {
	t.Helper()
	s := New(Options{Location: loc, Clock: clock, Logger: zerolog.Nop()})
	t.Cleanup(s.Stop)
	return s
}

func TestParseTrigger(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		want    string
		wantErr bool
	}{
		{name: "short form", expr: "mon 09:00", want: "0 9 * * 1"},
		{name: "full day name", expr: "Friday 17:30", want: "30 17 * * 5"},
		{name: "five fields", expr: "0 9 * * 1", want: "0 9 * * 1"},
		{name: "named dow", expr: "0 9 * * MON", want: "0 9 * * MON"},
		{name: "descriptor", expr: "@weekly", want: "@weekly"},
		{name: "every interval", expr: "@every 1h", want: "@every 1h"},
		{name: "bad interval", expr: "@every soon", wantErr: true},
		{name: "empty", expr: "  ", wantErr: true},
		{name: "bad day", expr: "funday 09:00", wantErr: true},
		{name: "bad hour", expr: "mon 25:00", wantErr: true},
		{name: "bad clock", expr: "mon 0900", wantErr: true},
		{name: "garbage", expr: "every monday morning", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTrigger(tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTrigger(t *testing.T) {
	tr := Trigger{DayOfWeek: time.Monday, Hour: 9, Minute: 0}
	assert.Equal(t, "0 9 * * 1", tr.Spec())
	assert.Equal(t, "mon 09:00", tr.String())
	assert.NoError(t, tr.Validate())
	assert.Error(t, Trigger{DayOfWeek: time.Monday, Hour: 9, Minute: 60}.Validate())
}

func TestNextAfter(t *testing.T) {
	loc := taipei(t)
	sunday := time.Date(2024, 3, 3, 23, 59, 0, 0, loc)

	next, err := NextAfter("mon 09:00", sunday, loc)
	require.NoError(t, err)
	assert.True(t, next.Equal(time.Date(2024, 3, 4, 9, 0, 0, 0, loc)))

	// Evaluated in Taipei even when the input is UTC.
	next, err = NextAfter("mon 09:00", sunday.UTC(), loc)
	require.NoError(t, err)
	assert.True(t, next.Equal(time.Date(2024, 3, 4, 9, 0, 0, 0, loc)))
}

func TestWeeklyTriggerFiresExactlyOnce(t *testing.T) {
	loc := taipei(t)
	sunday := time.Date(2024, 3, 3, 23, 59, 0, 0, loc)
	monday9 := time.Date(2024, 3, 4, 9, 0, 0, 0, loc)

	clock := &fakeClock{now: sunday}
	s := newTestScheduler(t, clock, loc)

	var runs int32
	var firings []Firing
	var mu sync.Mutex
	require.NoError(t, s.Register(Task{
		Name: "weekly-report",
		Spec: "mon 09:00",
		Action: func(ctx context.Context, f Firing) error {
			atomic.AddInt32(&runs, 1)
			mu.Lock()
			firings = append(firings, f)
			mu.Unlock()
			return nil
		},
	}))

	ctx := context.Background()
	for now := sunday; !now.After(monday9); now = now.Add(time.Minute) {
		clock.Set(now)
		s.RunDue(ctx, now)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))

	clock.Set(monday9.Add(time.Minute))
	fired := s.RunDue(ctx, monday9.Add(time.Minute))
	assert.Empty(t, fired)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))

	require.Len(t, firings, 1)
	assert.True(t, firings[0].ScheduledAt.Equal(monday9))
	assert.True(t, firings[0].PreviousAt.IsZero())

	entries := s.Entries()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Next.Equal(monday9.AddDate(0, 0, 7)))
	assert.Equal(t, RunStatusOK, entries[0].LastStatus)
	assert.Equal(t, 1, entries[0].Runs)
}

func TestMissedTriggersAreCoalesced(t *testing.T) {
	loc := taipei(t)
	start := time.Date(2024, 3, 3, 12, 0, 0, 0, loc)
	clock := &fakeClock{now: start}
	s := newTestScheduler(t, clock, loc)

	var runs int32
	require.NoError(t, s.Register(Task{
		Name:   "weekly-report",
		Spec:   "0 9 * * 1",
		Action: func(ctx context.Context, f Firing) error { atomic.AddInt32(&runs, 1); return nil },
	}))

	// Three weeks of downtime.
	later := start.AddDate(0, 0, 21)
	fired := s.RunDue(context.Background(), later)
	assert.Equal(t, []string{"weekly-report"}, fired)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))

	entries := s.Entries()
	assert.True(t, entries[0].Next.After(later))

	assert.Empty(t, s.RunDue(context.Background(), later))
}

func TestPreviousAtTracksLastScheduledFiring(t *testing.T) {
	loc := taipei(t)
	clock := &fakeClock{now: time.Date(2024, 3, 3, 0, 0, 0, 0, loc)}
	s := newTestScheduler(t, clock, loc)

	var got []Firing
	require.NoError(t, s.Register(Task{
		Name:   "weekly-report",
		Spec:   "mon 09:00",
		Action: func(ctx context.Context, f Firing) error { got = append(got, f); return nil },
	}))

	first := time.Date(2024, 3, 4, 9, 0, 0, 0, loc)
	second := first.AddDate(0, 0, 7)
	s.RunDue(context.Background(), first)
	s.RunDue(context.Background(), second)

	require.Len(t, got, 2)
	assert.True(t, got[1].PreviousAt.Equal(first))
	assert.True(t, got[1].ScheduledAt.Equal(second))
}

func TestTaskFailureAndPanicAreContained(t *testing.T) {
	loc := taipei(t)
	start := time.Date(2024, 3, 3, 0, 0, 0, 0, loc)
	clock := &fakeClock{now: start}

	var events []Event
	var mu sync.Mutex
	s := New(Options{Location: loc, Clock: clock, Logger: zerolog.Nop(), OnEvent: func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}})
	defer s.Stop()

	require.NoError(t, s.Register(Task{
		Name:   "fails",
		Spec:   "mon 09:00",
		Action: func(ctx context.Context, f Firing) error { return errors.New("boom") },
	}))
	require.NoError(t, s.Register(Task{
		Name:   "panics",
		Spec:   "mon 09:00",
		Action: func(ctx context.Context, f Firing) error { panic("kaboom") },
	}))

	monday := time.Date(2024, 3, 4, 9, 0, 0, 0, loc)
	fired := s.RunDue(context.Background(), monday)
	assert.ElementsMatch(t, []string{"fails", "panics"}, fired)

	entries := s.Entries()
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, RunStatusError, e.LastStatus)
		assert.Equal(t, 1, e.ConsecutiveErrors)
		assert.False(t, e.Running)
		assert.True(t, e.Next.Equal(monday.AddDate(0, 0, 7)), "schedule intact for %s", e.Name)
	}
	assert.Contains(t, entries[1].LastError, "kaboom")

	// Still fires next week.
	fired = s.RunDue(context.Background(), monday.AddDate(0, 0, 7))
	assert.Len(t, fired, 2)

	mu.Lock()
	defer mu.Unlock()
	var finished int
	for _, e := range events {
		if e.Action == EventActionFinished {
			finished++
			assert.Equal(t, RunStatusError, e.Status)
		}
	}
	assert.Equal(t, 4, finished)
}

func TestRunningTaskIsSkipped(t *testing.T) {
	loc := taipei(t)
	clock := &fakeClock{now: time.Date(2024, 3, 4, 8, 0, 0, 0, loc)}
	s := newTestScheduler(t, clock, loc)

	release := make(chan struct{})
	started := make(chan struct{})
	var runs int32
	require.NoError(t, s.Register(Task{
		Name: "slow",
		Spec: "0 * * * *",
		Action: func(ctx context.Context, f Firing) error {
			atomic.AddInt32(&runs, 1)
			close(started)
			<-release
			return nil
		},
	}))

	done := make(chan []string)
	go func() {
		done <- s.RunDue(context.Background(), time.Date(2024, 3, 4, 9, 0, 0, 0, loc))
	}()
	<-started

	fired := s.RunDue(context.Background(), time.Date(2024, 3, 4, 10, 0, 0, 0, loc))
	assert.Empty(t, fired)

	close(release)
	assert.Equal(t, []string{"slow"}, <-done)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
}

func TestRegister(t *testing.T) {
	s := newTestScheduler(t, &fakeClock{now: time.Now()}, time.UTC)
	noop := func(ctx context.Context, f Firing) error { return nil }

	require.NoError(t, s.Register(Task{Name: "a", Spec: "mon 09:00", Action: noop}))

	err := s.Register(Task{Name: "a", Spec: "mon 09:00", Action: noop})
	assert.ErrorIs(t, err, ErrTaskExists)

	assert.Error(t, s.Register(Task{Name: "", Spec: "mon 09:00", Action: noop}))
	assert.Error(t, s.Register(Task{Name: "b", Spec: "mon 09:00"}))
	assert.Error(t, s.Register(Task{Name: "c", Spec: "not a spec", Action: noop}))
}

func TestRunNow(t *testing.T) {
	loc := taipei(t)
	clock := &fakeClock{now: time.Date(2024, 3, 5, 12, 0, 0, 0, loc)}
	s := newTestScheduler(t, clock, loc)

	var got Firing
	require.NoError(t, s.Register(Task{
		Name:   "weekly-report",
		Spec:   "mon 09:00",
		Action: func(ctx context.Context, f Firing) error { got = f; return nil },
	}))
	before := s.Entries()[0].Next

	require.NoError(t, s.RunNow(context.Background(), "weekly-report"))
	assert.True(t, got.Manual)
	assert.True(t, got.ScheduledAt.Equal(clock.Now()))
	assert.True(t, s.Entries()[0].Next.Equal(before))

	err := s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestTimeoutIsApplied(t *testing.T) {
	s := New(Options{Clock: &fakeClock{now: time.Now()}, Timeout: 20 * time.Millisecond, Logger: zerolog.Nop()})
	defer s.Stop()

	require.NoError(t, s.Register(Task{
		Name: "blocks",
		Spec: "@weekly",
		Action: func(ctx context.Context, f Firing) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}))

	err := s.RunNow(context.Background(), "blocks")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStartFiresOnTimer(t *testing.T) {
	s := New(Options{Logger: zerolog.Nop()})

	fired := make(chan Firing, 4)
	require.NoError(t, s.Register(Task{
		Name:   "tick",
		Spec:   "@every 1s",
		Action: func(ctx context.Context, f Firing) error { fired <- f; return nil },
	}))
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))

	select {
	case f := <-fired:
		assert.Equal(t, "tick", f.Task)
	case <-time.After(5 * time.Second):
		t.Fatal("task did not fire")
	}

	s.Stop()
	s.Stop()

	assert.ErrorIs(t, s.Register(Task{Name: "late", Spec: "@weekly", Action: func(context.Context, Firing) error { return nil }}), ErrStopped)
	assert.ErrorIs(t, s.Start(context.Background()), ErrStopped)
	assert.Nil(t, s.RunDue(context.Background(), time.Now().Add(time.Hour)))
}
