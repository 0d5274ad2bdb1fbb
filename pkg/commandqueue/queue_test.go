package commandqueue

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

func newQueue(t *testing.T, opts ...Option) *CommandQueue {
	t.Helper()
	cq := New(append([]Option{WithLogger(zerolog.Nop())}, opts...)...)
	t.Cleanup(func() { _ = cq.Close() })
	return cq
}

func TestDoReturnsTaskResult(t *testing.T) {
	cq := newQueue(t)

	ran := false
	require.NoError(t, cq.Do(context.Background(), "user:1", func(context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)

	boom := errors.New("ledger down")
	err := cq.Do(context.Background(), "user:1", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestDoRecoversPanic(t *testing.T) {
	cq := newQueue(t)

	err := cq.Do(context.Background(), "user:1", func(context.Context) error { panic("bad event") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task panicked: bad event")

	assert.NoError(t, cq.Do(context.Background(), "user:1", func(context.Context) error { return nil }))
}

func TestNilTaskRejected(t *testing.T) {
	cq := newQueue(t)
	assert.Error(t, cq.Submit(context.Background(), "user:1", nil))
}

func TestSubmitKeepsLaneOrder(t *testing.T) {
	cq := newQueue(t)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 20; i++ {
		i := i
		require.NoError(t, cq.Submit(context.Background(), UserLane("7"), func(context.Context) error {
			if i == 0 {
				time.Sleep(20 * time.Millisecond)
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}))
	}

	require.True(t, cq.WaitIdle(2*time.Second))
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 20)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestLaneNeverOverlaps(t *testing.T) {
	cq := newQueue(t)

	var running, peak int32
	for i := 0; i < 10; i++ {
		require.NoError(t, cq.Submit(context.Background(), "user:1", func(context.Context) error {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return nil
		}))
	}

	require.True(t, cq.WaitIdle(2*time.Second))
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

func TestLanesRunIndependently(t *testing.T) {
	cq := newQueue(t)

	release := make(chan struct{})
	require.NoError(t, cq.Submit(context.Background(), UserLane("slow"), func(context.Context) error {
		<-release
		return nil
	}))

	done := make(chan struct{})
	require.NoError(t, cq.Submit(context.Background(), UserLane("fast"), func(context.Context) error {
		close(done)
		return nil
	}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fast lane was blocked by slow lane")
	}
	close(release)
	assert.True(t, cq.WaitIdle(time.Second))
}

func TestStatsAndIdle(t *testing.T) {
	cq := newQueue(t)
	assert.True(t, cq.Idle())
	assert.Empty(t, cq.Stats())

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, cq.Submit(context.Background(), "user:b", func(context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started
	require.NoError(t, cq.Submit(context.Background(), "user:b", func(context.Context) error { return nil }))

	assert.False(t, cq.Idle())
	assert.Equal(t, []LaneStats{{Lane: "user:b", Queued: 1, Running: true}}, cq.Stats())

	close(release)
	require.True(t, cq.WaitIdle(time.Second))
	assert.Empty(t, cq.Stats())
}

func TestWaitIdleTimesOut(t *testing.T) {
	cq := newQueue(t)

	release := make(chan struct{})
	require.NoError(t, cq.Submit(context.Background(), "user:1", func(context.Context) error {
		<-release
		return nil
	}))

	assert.False(t, cq.WaitIdle(30*time.Millisecond))
	close(release)
}

func TestDoStopsWaitingOnContext(t *testing.T) {
	cq := newQueue(t)

	release := make(chan struct{})
	require.NoError(t, cq.Submit(context.Background(), "user:1", func(context.Context) error {
		<-release
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := cq.Do(ctx, "user:1", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestCloseRejectsPendingAndCancelsRunning(t *testing.T) {
	cq := New(WithLogger(zerolog.Nop()))

	started := make(chan struct{})
	var cancelled atomic.Bool
	require.NoError(t, cq.Submit(context.Background(), "user:1", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}))
	<-started

	pending := make(chan error, 1)
	go func() {
		pending <- cq.Do(context.Background(), "user:1", func(context.Context) error { return nil })
	}()
	require.Eventually(t, func() bool {
		st := cq.Stats()
		return len(st) == 1 && st[0].Queued == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, cq.Close())
	assert.True(t, cancelled.Load())
	assert.ErrorIs(t, <-pending, ErrClosed)

	assert.ErrorIs(t, cq.Submit(context.Background(), "user:1", func(context.Context) error { return nil }), ErrClosed)
	assert.NoError(t, cq.Close())
}

func TestWaitWarningReportsQueuedTask(t *testing.T) {
	warned := make(chan SlowWait, 1)
	cq := newQueue(t, WithWaitWarning(10*time.Millisecond, func(w SlowWait) {
		if w.JobID == 2 {
			warned <- w
		}
	}))

	release := make(chan struct{})
	require.NoError(t, cq.Submit(context.Background(), "user:1", func(context.Context) error {
		<-release
		return nil
	}))
	require.NoError(t, cq.Submit(context.Background(), "user:1", func(context.Context) error { return nil }))

	select {
	case w := <-warned:
		assert.Equal(t, "user:1", w.Lane)
		assert.Equal(t, uint64(2), w.JobID)
		assert.Equal(t, 0, w.Position)
		assert.GreaterOrEqual(t, w.Waited, 10*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("no slow-wait warning")
	}
	close(release)
	require.True(t, cq.WaitIdle(time.Second))
}

func TestUserLane(t *testing.T) {
	assert.Equal(t, "user:42", UserLane("42"))
}
