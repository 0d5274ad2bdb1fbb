package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/harun/feedbackbot/pkg/commandqueue"
	"github.com/harun/feedbackbot/pkg/dialogue"
	"github.com/harun/feedbackbot/pkg/ledger"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoopTracker(t *testing.T) *dialogue.Tracker {
	t.Helper()
	store := ledger.NewMemoryStore()
	table, err := ledger.Bootstrap(context.Background(), store, "feedback", zerolog.Nop())
	require.NoError(t, err)
	tracker, err := dialogue.NewTracker(ledger.NewWriter(store, table, ledger.WriterOptions{}), dialogue.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	return tracker
}

func TestNewEventLoopDefaultsInterval(t *testing.T) {
	loop := NewEventLoop(newLoopTracker(t), commandqueue.New(), 0, zerolog.Nop())
	assert.Equal(t, DefaultMaintenanceInterval, loop.interval)
}

func TestEventLoopRunStopsOnCancel(t *testing.T) {
	queue := commandqueue.New()
	defer queue.Close()

	loop := NewEventLoop(newLoopTracker(t), queue, 5*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event loop did not stop")
	}
}

func TestEventLoopHandleShutdownWaitsForTasks(t *testing.T) {
	queue := commandqueue.New()
	defer queue.Close()

	finished := make(chan struct{})
	require.NoError(t, queue.Submit(context.Background(), "user:1", func(ctx context.Context) error {
		time.Sleep(30 * time.Millisecond)
		close(finished)
		return nil
	}))

	loop := NewEventLoop(newLoopTracker(t), queue, time.Second, zerolog.Nop())
	loop.HandleShutdown(time.Second)

	select {
	case <-finished:
	default:
		t.Fatal("shutdown returned before the queued task finished")
	}
}
