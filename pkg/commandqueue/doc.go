// Package commandqueue runs tasks in named lanes.
//
// Each lane is a FIFO drained by one goroutine, so tasks sharing a lane never
// overlap and run in submission order. Lanes are independent of each other.
// The daemon gives every chat user a lane (UserLane) so one user's updates are
// handled in arrival order while different users proceed in parallel.
//
//	queue := commandqueue.New(commandqueue.WithLogger(logger))
//	defer queue.Close()
//	err := queue.Submit(ctx, commandqueue.UserLane("42"), func(ctx context.Context) error {
//		_, err := tracker.Handle(ctx, ev, replier)
//		return err
//	})
package commandqueue
