package daemon

import (
	"context"
	"fmt"

	"github.com/harun/feedbackbot/internal/tracing"
	"github.com/harun/feedbackbot/pkg/channels"
	"github.com/harun/feedbackbot/pkg/commandqueue"
	"github.com/harun/feedbackbot/pkg/dialogue"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// ReplySender answers an inbound message on its own channel.
type ReplySender interface {
	Reply(ctx context.Context, msg channels.InboundMessage, text string) error
}

// Router turns inbound channel messages into dialogue events and runs them
// on the sender's lane, so one user's messages are handled in arrival order.
type Router struct {
	tracker *dialogue.Tracker
	queue   *commandqueue.CommandQueue
	replies ReplySender
	dedupe  *messageDedupeCache
	logger  zerolog.Logger
}

// NewRouter creates a message router. dedupe may be nil.
func NewRouter(tracker *dialogue.Tracker, queue *commandqueue.CommandQueue, replies ReplySender, dedupe *messageDedupeCache, logger zerolog.Logger) *Router {
	return &Router{
		tracker: tracker,
		queue:   queue,
		replies: replies,
		dedupe:  dedupe,
		logger:  logger.With().Str("module", "router").Logger(),
	}
}

// Dispatch is the channels.DispatchFunc of the daemon. It returns once the
// event is queued; handling errors are logged by the queue.
func (r *Router) Dispatch(ctx context.Context, msg channels.InboundMessage) error {
	if msg.UserID == "" {
		return fmt.Errorf("inbound message without user id")
	}

	if r.dedupe.Seen(dedupeKey(msg)) {
		r.logger.Debug().
			Str("channel", msg.Channel).
			Int("message_id", msg.MessageID).
			Msg("Dropping redelivered message")
		return nil
	}

	ctx = tracing.WithChannel(ctx, msg.Channel)
	ctx = tracing.WithUserID(ctx, msg.UserID)
	if tracing.GetTraceID(ctx) == "" {
		ctx = tracing.WithTraceID(ctx, tracing.NewTraceID())
	}

	ev := dialogue.Event{
		UserID:      msg.UserID,
		DisplayName: msg.DisplayName,
		Text:        msg.Text,
		Command:     msg.Command,
	}

	err := r.queue.Submit(context.WithoutCancel(ctx), commandqueue.UserLane(msg.UserID), func(ctx context.Context) error {
		return r.handle(ctx, msg, ev)
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue message: %w", err)
	}
	return nil
}

func (r *Router) handle(ctx context.Context, msg channels.InboundMessage, ev dialogue.Event) error {
	ctx, span := tracing.StartSpan(
		ctx,
		"feedbackbot.daemon",
		"router.dispatch",
		attribute.String("channel", msg.Channel),
		attribute.Bool("command", ev.IsCommand()),
	)
	replier := dialogue.ReplyFunc(func(ctx context.Context, text string) error {
		return r.replies.Reply(ctx, msg, text)
	})

	outcome, err := r.tracker.Handle(ctx, ev, replier)
	span.SetAttributes(attribute.String("outcome", string(outcome)))
	tracing.EndSpan(span, err)
	return err
}
