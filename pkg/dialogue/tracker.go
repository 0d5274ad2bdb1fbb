package dialogue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harun/feedbackbot/internal/observability"
	"github.com/harun/feedbackbot/internal/tracing"
	"github.com/harun/feedbackbot/pkg/ledger"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Options configures a Tracker.
type Options struct {
	// Messages overrides the reply texts. Nil uses DefaultMessages.
	Messages *Messages
	// Now is the clock used for session start and record timestamps.
	Now func() time.Time
	// SessionTTL expires an awaiting session on the next event. Zero disables.
	SessionTTL time.Duration
	Logger     zerolog.Logger
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// Tracker owns all sessions.
type Tracker struct {
	appender Appender
	messages Messages
	now      func() time.Time
	ttl      time.Duration
	logger   zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	locksMu sync.Mutex
	locks   map[string]*userLock
}

// NewTracker creates a tracker that hands completed feedback to appender.
func NewTracker(appender Appender, opts Options) (*Tracker, error) {
	if appender == nil {
		return nil, errors.New("dialogue: appender is required")
	}
	observability.EnsureRegistered()

	messages := DefaultMessages()
	if opts.Messages != nil {
		messages = opts.Messages.withDefaults()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Tracker{
		appender: appender,
		messages: messages,
		now:      now,
		ttl:      opts.SessionTTL,
		logger:   opts.Logger.With().Str("component", "dialogue").Logger(),
		sessions: make(map[string]*Session),
		locks:    make(map[string]*userLock),
	}, nil
}

// Handle applies one event to the sender's dialogue. The returned error is
// non-nil only when a completed feedback could not be appended; the user has
// already been told in that case.
func (t *Tracker) Handle(ctx context.Context, ev Event, r Replier) (Outcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	unlock := t.lockUser(ev.UserID)
	defer unlock()

	ctx = tracing.WithUserID(ctx, ev.UserID)
	ctx, span := tracing.StartSpan(ctx, "feedbackbot.dialogue", "dialogue.handle",
		attribute.String("user_id", ev.UserID),
		attribute.String("command", ev.Command),
	)
	defer span.End()

	outcome, err := t.transition(ctx, ev, r)

	span.SetAttributes(attribute.String("outcome", string(outcome)))
	observability.RecordDialogueOutcome(string(outcome))
	observability.SetActiveSessions(t.Active())

	return outcome, err
}

func (t *Tracker) transition(ctx context.Context, ev Event, r Replier) (Outcome, error) {
	current, awaiting := t.current(ev.UserID)
	if awaiting {
		ctx = tracing.WithSessionID(ctx, current.ID.String())
	}
	logger := tracing.LoggerFromContext(ctx, t.logger)

	switch {
	case ev.Command == CommandStart:
		if awaiting {
			logger.Debug().Msg("Restarting feedback session")
		}
		session := &Session{
			ID:          uuid.New(),
			UserID:      ev.UserID,
			DisplayName: ev.DisplayName,
			Stage:       StageAwaitingFeedback,
			StartedAt:   t.now(),
		}
		t.mu.Lock()
		t.sessions[ev.UserID] = session
		t.mu.Unlock()

		logger.Info().Str("session_id", session.ID.String()).Msg("Feedback session started")
		t.reply(ctx, logger, r, t.messages.Prompt)
		return OutcomePrompted, nil

	case ev.Command == CommandCancel:
		if !awaiting {
			t.reply(ctx, logger, r, t.messages.NothingToCancel)
			return OutcomeHinted, nil
		}
		t.Reset(ev.UserID)
		logger.Info().Msg("Feedback session cancelled")
		t.reply(ctx, logger, r, t.messages.Cancelled)
		return OutcomeCancelled, nil

	case ev.IsCommand():
		logger.Debug().Str("command", ev.Command).Msg("Ignoring command")
		return OutcomeIgnored, nil

	case ev.Text == "":
		return OutcomeIgnored, nil

	case !awaiting:
		if t.messages.IdleHint == "" {
			return OutcomeIgnored, nil
		}
		t.reply(ctx, logger, r, t.messages.IdleHint)
		return OutcomeHinted, nil
	}

	// Awaiting feedback and got plain text: the session ends here whatever
	// the ledger does.
	t.Reset(ev.UserID)

	displayName := ev.DisplayName
	if displayName == "" {
		displayName = current.DisplayName
	}
	rec := ledger.Record{
		Timestamp: t.now(),
		Username:  displayName,
		Content:   ev.Text,
	}

	if err := t.appender.Append(ctx, rec); err != nil {
		logger.Error().
			Err(err).
			Time("timestamp", rec.Timestamp).
			Str("user", rec.Username).
			Int("content_length", len(rec.Content)).
			Msg("Failed to record feedback")
		t.reply(ctx, logger, r, t.messages.Failure)
		return OutcomeFailed, err
	}

	logger.Info().
		Int("content_length", len(rec.Content)).
		Dur("session_age", rec.Timestamp.Sub(current.StartedAt)).
		Msg("Feedback recorded")
	t.reply(ctx, logger, r, t.messages.Ack)
	return OutcomeRecorded, nil
}

// current returns the user's awaiting session, dropping it first when it has
// outlived the TTL.
func (t *Tracker) current(userID string) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[userID]
	if !ok {
		return Session{}, false
	}
	if t.ttl > 0 && t.now().Sub(s.StartedAt) > t.ttl {
		delete(t.sessions, userID)
		t.logger.Info().Str("user_id", userID).Str("session_id", s.ID.String()).Msg("Feedback session expired")
		return Session{}, false
	}
	return *s, true
}

func (t *Tracker) reply(ctx context.Context, logger zerolog.Logger, r Replier, text string) {
	if r == nil || text == "" {
		return
	}
	if err := r.Reply(ctx, text); err != nil {
		observability.RecordReplyError(tracing.GetChannel(ctx))
		logger.Warn().Err(err).Msg("Failed to send reply")
	}
}

// Session returns a copy of the user's active session.
func (t *Tracker) Session(userID string) (Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.sessions[userID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Active returns the number of users awaiting feedback.
func (t *Tracker) Active() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// Reset drops the user's session if any.
func (t *Tracker) Reset(userID string) {
	t.mu.Lock()
	delete(t.sessions, userID)
	t.mu.Unlock()
}

func (t *Tracker) lockUser(userID string) func() {
	t.locksMu.Lock()
	l, ok := t.locks[userID]
	if !ok {
		l = &userLock{}
		t.locks[userID] = l
	}
	l.refs++
	t.locksMu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		t.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, userID)
		}
		t.locksMu.Unlock()
	}
}
