package dialogue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/harun/feedbackbot/pkg/ledger"
)

// Stage is the position of a user within the feedback dialogue.
type Stage string

const (
	StageIdle             Stage = "idle"
	StageAwaitingFeedback Stage = "awaiting_feedback"
)

// Command names understood by the tracker.
const (
	CommandStart  = "start"
	CommandCancel = "cancel"
)

// Session is one user's in-progress dialogue. It lives only in memory.
type Session struct {
	ID          uuid.UUID `json:"id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Stage       Stage     `json:"stage"`
	StartedAt   time.Time `json:"started_at"`
}

// Event is one inbound chat event. Command holds the bare command name
// ("start", "cancel") and is empty for plain text.
type Event struct {
	UserID      string
	DisplayName string
	Text        string
	Command     string
}

// IsCommand reports whether the event is a command.
func (e Event) IsCommand() bool {
	return e.Command != ""
}

// Replier sends a reply to the user the event came from.
type Replier interface {
	Reply(ctx context.Context, text string) error
}

// ReplyFunc adapts a function to Replier.
type ReplyFunc func(ctx context.Context, text string) error

func (f ReplyFunc) Reply(ctx context.Context, text string) error {
	return f(ctx, text)
}

// Appender is the write side of the ledger. *ledger.Writer satisfies it.
type Appender interface {
	Append(ctx context.Context, rec ledger.Record) error
}

// Outcome describes what Handle did with an event.
type Outcome string

const (
	OutcomeIgnored   Outcome = "ignored"
	OutcomePrompted  Outcome = "prompted"
	OutcomeRecorded  Outcome = "recorded"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
	OutcomeHinted    Outcome = "hinted"
)

// Messages are the reply texts sent at each transition.
type Messages struct {
	Prompt          string `mapstructure:"prompt" json:"prompt"`
	Ack             string `mapstructure:"ack" json:"ack"`
	Cancelled       string `mapstructure:"cancelled" json:"cancelled"`
	Failure         string `mapstructure:"failure" json:"failure"`
	NothingToCancel string `mapstructure:"nothing_to_cancel" json:"nothing_to_cancel"`
	// IdleHint is sent for plain text with no active session. Empty disables it.
	IdleHint string `mapstructure:"idle_hint" json:"idle_hint"`
}

// DefaultMessages returns the stock reply texts.
func DefaultMessages() Messages {
	return Messages{
		Prompt:          "👋 Please enter the feedback you want to report:",
		Ack:             "✅ Your feedback has been received, thank you!",
		Cancelled:       "❌ Feedback cancelled.",
		Failure:         "⚠️ Sorry, your feedback could not be saved. Please try again later.",
		NothingToCancel: "There is nothing to cancel. Send /start to leave feedback.",
		IdleHint:        "Send /start to leave feedback.",
	}
}

// withDefaults fills empty required texts. IdleHint is left as given.
func (m Messages) withDefaults() Messages {
	d := DefaultMessages()
	if m.Prompt == "" {
		m.Prompt = d.Prompt
	}
	if m.Ack == "" {
		m.Ack = d.Ack
	}
	if m.Cancelled == "" {
		m.Cancelled = d.Cancelled
	}
	if m.Failure == "" {
		m.Failure = d.Failure
	}
	if m.NothingToCancel == "" {
		m.NothingToCancel = d.NothingToCancel
	}
	return m
}
