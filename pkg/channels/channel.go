package channels

import (
	"context"
)

// InboundMessage is the normalized ingress payload from any channel.
type InboundMessage struct {
	Channel     string
	UserID      string
	DisplayName string
	ChatID      int64
	MessageID   int
	Text        string
	// Command is the bare command name without the slash or bot suffix,
	// empty for plain text.
	Command string
	Args    string
}

// IsCommand reports whether the message is a command.
func (m InboundMessage) IsCommand() bool {
	return m.Command != ""
}

// DispatchFunc routes an inbound channel message into the dialogue flow.
type DispatchFunc func(ctx context.Context, msg InboundMessage) error

// Channel is a chat transport (telegram, direct, ...).
type Channel interface {
	Name() string
	Start(ctx context.Context, dispatch DispatchFunc) error
	Stop(ctx context.Context) error
	// Reply answers the sender of msg.
	Reply(ctx context.Context, msg InboundMessage, text string) error
}
