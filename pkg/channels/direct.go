package channels

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Reply is one outbound message recorded by a DirectChannel.
type Reply struct {
	To   InboundMessage
	Text string
}

// DirectChannel is an in-process channel. Messages are injected with Send and
// replies are recorded instead of delivered.
type DirectChannel struct {
	name string

	mu       sync.Mutex
	dispatch DispatchFunc
	replies  []Reply
	onReply  func(Reply)
}

// NewDirectChannel creates a direct channel by name.
func NewDirectChannel(name string) *DirectChannel {
	return &DirectChannel{name: strings.TrimSpace(name)}
}

// Name returns channel name.
func (c *DirectChannel) Name() string {
	return c.name
}

// Start validates and keeps the dispatcher.
func (c *DirectChannel) Start(_ context.Context, dispatch DispatchFunc) error {
	if strings.TrimSpace(c.name) == "" {
		return fmt.Errorf("channel name is required")
	}
	if dispatch == nil {
		return fmt.Errorf("dispatch function is required")
	}
	c.mu.Lock()
	c.dispatch = dispatch
	c.mu.Unlock()
	return nil
}

// Stop drops the dispatcher.
func (c *DirectChannel) Stop(_ context.Context) error {
	c.mu.Lock()
	c.dispatch = nil
	c.mu.Unlock()
	return nil
}

// Send injects an inbound message as if it arrived on this channel.
func (c *DirectChannel) Send(ctx context.Context, msg InboundMessage) error {
	c.mu.Lock()
	dispatch := c.dispatch
	c.mu.Unlock()

	if dispatch == nil {
		return fmt.Errorf("channel %q is not started", c.name)
	}
	msg.Channel = c.name
	return dispatch(ctx, msg)
}

// Reply records the outbound text.
func (c *DirectChannel) Reply(_ context.Context, msg InboundMessage, text string) error {
	r := Reply{To: msg, Text: text}

	c.mu.Lock()
	c.replies = append(c.replies, r)
	hook := c.onReply
	c.mu.Unlock()

	if hook != nil {
		hook(r)
	}
	return nil
}

// OnReply sets a callback invoked for every reply.
func (c *DirectChannel) OnReply(fn func(Reply)) {
	c.mu.Lock()
	c.onReply = fn
	c.mu.Unlock()
}

// Replies returns a copy of the recorded replies.
func (c *DirectChannel) Replies() []Reply {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Reply, len(c.replies))
	copy(out, c.replies)
	return out
}

// RepliesTo returns the texts sent to one user.
func (c *DirectChannel) RepliesTo(userID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, r := range c.replies {
		if r.To.UserID == userID {
			out = append(out, r.Text)
		}
	}
	return out
}
