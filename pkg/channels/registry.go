package channels

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

type registered struct {
	ch      Channel
	started bool
}

// Registry owns the chat transports of the bot. Channels start in
// registration order and stop in reverse.
type Registry struct {
	dispatch DispatchFunc

	mu     sync.RWMutex
	order  []string
	byName map[string]*registered
}

// NewRegistry creates a registry that hands every inbound message to dispatch.
func NewRegistry(dispatch DispatchFunc) *Registry {
	return &Registry{
		dispatch: dispatch,
		byName:   make(map[string]*registered),
	}
}

// Register adds a channel. Names must be unique.
func (r *Registry) Register(ch Channel) error {
	if ch == nil {
		return fmt.Errorf("channel is required")
	}

	name := strings.TrimSpace(ch.Name())
	if name == "" {
		return fmt.Errorf("channel name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("channel %q already registered", name)
	}
	r.byName[name] = &registered{ch: ch}
	r.order = append(r.order, name)
	return nil
}

// IsRegistered reports whether a channel with name exists.
func (r *Registry) IsRegistered(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Get returns a registered channel by name.
func (r *Registry) Get(name string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.byName[strings.TrimSpace(name)]
	if !ok {
		return nil, false
	}
	return entry.ch, true
}

// Names returns channel names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Dispatch forwards a message from a registered channel to the dispatcher.
func (r *Registry) Dispatch(ctx context.Context, msg InboundMessage) error {
	if r.dispatch == nil {
		return fmt.Errorf("dispatch function is not configured")
	}

	msg.Channel = strings.TrimSpace(msg.Channel)
	if msg.Channel == "" {
		return fmt.Errorf("channel is required")
	}
	if !r.IsRegistered(msg.Channel) {
		return fmt.Errorf("channel %q is not registered", msg.Channel)
	}

	return r.dispatch(ctx, msg)
}

// Reply answers msg through the channel it arrived on.
func (r *Registry) Reply(ctx context.Context, msg InboundMessage, text string) error {
	ch, ok := r.Get(msg.Channel)
	if !ok {
		return fmt.Errorf("channel %q is not registered", msg.Channel)
	}
	if err := ch.Reply(ctx, msg, text); err != nil {
		return fmt.Errorf("reply on %q: %w", ch.Name(), err)
	}
	return nil
}

// StartAll starts every channel that is not running yet. It stops at the
// first failure.
func (r *Registry) StartAll(ctx context.Context) error {
	for _, name := range r.Names() {
		if err := r.Start(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops running channels in reverse order and joins their errors.
func (r *Registry) StopAll(ctx context.Context) error {
	names := r.Names()
	var errs []error
	for i := len(names) - 1; i >= 0; i-- {
		if err := r.Stop(ctx, names[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Start starts one channel. Starting a running channel is a no-op.
func (r *Registry) Start(ctx context.Context, name string) error {
	entry, err := r.lookup(name)
	if err != nil {
		return err
	}

	r.mu.RLock()
	started := entry.started
	r.mu.RUnlock()
	if started {
		return nil
	}

	if err := entry.ch.Start(ctx, r.Dispatch); err != nil {
		return fmt.Errorf("failed to start channel %q: %w", name, err)
	}

	r.mu.Lock()
	entry.started = true
	r.mu.Unlock()
	return nil
}

// Stop stops one channel. Stopping an idle channel is a no-op.
func (r *Registry) Stop(ctx context.Context, name string) error {
	entry, err := r.lookup(name)
	if err != nil {
		return err
	}

	r.mu.RLock()
	started := entry.started
	r.mu.RUnlock()
	if !started {
		return nil
	}

	if err := entry.ch.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop channel %q: %w", name, err)
	}

	r.mu.Lock()
	entry.started = false
	r.mu.Unlock()
	return nil
}

func (r *Registry) lookup(name string) (*registered, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("channel name is required")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("channel %q is not registered", name)
	}
	return entry, nil
}
