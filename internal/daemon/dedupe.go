package daemon

import (
	"fmt"
	"sync"
	"time"

	"github.com/harun/feedbackbot/pkg/channels"
)

const defaultDedupeTTL = 10 * time.Minute

// messageDedupeCache remembers inbound message keys for ttl so an update that
// Telegram redelivers after a reconnect is handled once. Expired keys are
// swept on access, at most once per half ttl.
type messageDedupeCache struct {
	ttl time.Duration
	now func() time.Time

	mu        sync.Mutex
	seen      map[string]time.Time
	nextSweep time.Time
}

func newMessageDedupeCache(ttl time.Duration) *messageDedupeCache {
	if ttl <= 0 {
		ttl = defaultDedupeTTL
	}
	return &messageDedupeCache{
		ttl:  ttl,
		now:  time.Now,
		seen: make(map[string]time.Time),
	}
}

// dedupeKey identifies a message, or returns "" when the channel supplies no
// message id.
func dedupeKey(msg channels.InboundMessage) string {
	if msg.MessageID == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d:%d", msg.Channel, msg.ChatID, msg.MessageID)
}

// Seen records key and reports whether it was already recorded within ttl.
// The empty key is never a duplicate.
func (c *messageDedupeCache) Seen(key string) bool {
	if c == nil || key == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !now.Before(c.nextSweep) {
		c.sweepLocked(now)
	}
	if at, ok := c.seen[key]; ok && now.Sub(at) < c.ttl {
		return true
	}
	c.seen[key] = now
	return false
}

func (c *messageDedupeCache) sweepLocked(now time.Time) {
	for key, at := range c.seen {
		if now.Sub(at) >= c.ttl {
			delete(c.seen, key)
		}
	}
	c.nextSweep = now.Add(c.ttl / 2)
}

func (c *messageDedupeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
