package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/PromptDeck/internal/models"
)

// InAppChannel keeps delivered notices in a bounded in-process feed and
// streams them to live subscribers.
type InAppChannel struct {
	mu       sync.RWMutex
	feed     []models.Notice
	capacity int
	subs     map[uint64]chan models.Notice
	nextSub  uint64
	stopped  bool
}

// NewInAppChannel creates a feed retaining at most capacity notices.
func NewInAppChannel(capacity int) *InAppChannel {
	if capacity <= 0 {
		capacity = DefaultFeedCapacity
	}
	return &InAppChannel{
		capacity: capacity,
		feed:     make([]models.Notice, 0, capacity),
		subs:     make(map[uint64]chan models.Notice),
	}
}

// Name implements Channel.
func (c *InAppChannel) Name() models.DeliveryChannel { return models.ChannelInApp }

// Deliver appends the notice to the feed, dropping the oldest beyond capacity,
// and emits it to every subscriber.
func (c *InAppChannel) Deliver(ctx context.Context, notice models.Notice) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return ErrServiceStopped
	}
	c.feed = append(c.feed, notice)
	if over := len(c.feed) - c.capacity; over > 0 {
		c.feed = append(c.feed[:0], c.feed[over:]...)
	}
	for id, sub := range c.subs {
		select {
		case sub <- notice:
		default:
			slog.Warn("InAppChannel.Deliver: subscriber lagging, dropping live update", "subscriber", id, "noticeID", notice.ID)
		}
	}
	return nil
}

// Subscribe returns a stream of notices delivered from now on and a function
// that ends the subscription. The stream is closed by the cancel function or
// by Stop. Deliveries never block on a slow subscriber.
func (c *InAppChannel) Subscribe() (<-chan models.Notice, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan models.Notice, DefaultChannelBufferSize)
	if c.stopped {
		close(ch)
		return ch, func() {}
	}
	c.nextSub++
	id := c.nextSub
	c.subs[id] = ch
	return ch, func() { c.unsubscribe(id) }
}

func (c *InAppChannel) unsubscribe(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.subs[id]; ok {
		delete(c.subs, id)
		close(ch)
	}
}

// Subscribers returns the number of live subscriptions.
func (c *InAppChannel) Subscribers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

// List returns the feed, oldest first.
func (c *InAppChannel) List() []models.Notice {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Notice(nil), c.feed...)
}

// Active returns notices still within their display lifetime at now.
func (c *InAppChannel) Active(now time.Time) []models.Notice {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Notice, 0, len(c.feed))
	for _, n := range c.feed {
		if now.Before(n.CreatedAt.Add(n.Lifetime)) {
			out = append(out, n)
		}
	}
	return out
}

// Get returns a notice by id.
func (c *InAppChannel) Get(id string) (models.Notice, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, n := range c.feed {
		if n.ID == id {
			return n, true
		}
	}
	return models.Notice{}, false
}

// Dismiss removes a notice from the feed.
func (c *InAppChannel) Dismiss(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, n := range c.feed {
		if n.ID == id {
			c.feed = append(c.feed[:i], c.feed[i+1:]...)
			return true
		}
	}
	return false
}

// Stop closes every subscription. Further deliveries fail with ErrServiceStopped.
func (c *InAppChannel) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	slog.Info("InAppChannel stopped")
}
