package notify

import (
	"container/heap"
	"sync"
	"time"

	"github.com/BTreeMap/PromptDeck/internal/models"
)

// Queue priorities. Higher is delivered first.
const (
	priorityDateBased = 30
	priorityZenMode   = 20
	priorityDefault   = 10
	// recentPenalty is subtracted per delivery of the same pack inside the recent window.
	recentPenalty = 5
)

// delivery is one queued notice-worthy event.
type delivery struct {
	pack     *models.Pack
	prompt   *models.Prompt // nil for missed notices
	kind     models.NoticeKind
	fireAt   time.Time
	priority int
	seq      uint64
}

func (d *delivery) key() string {
	if d.prompt != nil {
		return d.pack.ID + "|" + d.prompt.ID
	}
	return d.pack.ID + "|" + string(d.kind)
}

type deliveryHeap []*delivery

func (h deliveryHeap) Len() int { return len(h) }
func (h deliveryHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h deliveryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *deliveryHeap) Push(x any)   { *h = append(*h, x.(*delivery)) }
func (h *deliveryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// deliveryQueue orders pending deliveries by priority and drops duplicates.
type deliveryQueue struct {
	mu     sync.Mutex
	items  deliveryHeap
	keys   map[string]struct{}
	recent map[string][]time.Time
	window time.Duration
	seq    uint64
	signal chan struct{}
}

func newDeliveryQueue(window time.Duration) *deliveryQueue {
	return &deliveryQueue{
		keys:   make(map[string]struct{}),
		recent: make(map[string][]time.Time),
		window: window,
		signal: make(chan struct{}, 1),
	}
}

// basePriority favours date-bound packs, then zen-mode packs.
func basePriority(pack *models.Pack) int {
	switch {
	case pack.Type == models.PackTypeDateBased:
		return priorityDateBased
	case pack.Settings.ZenMode:
		return priorityZenMode
	default:
		return priorityDefault
	}
}

// recentLocked prunes and counts the pack's deliveries inside the window.
func (q *deliveryQueue) recentLocked(packID string, now time.Time) int {
	times := q.recent[packID]
	kept := times[:0]
	for _, t := range times {
		if now.Sub(t) < q.window {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(q.recent, packID)
		return 0
	}
	q.recent[packID] = kept
	return len(kept)
}

// push enqueues d unless an entry with the same key is already waiting.
func (q *deliveryQueue) push(d *delivery, now time.Time) bool {
	q.mu.Lock()
	key := d.key()
	if _, dup := q.keys[key]; dup {
		q.mu.Unlock()
		return false
	}
	q.seq++
	d.seq = q.seq
	d.priority = basePriority(d.pack) - recentPenalty*q.recentLocked(d.pack.ID, now)
	q.keys[key] = struct{}{}
	heap.Push(&q.items, d)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// pop removes the highest-priority delivery.
func (q *deliveryQueue) pop() (*delivery, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	d := heap.Pop(&q.items).(*delivery)
	delete(q.keys, d.key())
	return d, true
}

// recordDelivery counts a delivery of the pack towards its recent volume.
func (q *deliveryQueue) recordDelivery(packID string, now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.recent[packID] = append(q.recent[packID], now)
}

func (q *deliveryQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
