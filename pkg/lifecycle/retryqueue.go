package lifecycle

import (
	"container/heap"
	"math"
	"math/rand"
	"sync"
	"time"
)

// RetryQueue schedules components for resync with per-item delays
type RetryQueue interface {
	// Enqueue schedules a component, replacing any later deadline
	Enqueue(id ComponentID, delay time.Duration)

	// Dequeue removes and returns the next due component.
	// Returns (id, true) if an item is due, ("", false) otherwise.
	Dequeue() (ComponentID, bool)

	// Len returns the number of queued items
	Len() int

	// Wait returns a channel signalled when queue state changes
	Wait() <-chan struct{}
}

// retryQueue implements RetryQueue with a deadline-ordered min-heap
type retryQueue struct {
	mu       sync.Mutex
	items    *retryHeap
	notifyCh chan struct{}
}

type retryItem struct {
	id    ComponentID
	dueAt time.Time
	index int
}

type retryHeap []*retryItem

func (h retryHeap) Len() int { return len(h) }

func (h retryHeap) Less(i, j int) bool {
	return h[i].dueAt.Before(h[j].dueAt)
}

func (h retryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *retryHeap) Push(x interface{}) {
	item := x.(*retryItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *retryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[0 : n-1]
	return item
}

// NewRetryQueue creates an empty retry queue
func NewRetryQueue() RetryQueue {
	items := &retryHeap{}
	heap.Init(items)

	return &retryQueue{
		items:    items,
		notifyCh: make(chan struct{}, 1),
	}
}

func (rq *retryQueue) Enqueue(id ComponentID, delay time.Duration) {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	dueAt := time.Now().Add(delay)

	// An item already queued keeps its earlier deadline
	for _, item := range *rq.items {
		if item.id == id {
			if dueAt.Before(item.dueAt) {
				item.dueAt = dueAt
				heap.Fix(rq.items, item.index)
			}
			rq.notify()
			return
		}
	}

	item := &retryItem{
		id:    id,
		dueAt: dueAt,
	}
	heap.Push(rq.items, item)
	rq.notify()
}

func (rq *retryQueue) Dequeue() (ComponentID, bool) {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	if rq.items.Len() == 0 {
		return "", false
	}

	item := (*rq.items)[0]

	if time.Now().Before(item.dueAt) {
		return "", false
	}

	heap.Pop(rq.items)
	return item.id, true
}

func (rq *retryQueue) Len() int {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return rq.items.Len()
}

func (rq *retryQueue) Wait() <-chan struct{} {
	return rq.notifyCh
}

func (rq *retryQueue) notify() {
	select {
	case rq.notifyCh <- struct{}{}:
	default:
		// Already has a pending notification
	}
}

// Jitter spreads a duration by up to jitterFraction in either direction
// to avoid synchronized resyncs across components.
func Jitter(duration time.Duration, jitterFraction float64) time.Duration {
	if jitterFraction <= 0 {
		return duration
	}
	if jitterFraction > 1.0 {
		jitterFraction = 1.0
	}

	j := rand.Float64() * jitterFraction

	multiplier := 1.0 + (j * 2.0) - jitterFraction
	return time.Duration(float64(duration) * multiplier)
}

// Backoff calculates the retry delay after the given number of failed
// attempts: baseDelay * 2^attempt, capped at maxDelay, with ±25% jitter.
func Backoff(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	multiplier := math.Pow(2, float64(attempt))
	delay := time.Duration(float64(baseDelay) * multiplier)

	if delay > maxDelay {
		delay = maxDelay
	}

	return Jitter(delay, 0.25)
}
