package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryQueue_DequeueDue(t *testing.T) {
	rq := NewRetryQueue()

	rq.Enqueue("a", 0)

	id, ok := rq.Dequeue()
	require.True(t, ok)
	assert.Equal(t, ComponentID("a"), id)

	_, ok = rq.Dequeue()
	assert.False(t, ok, "queue should be empty")
}

func TestRetryQueue_DelayedItemNotDue(t *testing.T) {
	rq := NewRetryQueue()

	rq.Enqueue("a", 1*time.Hour)

	_, ok := rq.Dequeue()
	assert.False(t, ok, "delayed item should not be due yet")
	assert.Equal(t, 1, rq.Len(), "item stays queued until due")
}

func TestRetryQueue_OrderedByDeadline(t *testing.T) {
	rq := NewRetryQueue()

	rq.Enqueue("later", 50*time.Millisecond)
	rq.Enqueue("sooner", 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)

	id, ok := rq.Dequeue()
	require.True(t, ok)
	assert.Equal(t, ComponentID("sooner"), id)

	id, ok = rq.Dequeue()
	require.True(t, ok)
	assert.Equal(t, ComponentID("later"), id)
}

func TestRetryQueue_EarlierDeadlineWins(t *testing.T) {
	rq := NewRetryQueue()

	rq.Enqueue("a", 1*time.Hour)
	rq.Enqueue("a", 0)

	assert.Equal(t, 1, rq.Len(), "duplicate enqueue should not add a second item")

	id, ok := rq.Dequeue()
	require.True(t, ok, "re-enqueue with shorter delay should make the item due")
	assert.Equal(t, ComponentID("a"), id)
}

func TestRetryQueue_LaterDeadlineIgnored(t *testing.T) {
	rq := NewRetryQueue()

	rq.Enqueue("a", 0)
	rq.Enqueue("a", 1*time.Hour)

	id, ok := rq.Dequeue()
	require.True(t, ok, "existing earlier deadline should be kept")
	assert.Equal(t, ComponentID("a"), id)
}

func TestRetryQueue_Notify(t *testing.T) {
	rq := NewRetryQueue()

	rq.Enqueue("a", 0)

	select {
	case <-rq.Wait():
	case <-time.After(time.Second):
		t.Fatal("enqueue should signal the wait channel")
	}
}

func TestJitter(t *testing.T) {
	base := 10 * time.Second

	for i := 0; i < 100; i++ {
		d := Jitter(base, 0.1)
		assert.GreaterOrEqual(t, d, 9*time.Second)
		assert.LessOrEqual(t, d, 11*time.Second)
	}

	assert.Equal(t, base, Jitter(base, 0), "zero fraction returns input unchanged")
}

func TestBackoff(t *testing.T) {
	base := 1 * time.Second
	max := 30 * time.Second

	// Grows with attempts until capped
	for attempt := 0; attempt < 10; attempt++ {
		d := Backoff(attempt, base, max)
		assert.Greater(t, d, time.Duration(0))
		// Cap plus 25% jitter headroom
		assert.LessOrEqual(t, d, time.Duration(float64(max)*1.25))
	}

	small := Backoff(0, base, max)
	large := Backoff(4, base, max)
	assert.Greater(t, large, small, "backoff should grow with attempts")

	assert.Greater(t, Backoff(-1, base, max), time.Duration(0), "negative attempts clamp to zero")
}
