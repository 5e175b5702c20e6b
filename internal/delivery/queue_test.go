package delivery

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock is a manually advanced Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestQueueGateHoldsFutureItems(t *testing.T) {
	clock := newFakeClock()
	q := NewQueue(clock)
	q.Push("esme1", clock.Now().Add(time.Minute))

	_, ok := q.PopDue()
	assert.False(t, ok, "items stay invisible until their due time")
	assert.Equal(t, 1, q.Len())

	clock.Advance(time.Minute)
	got, ok := q.PopDue()
	assert.True(t, ok)
	assert.Equal(t, "esme1", got)
}

func TestQueuePopsInDueOrder(t *testing.T) {
	clock := newFakeClock()
	q := NewQueue(clock)
	q.Push("later", clock.Now().Add(3*time.Minute))
	q.Push("sooner", clock.Now().Add(time.Minute))
	q.Push("soonest", clock.Now())

	got, ok := q.PopDue()
	assert.True(t, ok)
	assert.Equal(t, "soonest", got)

	_, ok = q.PopDue()
	assert.False(t, ok, "the gate applies per item, not per drain")

	clock.Advance(3 * time.Minute)
	first, _ := q.PopDue()
	second, _ := q.PopDue()
	assert.Equal(t, []string{"sooner", "later"}, []string{first, second})
}

func TestQueueGateAppliesEvenWhenBacklogged(t *testing.T) {
	clock := newFakeClock()
	q := NewQueue(clock)
	for i := 0; i < 100; i++ {
		q.Push("esme1", clock.Now().Add(time.Hour))
	}
	_, ok := q.PopDue()
	assert.False(t, ok)
	assert.Equal(t, 100, q.Len())
}

func TestQueueRemoveDropsAllWorkForUser(t *testing.T) {
	clock := newFakeClock()
	q := NewQueue(clock)
	q.Push("esme1", clock.Now())
	q.Push("esme2", clock.Now())
	q.Push("esme1", clock.Now().Add(time.Minute))

	q.Remove("esme1")
	assert.Equal(t, 1, q.Len())

	got, ok := q.PopDue()
	assert.True(t, ok)
	assert.Equal(t, "esme2", got)
}
