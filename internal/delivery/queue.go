// Package delivery pushes stored messages out to bound receiver
// sessions: a time-gated queue of per-session poll work and a two-tier
// scheduler that drains it.
package delivery

import (
	"container/heap"
	"sync"
	"time"
)

// Clock abstracts time for the queue gate so tests can steer it.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// item is one unit of poll work: visit the registered session's pending
// messages no earlier than due.
type item struct {
	sessionID string
	due      time.Time
	index    int
}

type itemHeap []*item

func (h itemHeap) Len() int            { return len(h) }
func (h itemHeap) Less(i, j int) bool  { return h[i].due.Before(h[j].due) }
func (h itemHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *itemHeap) Push(x any)         { it := x.(*item); it.index = len(*h); *h = append(*h, it) }
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// Queue is a time-gated priority queue. Items become visible only once
// their due time has arrived; until then PopDue reports nothing, no
// matter how many items are queued behind the gate.
type Queue struct {
	mu    sync.Mutex
	items itemHeap
	clock Clock
}

func NewQueue(clock Clock) *Queue {
	if clock == nil {
		clock = realClock{}
	}
	return &Queue{clock: clock}
}

// Push schedules poll work for a session at the given due time.
func (q *Queue) Push(sessionID string, due time.Time) {
	q.mu.Lock()
	heap.Push(&q.items, &item{sessionID: sessionID, due: due})
	q.mu.Unlock()
}

// PopDue removes and returns the earliest item whose due time has
// arrived. The bool is false when nothing is due yet.
func (q *Queue) PopDue() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 || q.items[0].due.After(q.clock.Now()) {
		return "", false
	}
	it := heap.Pop(&q.items).(*item)
	return it.sessionID, true
}

// Remove drops all queued work for a session. Used on deregistration so
// a departed session's polls do not linger.
func (q *Queue) Remove(sessionID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := 0; i < len(q.items); {
		if q.items[i].sessionID == sessionID {
			heap.Remove(&q.items, i)
			continue
		}
		i++
	}
}

// Len returns the number of queued items, gated or not.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
