// Package stats is the process-wide statistics aggregator: connection
// and bind gauges, message counters, and the per-user / per-source-IP
// bind tables admission control decides against.
package stats

import (
	"sync"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// EventKind labels one statistics mutation for observers.
type EventKind int

const (
	EventConnectionOpened EventKind = iota
	EventConnectionClosed
	EventBind
	EventUnbind
	EventBindFailed
	EventMessageReceived
	EventMessageSent
)

// Event is delivered to observers after the corresponding counters have
// been updated.
type Event struct {
	Kind EventKind
	User string
	Addr string
}

// Observer is notified of statistics mutations. Implementations must be
// safe for concurrent calls and must not block.
type Observer interface {
	StatisticsEvent(ev Event)
}

// userRecord holds one user's bind accounting. Its mutex scopes the
// compound read-authorize-mutate sequence in admission control to this
// user, so unrelated users' binds never serialize on each other.
type userRecord struct {
	mu           sync.Mutex
	totalBinds   int64
	currentBinds int64
	byAddr       map[string]int64
}

// Stats is the aggregate. All methods are safe for concurrent use.
type Stats struct {
	currentConnections atomic.Int64
	totalConnections   atomic.Int64
	currentBinds       atomic.Int64
	totalBinds         atomic.Int64
	failedBinds        atomic.Int64
	messagesReceived   atomic.Int64
	messagesSent       atomic.Int64

	users        cmap.ConcurrentMap[string, *userRecord]
	failedByAddr cmap.ConcurrentMap[string, *atomic.Int64]

	obsMu     sync.RWMutex
	observers []Observer
}

func New() *Stats {
	return &Stats{
		users:        cmap.New[*userRecord](),
		failedByAddr: cmap.New[*atomic.Int64](),
	}
}

// AddObserver registers an observer for subsequent mutations.
func (s *Stats) AddObserver(o Observer) {
	s.obsMu.Lock()
	s.observers = append(s.observers, o)
	s.obsMu.Unlock()
}

func (s *Stats) notify(ev Event) {
	s.obsMu.RLock()
	observers := s.observers
	s.obsMu.RUnlock()
	for _, o := range observers {
		o.StatisticsEvent(ev)
	}
}

// decrementFloor decrements c but never below zero. Duplicate close
// notifications are guarded here, not merely trusted away.
func decrementFloor(c *atomic.Int64) {
	for {
		cur := c.Load()
		if cur <= 0 {
			return
		}
		if c.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

func (s *Stats) ConnectionOpened(addr string) {
	s.currentConnections.Add(1)
	s.totalConnections.Add(1)
	s.notify(Event{Kind: EventConnectionOpened, Addr: addr})
}

func (s *Stats) ConnectionClosed(addr string) {
	decrementFloor(&s.currentConnections)
	s.notify(Event{Kind: EventConnectionClosed, Addr: addr})
}

// BindFailed records a failed bind attempt globally and for the remote
// address it came from.
func (s *Stats) BindFailed(addr string) {
	s.failedBinds.Add(1)
	counter, _ := s.failedByAddr.Get(addr)
	if counter == nil {
		s.failedByAddr.SetIfAbsent(addr, &atomic.Int64{})
		counter, _ = s.failedByAddr.Get(addr)
	}
	counter.Add(1)
	s.notify(Event{Kind: EventBindFailed, Addr: addr})
}

func (s *Stats) record(name string) *userRecord {
	rec, ok := s.users.Get(name)
	if !ok {
		s.users.SetIfAbsent(name, &userRecord{byAddr: make(map[string]int64)})
		rec, _ = s.users.Get(name)
	}
	return rec
}

// TryBind runs the bind admission sequence for one user atomically: it
// computes the counts the user would reach if this attempt were
// admitted, consults authorize, and on approval records the bind before
// releasing the user's lock. It reports whether the bind was admitted.
func (s *Stats) TryBind(name, addr string, authorize func(binds, bindsFromAddr int64) bool) bool {
	rec := s.record(name)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if !authorize(rec.currentBinds+1, rec.byAddr[addr]+1) {
		return false
	}
	rec.currentBinds++
	rec.totalBinds++
	rec.byAddr[addr]++
	s.currentBinds.Add(1)
	s.totalBinds.Add(1)
	s.notify(Event{Kind: EventBind, User: name, Addr: addr})
	return true
}

// Unbind reverses one TryBind. Calling it again for an already
// unaccounted session is harmless: no counter goes negative.
func (s *Stats) Unbind(name, addr string) {
	rec := s.record(name)
	rec.mu.Lock()
	if rec.currentBinds > 0 {
		rec.currentBinds--
	}
	if rec.byAddr[addr] > 0 {
		rec.byAddr[addr]--
		if rec.byAddr[addr] == 0 {
			delete(rec.byAddr, addr)
		}
	}
	rec.mu.Unlock()
	decrementFloor(&s.currentBinds)
	s.notify(Event{Kind: EventUnbind, User: name, Addr: addr})
}

func (s *Stats) MessageReceived(name string) {
	s.messagesReceived.Add(1)
	s.notify(Event{Kind: EventMessageReceived, User: name})
}

func (s *Stats) MessageSent(name string) {
	s.messagesSent.Add(1)
	s.notify(Event{Kind: EventMessageSent, User: name})
}

func (s *Stats) CurrentConnections() int64 { return s.currentConnections.Load() }
func (s *Stats) TotalConnections() int64   { return s.totalConnections.Load() }
func (s *Stats) CurrentBinds() int64       { return s.currentBinds.Load() }
func (s *Stats) TotalBinds() int64         { return s.totalBinds.Load() }
func (s *Stats) FailedBinds() int64        { return s.failedBinds.Load() }
func (s *Stats) MessagesReceived() int64   { return s.messagesReceived.Load() }
func (s *Stats) MessagesSent() int64       { return s.messagesSent.Load() }

// CurrentBindsFor returns a user's live bind count.
func (s *Stats) CurrentBindsFor(name string) int64 {
	rec, ok := s.users.Get(name)
	if !ok {
		return 0
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.currentBinds
}

// UserSnapshot is a point-in-time copy of one user's bind accounting.
type UserSnapshot struct {
	TotalBinds   int64            `json:"total_binds"`
	CurrentBinds int64            `json:"current_binds"`
	ByAddr       map[string]int64 `json:"by_addr,omitempty"`
}

// Snapshot is a point-in-time copy of the whole aggregate.
type Snapshot struct {
	CurrentConnections int64                   `json:"current_connections"`
	TotalConnections   int64                   `json:"total_connections"`
	CurrentBinds       int64                   `json:"current_binds"`
	TotalBinds         int64                   `json:"total_binds"`
	FailedBinds        int64                   `json:"failed_binds"`
	MessagesReceived   int64                   `json:"messages_received"`
	MessagesSent       int64                   `json:"messages_sent"`
	Users              map[string]UserSnapshot `json:"users,omitempty"`
	FailedByAddr       map[string]int64        `json:"failed_by_addr,omitempty"`
}

// Snapshot copies the aggregate for reporting surfaces.
func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		CurrentConnections: s.currentConnections.Load(),
		TotalConnections:   s.totalConnections.Load(),
		CurrentBinds:       s.currentBinds.Load(),
		TotalBinds:         s.totalBinds.Load(),
		FailedBinds:        s.failedBinds.Load(),
		MessagesReceived:   s.messagesReceived.Load(),
		MessagesSent:       s.messagesSent.Load(),
		Users:              make(map[string]UserSnapshot),
		FailedByAddr:       make(map[string]int64),
	}
	for item := range s.users.IterBuffered() {
		rec := item.Val
		rec.mu.Lock()
		us := UserSnapshot{
			TotalBinds:   rec.totalBinds,
			CurrentBinds: rec.currentBinds,
			ByAddr:       make(map[string]int64, len(rec.byAddr)),
		}
		for addr, n := range rec.byAddr {
			us.ByAddr[addr] = n
		}
		rec.mu.Unlock()
		snap.Users[item.Key] = us
	}
	for item := range s.failedByAddr.IterBuffered() {
		snap.FailedByAddr[item.Key] = item.Val.Load()
	}
	return snap
}
