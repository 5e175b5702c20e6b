// Package session models one ESME connection: its bind state, sequence
// numbering, idle accounting, and the write discipline that keeps
// server-initiated deliveries from interleaving with response traffic.
package session

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/arkosms/smscd/internal/pdu"
	"github.com/arkosms/smscd/internal/user"
)

var (
	ErrAlreadyBound     = errors.New("session: already bound")
	ErrNotBound         = errors.New("session: not bound")
	ErrWriteLockTimeout = errors.New("session: write lock acquisition timed out")
	ErrClosed           = errors.New("session: closed")

	// ErrWriteOutsideExchange flags a write attempted with no in-flight
	// request and no held write lock. This is a programming error in the
	// caller, not a transient condition, so it is never retried.
	ErrWriteOutsideExchange = errors.New("session: write outside an active exchange")
)

// Session is the per-connection state. All methods are safe for
// concurrent use; the reader goroutine and delivery workers share it.
type Session struct {
	id         uuid.UUID
	conn       net.Conn
	remoteAddr string

	mu          sync.Mutex
	boundUser   *user.User
	bindMode    pdu.BindMode
	boundAt     time.Time
	idleTimeout time.Duration
	defaultIdle time.Duration

	lastAccess atomic.Int64 // unix nanos
	seq        atomic.Uint32
	inflight   atomic.Int32
	lockHeld   atomic.Bool

	// writeMu serializes raw frame writes. deliveryLock is the session
	// write lock: server-initiated traffic must hold it so a delivery
	// burst cannot starve responses, which only take writeMu.
	writeMu      sync.Mutex
	deliveryLock chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

// New wraps an accepted connection. remoteAddr is kept separately from
// conn so proxy-protocol sourced addresses survive.
func New(conn net.Conn, remoteAddr string, defaultIdle time.Duration) *Session {
	s := &Session{
		id:           uuid.New(),
		conn:         conn,
		remoteAddr:   remoteAddr,
		idleTimeout:  defaultIdle,
		defaultIdle:  defaultIdle,
		deliveryLock: make(chan struct{}, 1),
		closed:       make(chan struct{}),
	}
	s.Touch()
	return s
}

func (s *Session) ID() uuid.UUID      { return s.id }
func (s *Session) RemoteAddr() string { return s.remoteAddr }

// Touch records activity for idle accounting. Every inbound frame
// counts, bound or not.
func (s *Session) Touch() {
	s.lastAccess.Store(time.Now().UnixNano())
}

// LastAccess returns the time of the most recent inbound activity.
func (s *Session) LastAccess() time.Time {
	return time.Unix(0, s.lastAccess.Load())
}

// Idle reports whether the session has exceeded its idle timeout.
func (s *Session) Idle(now time.Time) bool {
	s.mu.Lock()
	timeout := s.idleTimeout
	s.mu.Unlock()
	if timeout == user.UnlimitedIdle || timeout <= 0 {
		return false
	}
	return now.Sub(s.LastAccess()) > timeout
}

// Bind transitions the session to bound. A session binds at most once;
// rebinding requires an unbind first.
func (s *Session) Bind(u *user.User, mode pdu.BindMode, listenerIdle time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.boundUser != nil {
		return ErrAlreadyBound
	}
	s.boundUser = u
	s.bindMode = mode
	s.boundAt = time.Now()
	s.idleTimeout = u.EffectiveIdleTime(listenerIdle)
	return nil
}

// Unbind clears the bind state and reports whether the session was
// bound, so callers can keep statistics exactly balanced across
// duplicate unbind and close paths.
func (s *Session) Unbind() (systemID string, wasBound bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.boundUser == nil {
		return "", false
	}
	systemID = s.boundUser.Name
	s.boundUser = nil
	s.bindMode = pdu.BindNone
	// The departed user's idle override must not outlive the bind.
	s.idleTimeout = s.defaultIdle
	return systemID, true
}

// BoundUser returns the bound user, or nil.
func (s *Session) BoundUser() *user.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundUser
}

func (s *Session) BindMode() pdu.BindMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bindMode
}

func (s *Session) BoundAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundAt
}

// NextSequence issues the next server-initiated sequence number.
func (s *Session) NextSequence() uint32 {
	return s.seq.Add(1)
}

// BeginRequest marks the start of an inbound exchange; responses may be
// written until the matching EndRequest.
func (s *Session) BeginRequest() {
	s.inflight.Add(1)
}

// EndRequest closes the exchange opened by BeginRequest.
func (s *Session) EndRequest() {
	s.inflight.Add(-1)
}

// AcquireWriteLock takes the session write lock for server-initiated
// traffic, waiting at most timeout.
func (s *Session) AcquireWriteLock(timeout time.Duration) error {
	select {
	case s.deliveryLock <- struct{}{}:
		s.lockHeld.Store(true)
		return nil
	case <-s.closed:
		return ErrClosed
	case <-time.After(timeout):
		return ErrWriteLockTimeout
	}
}

// ReleaseWriteLock releases the session write lock.
func (s *Session) ReleaseWriteLock() {
	s.lockHeld.Store(false)
	select {
	case <-s.deliveryLock:
	default:
		// Double release is a programming error but must not block.
	}
}

// Write sends one framed PDU. A write is legal only inside an active
// exchange: either a request is in flight or the write lock is held.
func (s *Session) Write(frame []byte) error {
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	if s.inflight.Load() == 0 && !s.lockHeld.Load() {
		return ErrWriteOutsideExchange
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.conn.Write(frame)
	return err
}

// Close tears the connection down. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
}

// Closed reports session teardown to delivery workers.
func (s *Session) Closed() <-chan struct{} {
	return s.closed
}

// Info is a point-in-time description for reporting surfaces.
type Info struct {
	ID         string    `json:"id"`
	SystemID   string    `json:"system_id,omitempty"`
	Mode       string    `json:"mode,omitempty"`
	RemoteAddr string    `json:"remote_addr"`
	BoundAt    time.Time `json:"bound_at,omitempty"`
	LastAccess time.Time `json:"last_access"`
}

func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{
		ID:         s.id.String(),
		RemoteAddr: s.remoteAddr,
		LastAccess: time.Unix(0, s.lastAccess.Load()),
	}
	if s.boundUser != nil {
		info.SystemID = s.boundUser.Name
		info.Mode = s.bindMode.String()
		info.BoundAt = s.boundAt
	}
	return info
}
