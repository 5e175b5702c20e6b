package delivery

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/arkosms/smscd/internal/message"
	"github.com/arkosms/smscd/internal/stats"
)

var (
	ErrAlreadyStarted = errors.New("delivery: scheduler already started")
	ErrNotStarted     = errors.New("delivery: scheduler not started")
)

// Receiver is a bound session capable of accepting server-initiated
// messages. Deliver blocks until the frame is written or fails.
type Receiver interface {
	// ID identifies this registration. One bound session is one
	// receiver; a user bound on several sessions registers each one.
	ID() string
	// SystemID is the user the receiver delivers for.
	SystemID() string
	Deliver(m *message.ShortMessage) error
}

// managerPollInterval is how often a manager re-checks the queue gate
// when nothing is due.
const managerPollInterval = 100 * time.Millisecond

// Config sizes the two scheduler tiers.
type Config struct {
	ManagerThreads  int
	DeliveryThreads int
	// PollTime is the flat revisit interval for a registered receiver.
	PollTime time.Duration
	// RetryPeriods is accepted from configuration but rescheduling uses
	// the flat PollTime; see the note on NewScheduler.
	RetryPeriods []time.Duration
}

// Scheduler runs the two-tier delivery pipeline. Managers watch the
// time-gated queue and hand due work to delivery workers over an
// unbuffered channel, so a slow delivery tier backpressures the
// managers instead of piling up dispatched work.
//
// Lifecycle: Start is one-shot. Suspend tears both pools down and
// interrupts in-flight work; Resume recreates them. Destroy is the only
// way back to the never-started state.
type Scheduler struct {
	queue    *Queue
	messages message.Manager
	stats    *stats.Stats
	clock    Clock
	cfg      Config

	mu        sync.RWMutex
	receivers map[string]Receiver

	lifeMu  sync.Mutex
	started bool
	running bool
	cancel  context.CancelFunc
	poolWg  *sync.WaitGroup
}

// NewScheduler builds a scheduler. RetryPeriods are stored but the
// reschedule logic is a flat PollTime interval; escalating backoff was
// never wired up and is not assumed here.
func NewScheduler(msgs message.Manager, st *stats.Stats, clock Clock, cfg Config) *Scheduler {
	if clock == nil {
		clock = realClock{}
	}
	return &Scheduler{
		queue:     NewQueue(clock),
		messages:  msgs,
		stats:     st,
		clock:     clock,
		cfg:       cfg,
		receivers: make(map[string]Receiver),
	}
}

// Start launches the manager and delivery tiers. It fails if the
// scheduler was already started and not destroyed since.
func (s *Scheduler) Start(ctx context.Context) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	s.startPools(ctx)
	slog.InfoContext(ctx, "Delivery scheduler started",
		slog.Int("manager_threads", s.cfg.ManagerThreads),
		slog.Int("delivery_threads", s.cfg.DeliveryThreads),
		slog.Duration("poll_time", s.cfg.PollTime))
	return nil
}

// Suspend tears both pools down. Queued work and registrations are
// preserved, so Resume picks up where the pools left off.
func (s *Scheduler) Suspend() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	s.stopPools()
}

// Resume recreates the pools after a Suspend.
func (s *Scheduler) Resume(ctx context.Context) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if !s.started {
		return ErrNotStarted
	}
	if !s.running {
		s.startPools(ctx)
	}
	return nil
}

// Destroy performs final teardown and returns the scheduler to the
// never-started state.
func (s *Scheduler) Destroy() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	s.stopPools()
	s.started = false
}

// startPools requires lifeMu.
func (s *Scheduler) startPools(ctx context.Context) {
	poolCtx, cancel := context.WithCancel(ctx)
	wg := &sync.WaitGroup{}
	s.cancel = cancel
	s.poolWg = wg
	s.running = true

	handoff := make(chan string)
	for i := 0; i < s.cfg.ManagerThreads; i++ {
		wg.Add(1)
		go s.runManager(poolCtx, wg, handoff)
	}
	for i := 0; i < s.cfg.DeliveryThreads; i++ {
		wg.Add(1)
		go s.runWorker(poolCtx, wg, handoff)
	}
}

// stopPools requires lifeMu.
func (s *Scheduler) stopPools() {
	if !s.running {
		return
	}
	s.cancel()
	s.poolWg.Wait()
	s.running = false
}

// Register adds a receiver and schedules an immediate poll so messages
// queued while the user was offline go out right away. Registrations
// are keyed by receiver id: a user's other sessions are untouched.
func (s *Scheduler) Register(r Receiver) {
	s.mu.Lock()
	s.receivers[r.ID()] = r
	s.mu.Unlock()
	s.queue.Push(r.ID(), s.clock.Now())
}

// Deregister drops one session's registration and its queued polls.
func (s *Scheduler) Deregister(sessionID string) {
	s.mu.Lock()
	delete(s.receivers, sessionID)
	s.mu.Unlock()
	s.queue.Remove(sessionID)
}

func (s *Scheduler) receiver(sessionID string) (Receiver, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.receivers[sessionID]
	return r, ok
}

func (s *Scheduler) runManager(ctx context.Context, wg *sync.WaitGroup, handoff chan<- string) {
	defer wg.Done()
	ticker := time.NewTicker(managerPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for {
			sessionID, ok := s.queue.PopDue()
			if !ok {
				break
			}
			select {
			case handoff <- sessionID:
			case <-ctx.Done():
				// Interrupted mid-handoff; the item returns to the queue
				// so no poll work is lost across a suspend.
				s.queue.Push(sessionID, s.clock.Now())
				return
			}
		}
	}
}

func (s *Scheduler) runWorker(ctx context.Context, wg *sync.WaitGroup, handoff <-chan string) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case sessionID := <-handoff:
			s.deliverPending(ctx, sessionID)
			// Revisit unconditionally at the flat poll interval; the
			// receiver may have gone away by the next visit, in which
			// case the item is dropped at pop time.
			if _, ok := s.receiver(sessionID); ok {
				s.queue.Push(sessionID, s.clock.Now().Add(s.cfg.PollTime))
			}
		}
	}
}

// deliverPending pushes the registered session's deliverable messages
// out. Failures are per-message: one bad message never stops the rest
// of the batch.
func (s *Scheduler) deliverPending(ctx context.Context, sessionID string) {
	r, ok := s.receiver(sessionID)
	if !ok {
		return
	}
	systemID := r.SystemID()
	pending, err := s.messages.PendingForUser(ctx, systemID)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load pending messages",
			slog.String("system_id", systemID), slog.Any("error", err))
		return
	}
	for _, m := range pending {
		now := s.clock.Now()
		// Expiry is checked before every send attempt, never after.
		if m.Expired(now) {
			if err := s.messages.MarkExpired(ctx, m.ID); err != nil {
				slog.ErrorContext(ctx, "Failed to expire message",
					slog.String("message_id", m.ID), slog.Any("error", err))
			}
			continue
		}
		if !m.Deliverable(now) {
			continue
		}
		if err := r.Deliver(m); err != nil {
			slog.WarnContext(ctx, "Delivery attempt failed",
				slog.String("message_id", m.ID),
				slog.String("system_id", systemID),
				slog.Any("error", err))
			continue
		}
		if err := s.messages.MarkDelivered(ctx, m.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to mark message delivered",
				slog.String("message_id", m.ID), slog.Any("error", err))
			continue
		}
		s.stats.MessageSent(systemID)
	}
}
