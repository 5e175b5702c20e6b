package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkosms/smscd/internal/message"
	"github.com/arkosms/smscd/internal/stats"
	"github.com/arkosms/smscd/internal/store/memory"
)

type fakeReceiver struct {
	id       string
	systemID string
	failOn   map[string]error

	mu        sync.Mutex
	delivered []*message.ShortMessage
}

func (r *fakeReceiver) ID() string       { return r.id }
func (r *fakeReceiver) SystemID() string { return r.systemID }

func (r *fakeReceiver) Deliver(m *message.ShortMessage) error {
	if err := r.failOn[string(m.Payload)]; err != nil {
		return err
	}
	r.mu.Lock()
	r.delivered = append(r.delivered, m)
	r.mu.Unlock()
	return nil
}

func (r *fakeReceiver) deliveredPayloads() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.delivered))
	for i, m := range r.delivered {
		out[i] = string(m.Payload)
	}
	return out
}

func startScheduler(t *testing.T, store *memory.MessageStore, st *stats.Stats, clock Clock) *Scheduler {
	t.Helper()
	s := NewScheduler(store, st, clock, Config{
		ManagerThreads:  2,
		DeliveryThreads: 4,
		PollTime:        50 * time.Millisecond,
	})
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Destroy)
	return s
}

func TestSchedulerStartIsOneShot(t *testing.T) {
	s := startScheduler(t, memory.NewMessageStore(), stats.New(), nil)
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)

	s.Destroy()
	assert.NoError(t, s.Start(context.Background()), "destroy returns the scheduler to never-started")
}

func TestSchedulerResumeRequiresStart(t *testing.T) {
	s := NewScheduler(memory.NewMessageStore(), stats.New(), nil, Config{
		ManagerThreads:  1,
		DeliveryThreads: 1,
		PollTime:        50 * time.Millisecond,
	})
	assert.ErrorIs(t, s.Resume(context.Background()), ErrNotStarted)
}

func TestSchedulerDeliversPendingOnRegister(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMessageStore()
	st := stats.New()
	msg := &message.ShortMessage{Recipient: "esme1", Payload: []byte("hello")}
	require.NoError(t, store.Submit(ctx, msg))

	s := startScheduler(t, store, st, nil)
	r := &fakeReceiver{id: "sess-1", systemID: "esme1"}
	s.Register(r)

	assert.Eventually(t, func() bool {
		return len(r.deliveredPayloads()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	stored, err := store.SelectByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, message.StatusDelivered, stored.Status)
	assert.Equal(t, int64(1), st.MessagesSent())
}

func TestSchedulerExpiresBeforeSending(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMessageStore()
	expired := &message.ShortMessage{
		Recipient:      "esme1",
		Payload:        []byte("stale"),
		ValidityPeriod: time.Now().Add(-time.Minute),
	}
	fresh := &message.ShortMessage{Recipient: "esme1", Payload: []byte("fresh")}
	require.NoError(t, store.Submit(ctx, expired))
	require.NoError(t, store.Submit(ctx, fresh))

	s := startScheduler(t, store, stats.New(), nil)
	r := &fakeReceiver{id: "sess-1", systemID: "esme1"}
	s.Register(r)

	assert.Eventually(t, func() bool {
		return len(r.deliveredPayloads()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"fresh"}, r.deliveredPayloads(), "expired messages never reach the wire")
	stored, err := store.SelectByID(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, message.StatusExpired, stored.Status)
}

func TestSchedulerHonorsScheduleTime(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := memory.NewMessageStore()
	scheduled := &message.ShortMessage{
		Recipient:    "esme1",
		Payload:      []byte("later"),
		ScheduleTime: clock.Now().Add(time.Hour),
	}
	require.NoError(t, store.Submit(ctx, scheduled))

	s := startScheduler(t, store, stats.New(), clock)
	r := &fakeReceiver{id: "sess-1", systemID: "esme1"}
	s.Register(r)

	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, r.deliveredPayloads())

	clock.Advance(2 * time.Hour)
	assert.Eventually(t, func() bool {
		return len(r.deliveredPayloads()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerFailedDeliveryStaysPending(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMessageStore()
	bad := &message.ShortMessage{Recipient: "esme1", Payload: []byte("bad")}
	good := &message.ShortMessage{Recipient: "esme1", Payload: []byte("good")}
	require.NoError(t, store.Submit(ctx, bad))
	require.NoError(t, store.Submit(ctx, good))

	s := startScheduler(t, store, stats.New(), nil)
	r := &fakeReceiver{
		id:       "sess-1",
		systemID: "esme1",
		failOn:   map[string]error{"bad": errors.New("write timed out")},
	}
	s.Register(r)

	assert.Eventually(t, func() bool {
		return len(r.deliveredPayloads()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	stored, err := store.SelectByID(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, message.StatusPending, stored.Status, "a failed send is retried on a later poll")
}

func TestSchedulerDeregisterStopsDelivery(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMessageStore()
	s := startScheduler(t, store, stats.New(), nil)
	r := &fakeReceiver{id: "sess-1", systemID: "esme1"}
	s.Register(r)
	s.Deregister("sess-1")

	require.NoError(t, store.Submit(ctx, &message.ShortMessage{Recipient: "esme1", Payload: []byte("hello")}))
	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, r.deliveredPayloads())
}

func TestSchedulerKeepsOtherSessionsOfSameUser(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMessageStore()
	s := startScheduler(t, store, stats.New(), nil)

	// One user bound twice as a receiver: each session registers on its
	// own, and one leaving must not silence the other.
	first := &fakeReceiver{id: "sess-1", systemID: "esme1"}
	second := &fakeReceiver{id: "sess-2", systemID: "esme1"}
	s.Register(first)
	s.Register(second)
	s.Deregister(first.ID())

	require.NoError(t, store.Submit(ctx, &message.ShortMessage{Recipient: "esme1", Payload: []byte("hello")}))
	assert.Eventually(t, func() bool {
		return len(second.deliveredPayloads()) == 1
	}, 2*time.Second, 10*time.Millisecond, "the still-bound session keeps receiving")
	assert.Empty(t, first.deliveredPayloads())
}

func TestSchedulerSuspendResume(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMessageStore()
	require.NoError(t, store.Submit(ctx, &message.ShortMessage{Recipient: "esme1", Payload: []byte("hello")}))

	s := startScheduler(t, store, stats.New(), nil)
	s.Suspend()
	r := &fakeReceiver{id: "sess-1", systemID: "esme1"}
	s.Register(r)

	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, r.deliveredPayloads(), "a suspended scheduler dispatches nothing")

	require.NoError(t, s.Resume(context.Background()))
	assert.Eventually(t, func() bool {
		return len(r.deliveredPayloads()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
