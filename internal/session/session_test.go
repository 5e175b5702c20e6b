package session

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkosms/smscd/internal/pdu"
	"github.com/arkosms/smscd/internal/user"
)

func newTestSession(t *testing.T) (*Session, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return New(server, "10.0.0.9:41000", 10*time.Minute), client
}

func TestBindOnce(t *testing.T) {
	s, _ := newTestSession(t)
	u := &user.User{Name: "esme1"}

	require.NoError(t, s.Bind(u, pdu.BindTransceiverMode, 10*time.Minute))
	assert.ErrorIs(t, s.Bind(u, pdu.BindReceiverMode, 10*time.Minute), ErrAlreadyBound)
	assert.Equal(t, "esme1", s.BoundUser().Name)
}

func TestUnbindReportsWasBound(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.Bind(&user.User{Name: "esme1"}, pdu.BindReceiverMode, time.Minute))

	name, wasBound := s.Unbind()
	assert.True(t, wasBound)
	assert.Equal(t, "esme1", name)

	_, wasBound = s.Unbind()
	assert.False(t, wasBound, "a second unbind must not report bound again")
	assert.Nil(t, s.BoundUser())
}

func TestIdleUsesEffectiveTimeout(t *testing.T) {
	s, _ := newTestSession(t)
	u := &user.User{Name: "esme1", MaxIdleTime: time.Second}
	require.NoError(t, s.Bind(u, pdu.BindReceiverMode, 10*time.Minute))

	assert.False(t, s.Idle(time.Now()))
	assert.True(t, s.Idle(time.Now().Add(2*time.Second)), "the user override shortens the listener default")
}

func TestUnbindRestoresDefaultIdleTimeout(t *testing.T) {
	s, _ := newTestSession(t)
	u := &user.User{Name: "esme1", MaxIdleTime: time.Second}
	require.NoError(t, s.Bind(u, pdu.BindReceiverMode, 10*time.Minute))
	require.True(t, s.Idle(time.Now().Add(2*time.Second)))

	_, wasBound := s.Unbind()
	require.True(t, wasBound)
	assert.False(t, s.Idle(time.Now().Add(2*time.Second)),
		"an unbound session falls back to the listener default")
}

func TestIdleUnlimitedNeverExpires(t *testing.T) {
	s, _ := newTestSession(t)
	u := &user.User{Name: "esme1", MaxIdleTime: user.UnlimitedIdle}
	require.NoError(t, s.Bind(u, pdu.BindReceiverMode, time.Millisecond))

	assert.False(t, s.Idle(time.Now().Add(time.Hour)))
}

func TestWriteLockTimesOut(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.AcquireWriteLock(time.Second))

	err := s.AcquireWriteLock(20 * time.Millisecond)
	assert.ErrorIs(t, err, ErrWriteLockTimeout)

	s.ReleaseWriteLock()
	assert.NoError(t, s.AcquireWriteLock(time.Second))
}

func TestWriteLockReleasedOnClose(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.AcquireWriteLock(time.Second))
	s.Close()

	err := s.AcquireWriteLock(time.Second)
	assert.ErrorIs(t, err, ErrClosed, "waiters must not hang on a dead session")
}

func TestWriteAfterCloseFails(t *testing.T) {
	s, _ := newTestSession(t)
	s.BeginRequest()
	defer s.EndRequest()
	s.Close()
	s.Close() // idempotent
	assert.ErrorIs(t, s.Write([]byte{0}), ErrClosed)
}

func TestWriteOutsideExchangeFails(t *testing.T) {
	s, _ := newTestSession(t)
	assert.ErrorIs(t, s.Write([]byte{0}), ErrWriteOutsideExchange)

	s.BeginRequest()
	s.EndRequest()
	assert.ErrorIs(t, s.Write([]byte{0}), ErrWriteOutsideExchange,
		"the exchange ends with the request")
}

func TestWriteReachesPeer(t *testing.T) {
	s, client := newTestSession(t)
	payload := []byte{0x00, 0x00, 0x00, 0x10}

	s.BeginRequest()
	defer s.EndRequest()
	done := make(chan error, 1)
	go func() { done <- s.Write(payload) }()

	buf := make([]byte, len(payload))
	_, err := client.Read(buf)
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, payload, buf)
}

func TestNextSequenceIsMonotonic(t *testing.T) {
	s, _ := newTestSession(t)
	assert.Equal(t, uint32(1), s.NextSequence())
	assert.Equal(t, uint32(2), s.NextSequence())
}

func TestInfoReflectsBindState(t *testing.T) {
	s, _ := newTestSession(t)
	info := s.Info()
	assert.Empty(t, info.SystemID)
	assert.Equal(t, "10.0.0.9:41000", info.RemoteAddr)

	require.NoError(t, s.Bind(&user.User{Name: "esme1"}, pdu.BindTransceiverMode, time.Minute))
	info = s.Info()
	assert.Equal(t, "esme1", info.SystemID)
	assert.NotZero(t, info.BoundAt)
}
