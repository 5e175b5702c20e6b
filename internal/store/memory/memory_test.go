package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkosms/smscd/internal/auth"
	"github.com/arkosms/smscd/internal/message"
	"github.com/arkosms/smscd/internal/user"
)

func TestUserStoreAuthenticate(t *testing.T) {
	ctx := context.Background()
	s := NewUserStore(auth.Sha256Encryptor{})
	require.NoError(t, s.Save(ctx, &user.User{Name: "esme1", Enabled: true}, "secret"))

	u, err := s.Authenticate(ctx, "esme1", "secret")
	require.NoError(t, err)
	assert.Empty(t, u.Password, "stored credentials never leave the store")

	_, err = s.Authenticate(ctx, "esme1", "wrong")
	var af *user.AuthenticationFailed
	require.ErrorAs(t, err, &af)
	assert.Equal(t, "invalid password", af.Reason)
}

func TestUserStoreDisabledFailsBeforePassword(t *testing.T) {
	ctx := context.Background()
	s := NewUserStore(auth.Sha256Encryptor{})
	require.NoError(t, s.Save(ctx, &user.User{Name: "esme1", Enabled: false}, "secret"))

	_, err := s.Authenticate(ctx, "esme1", "secret")
	var af *user.AuthenticationFailed
	require.ErrorAs(t, err, &af)
	assert.Equal(t, "account disabled", af.Reason)
}

func TestUserStoreSaveKeepsPasswordWhenBlank(t *testing.T) {
	ctx := context.Background()
	s := NewUserStore(auth.Sha256Encryptor{})
	require.NoError(t, s.Save(ctx, &user.User{Name: "esme1", Enabled: true}, "secret"))
	require.NoError(t, s.Save(ctx, &user.User{Name: "esme1", Enabled: true, Admin: true}, ""))

	u, err := s.Authenticate(ctx, "esme1", "secret")
	require.NoError(t, err)
	assert.True(t, u.Admin)
}

func TestMessageStoreReplaceChains(t *testing.T) {
	ctx := context.Background()
	s := NewMessageStore()
	orig := &message.ShortMessage{Recipient: "esme1", Payload: []byte("first")}
	require.NoError(t, s.Submit(ctx, orig))

	repl, err := s.Replace(ctx, orig.ID, &message.ShortMessage{Recipient: "esme1", Payload: []byte("second")})
	require.NoError(t, err)
	assert.NotEqual(t, orig.ID, repl.ID, "replacement is a new message, not a mutation")
	assert.Equal(t, orig.ID, repl.Replaced)

	stored, err := s.SelectByID(ctx, orig.ID)
	require.NoError(t, err)
	assert.Equal(t, message.StatusCanceled, stored.Status)
	assert.Equal(t, repl.ID, stored.ReplacedBy)
	assert.Equal(t, []byte("first"), stored.Payload, "the original's payload survives the replacement")
}

func TestMessageStoreReplaceNonPendingFails(t *testing.T) {
	ctx := context.Background()
	s := NewMessageStore()
	orig := &message.ShortMessage{Recipient: "esme1"}
	require.NoError(t, s.Submit(ctx, orig))
	require.NoError(t, s.MarkDelivered(ctx, orig.ID))

	_, err := s.Replace(ctx, orig.ID, &message.ShortMessage{Recipient: "esme1"})
	assert.ErrorIs(t, err, message.ErrOriginalNotFound)

	_, err = s.Replace(ctx, "no-such-id", &message.ShortMessage{Recipient: "esme1"})
	assert.ErrorIs(t, err, message.ErrOriginalNotFound)
}

func TestMessageStoreCancel(t *testing.T) {
	ctx := context.Background()
	s := NewMessageStore()
	m := &message.ShortMessage{Recipient: "esme1"}
	require.NoError(t, s.Submit(ctx, m))
	require.NoError(t, s.Cancel(ctx, m.ID))
	assert.ErrorIs(t, s.Cancel(ctx, m.ID), message.ErrOriginalNotFound, "only pending messages cancel")
}

func TestMessageStorePendingForUser(t *testing.T) {
	ctx := context.Background()
	s := NewMessageStore()
	require.NoError(t, s.Submit(ctx, &message.ShortMessage{Recipient: "esme1"}))
	require.NoError(t, s.Submit(ctx, &message.ShortMessage{Recipient: "esme2"}))
	delivered := &message.ShortMessage{Recipient: "esme1"}
	require.NoError(t, s.Submit(ctx, delivered))
	require.NoError(t, s.MarkDelivered(ctx, delivered.ID))

	pending, err := s.PendingForUser(ctx, "esme1")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}
