package admission

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkosms/smscd/internal/stats"
	"github.com/arkosms/smscd/internal/user"
)

type fakeUsers struct {
	user.Manager
	users map[string]*user.User
}

func (f *fakeUsers) Authenticate(_ context.Context, name, password string) (*user.User, error) {
	u, ok := f.users[name]
	if !ok {
		return nil, &user.AuthenticationFailed{SystemID: name, Reason: "unknown user"}
	}
	if !u.Enabled {
		return nil, &user.AuthenticationFailed{SystemID: name, Reason: "account disabled"}
	}
	if u.Password != password {
		return nil, &user.AuthenticationFailed{SystemID: name, Reason: "invalid password"}
	}
	out := *u
	out.Password = ""
	return &out, nil
}

func limitedUser(name string, maxBinds, maxPerAddr int64) *user.User {
	return &user.User{
		Name:    name,
		Enabled: true,
		Authorities: []user.Authority{
			user.ConcurrentBindPermission{MaxBinds: maxBinds, MaxBindsPerAddr: maxPerAddr},
		},
	}
}

func TestAuthenticateAdmitsWithinLimits(t *testing.T) {
	u := limitedUser("esme1", 2, 0)
	u.Password = "secret"
	st := stats.New()
	c := NewController(&fakeUsers{users: map[string]*user.User{"esme1": u}}, st)

	got, err := c.Authenticate(context.Background(), "esme1", "secret", "10.0.0.9")
	require.NoError(t, err)
	assert.Equal(t, "esme1", got.Name)
	assert.Empty(t, got.Password)
	assert.Equal(t, int64(1), st.CurrentBindsFor("esme1"))
}

func TestAuthenticateBadPasswordRecordsFailure(t *testing.T) {
	u := limitedUser("esme1", 0, 0)
	u.Password = "secret"
	st := stats.New()
	c := NewController(&fakeUsers{users: map[string]*user.User{"esme1": u}}, st)

	_, err := c.Authenticate(context.Background(), "esme1", "wrong", "10.0.0.9")
	var af *user.AuthenticationFailed
	require.ErrorAs(t, err, &af)
	assert.Equal(t, int64(1), st.FailedBinds())
	assert.Equal(t, int64(0), st.CurrentBinds(), "denied attempts never count as binds")
}

func TestAuthenticatePasswordAloneIsNotSufficient(t *testing.T) {
	u := limitedUser("esme1", 1, 0)
	u.Password = "secret"
	st := stats.New()
	c := NewController(&fakeUsers{users: map[string]*user.User{"esme1": u}}, st)

	_, err := c.Authenticate(context.Background(), "esme1", "secret", "10.0.0.9")
	require.NoError(t, err)

	// Correct credentials again, but the concurrency limit is reached.
	_, err = c.Authenticate(context.Background(), "esme1", "secret", "10.0.0.10")
	var af *user.AuthenticationFailed
	require.ErrorAs(t, err, &af)
	assert.Equal(t, int64(1), st.FailedBinds())
	assert.Equal(t, int64(1), st.CurrentBindsFor("esme1"))
}

func TestAuthenticateNoAuthoritiesDeniesEverything(t *testing.T) {
	u := &user.User{Name: "esme1", Enabled: true, Password: "secret"}
	st := stats.New()
	c := NewController(&fakeUsers{users: map[string]*user.User{"esme1": u}}, st)

	_, err := c.Authenticate(context.Background(), "esme1", "secret", "10.0.0.9")
	var af *user.AuthenticationFailed
	require.ErrorAs(t, err, &af)
}

func TestAuthenticateStoreErrorIsNotCountedAsFailedBind(t *testing.T) {
	st := stats.New()
	c := NewController(&erringUsers{}, st)

	_, err := c.Authenticate(context.Background(), "esme1", "secret", "10.0.0.9")
	require.Error(t, err)
	var af *user.AuthenticationFailed
	assert.False(t, errors.As(err, &af))
	assert.Equal(t, int64(0), st.FailedBinds())
}

func TestReleaseReversesAdmission(t *testing.T) {
	u := limitedUser("esme1", 1, 0)
	u.Password = "secret"
	st := stats.New()
	c := NewController(&fakeUsers{users: map[string]*user.User{"esme1": u}}, st)

	_, err := c.Authenticate(context.Background(), "esme1", "secret", "10.0.0.9")
	require.NoError(t, err)
	c.Release("esme1", "10.0.0.9")

	_, err = c.Authenticate(context.Background(), "esme1", "secret", "10.0.0.9")
	assert.NoError(t, err, "released slots are reusable")
}

type erringUsers struct {
	user.Manager
}

func (erringUsers) Authenticate(context.Context, string, string) (*user.User, error) {
	return nil, errors.New("store unavailable")
}
