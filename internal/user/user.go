// Package user holds the account model: identities, their capability
// grants, and the store contract the server authenticates against.
package user

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by lookups for unknown user names.
var ErrNotFound = errors.New("user: not found")

// AuthenticationFailed is the typed failure for a rejected bind attempt.
// The Reason is logged server-side; clients only ever see a bind-failure
// status on the wire.
type AuthenticationFailed struct {
	SystemID string
	Reason   string
}

func (e *AuthenticationFailed) Error() string {
	return fmt.Sprintf("authentication failed for %q: %s", e.SystemID, e.Reason)
}

// UnlimitedIdle as a MaxIdleTime override means the user is never
// idle-disconnected, regardless of the listener default.
const UnlimitedIdle = time.Duration(-1)

// User is one account an ESME can bind as.
type User struct {
	Name     string
	Password string // encrypted at rest; cleared before lookup APIs return
	Enabled  bool
	Admin    bool
	// MaxIdleTime overrides the listener idle timeout. Zero means no
	// override; UnlimitedIdle disables idle disconnection.
	MaxIdleTime time.Duration
	// Authorities is the ordered capability list consulted for every
	// authorization request. An empty list denies everything.
	Authorities []Authority
}

// Authorize runs req through the user's authority chain. The first
// authority to grant wins and its decorated request is returned. A user
// with no authorities, or whose authorities all decline, denies the
// request: at least one authority must affirmatively grant.
func (u *User) Authorize(req AuthorizationRequest) AuthorizationRequest {
	for _, a := range u.Authorities {
		if granted := a.Grant(req); granted != nil {
			return granted
		}
	}
	return nil
}

// EffectiveIdleTime resolves the idle timeout for a session of this
// user: the smaller of the listener default and the user override,
// unless the override is unlimited.
func (u *User) EffectiveIdleTime(listenerDefault time.Duration) time.Duration {
	if u.MaxIdleTime == UnlimitedIdle {
		return UnlimitedIdle
	}
	if u.MaxIdleTime == 0 {
		return listenerDefault
	}
	if u.MaxIdleTime < listenerDefault {
		return u.MaxIdleTime
	}
	return listenerDefault
}

// Manager is the external user-store collaborator.
type Manager interface {
	// Authenticate verifies credentials and returns the user with the
	// password field cleared. Disabled users and bad passwords both fail
	// with *AuthenticationFailed.
	Authenticate(ctx context.Context, name, password string) (*User, error)
	UserByName(ctx context.Context, name string) (*User, error)
	Exists(ctx context.Context, name string) (bool, error)
	Save(ctx context.Context, u *User, plainPassword string) error
	Delete(ctx context.Context, name string) error
	IsAdmin(ctx context.Context, name string) (bool, error)
	AllUserNames(ctx context.Context) ([]string, error)
}
