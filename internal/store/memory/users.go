// Package memory provides map-backed stores for development and tests.
// They honor the same contracts as the Postgres stores, so the server
// can run without a database.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/arkosms/smscd/internal/auth"
	"github.com/arkosms/smscd/internal/user"
)

// UserStore is an in-memory user.Manager.
type UserStore struct {
	mu        sync.RWMutex
	users     map[string]*user.User
	encryptor auth.PasswordEncryptor
}

func NewUserStore(enc auth.PasswordEncryptor) *UserStore {
	return &UserStore{
		users:     make(map[string]*user.User),
		encryptor: enc,
	}
}

func (s *UserStore) Authenticate(_ context.Context, name, password string) (*user.User, error) {
	s.mu.RLock()
	u, ok := s.users[name]
	s.mu.RUnlock()
	if !ok {
		return nil, &user.AuthenticationFailed{SystemID: name, Reason: "unknown user"}
	}
	// Disabled accounts fail before the password is even looked at.
	if !u.Enabled {
		return nil, &user.AuthenticationFailed{SystemID: name, Reason: "account disabled"}
	}
	if !s.encryptor.Matches(password, u.Password) {
		return nil, &user.AuthenticationFailed{SystemID: name, Reason: "invalid password"}
	}
	out := copyUser(u)
	out.Password = ""
	return out, nil
}

func (s *UserStore) UserByName(_ context.Context, name string) (*user.User, error) {
	s.mu.RLock()
	u, ok := s.users[name]
	s.mu.RUnlock()
	if !ok {
		return nil, user.ErrNotFound
	}
	out := copyUser(u)
	out.Password = ""
	return out, nil
}

func (s *UserStore) Exists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	_, ok := s.users[name]
	s.mu.RUnlock()
	return ok, nil
}

func (s *UserStore) Save(_ context.Context, u *user.User, plainPassword string) error {
	stored := copyUser(u)
	if plainPassword != "" {
		enc, err := s.encryptor.Encrypt(plainPassword)
		if err != nil {
			return err
		}
		stored.Password = enc
	} else {
		s.mu.RLock()
		if prev, ok := s.users[u.Name]; ok {
			stored.Password = prev.Password
		}
		s.mu.RUnlock()
	}
	s.mu.Lock()
	s.users[u.Name] = stored
	s.mu.Unlock()
	return nil
}

func (s *UserStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[name]; !ok {
		return user.ErrNotFound
	}
	delete(s.users, name)
	return nil
}

func (s *UserStore) IsAdmin(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	u, ok := s.users[name]
	s.mu.RUnlock()
	if !ok {
		return false, user.ErrNotFound
	}
	return u.Admin, nil
}

func (s *UserStore) AllUserNames(_ context.Context) ([]string, error) {
	s.mu.RLock()
	names := make([]string, 0, len(s.users))
	for name := range s.users {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	return names, nil
}

func copyUser(u *user.User) *user.User {
	out := *u
	out.Authorities = append([]user.Authority(nil), u.Authorities...)
	return &out
}
