// Package postgres backs the user and message stores with pgx. Schema
// management is external; these stores only read and write.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arkosms/smscd/internal/auth"
	"github.com/arkosms/smscd/internal/user"
)

// UserStore is a pgx-backed user.Manager.
type UserStore struct {
	pool      *pgxpool.Pool
	encryptor auth.PasswordEncryptor
}

func NewUserStore(pool *pgxpool.Pool, enc auth.PasswordEncryptor) *UserStore {
	return &UserStore{pool: pool, encryptor: enc}
}

const selectUserSQL = `
SELECT name, password, enabled, admin, max_idle_seconds, max_binds, max_binds_per_addr
FROM smsc_users WHERE name = $1`

type userRow struct {
	name            string
	password        string
	enabled         bool
	admin           bool
	maxIdleSeconds  int64
	maxBinds        int64
	maxBindsPerAddr int64
}

func (r userRow) toUser() *user.User {
	u := &user.User{
		Name:     r.name,
		Password: r.password,
		Enabled:  r.enabled,
		Admin:    r.admin,
		Authorities: []user.Authority{
			user.ConcurrentBindPermission{
				MaxBinds:        r.maxBinds,
				MaxBindsPerAddr: r.maxBindsPerAddr,
			},
		},
	}
	switch {
	case r.maxIdleSeconds < 0:
		u.MaxIdleTime = user.UnlimitedIdle
	case r.maxIdleSeconds > 0:
		u.MaxIdleTime = time.Duration(r.maxIdleSeconds) * time.Second
	}
	return u
}

func (s *UserStore) fetch(ctx context.Context, name string) (*user.User, error) {
	var r userRow
	err := s.pool.QueryRow(ctx, selectUserSQL, name).Scan(
		&r.name, &r.password, &r.enabled, &r.admin, &r.maxIdleSeconds, &r.maxBinds, &r.maxBindsPerAddr)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, user.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user %q: %w", name, err)
	}
	return r.toUser(), nil
}

func (s *UserStore) Authenticate(ctx context.Context, name, password string) (*user.User, error) {
	u, err := s.fetch(ctx, name)
	if errors.Is(err, user.ErrNotFound) {
		return nil, &user.AuthenticationFailed{SystemID: name, Reason: "unknown user"}
	}
	if err != nil {
		return nil, err
	}
	if !u.Enabled {
		return nil, &user.AuthenticationFailed{SystemID: name, Reason: "account disabled"}
	}
	if !s.encryptor.Matches(password, u.Password) {
		return nil, &user.AuthenticationFailed{SystemID: name, Reason: "invalid password"}
	}
	u.Password = ""
	return u, nil
}

func (s *UserStore) UserByName(ctx context.Context, name string) (*user.User, error) {
	u, err := s.fetch(ctx, name)
	if err != nil {
		return nil, err
	}
	u.Password = ""
	return u, nil
}

func (s *UserStore) Exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM smsc_users WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("user exists %q: %w", name, err)
	}
	return exists, nil
}

const upsertUserSQL = `
INSERT INTO smsc_users (name, password, enabled, admin, max_idle_seconds, max_binds, max_binds_per_addr)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (name) DO UPDATE SET
	password           = COALESCE(NULLIF(EXCLUDED.password, ''), smsc_users.password),
	enabled            = EXCLUDED.enabled,
	admin              = EXCLUDED.admin,
	max_idle_seconds   = EXCLUDED.max_idle_seconds,
	max_binds          = EXCLUDED.max_binds,
	max_binds_per_addr = EXCLUDED.max_binds_per_addr`

func (s *UserStore) Save(ctx context.Context, u *user.User, plainPassword string) error {
	encrypted := ""
	if plainPassword != "" {
		var err error
		if encrypted, err = s.encryptor.Encrypt(plainPassword); err != nil {
			return fmt.Errorf("encrypt password for %q: %w", u.Name, err)
		}
	}

	var maxIdleSeconds int64
	switch {
	case u.MaxIdleTime == user.UnlimitedIdle:
		maxIdleSeconds = -1
	case u.MaxIdleTime > 0:
		maxIdleSeconds = int64(u.MaxIdleTime / time.Second)
	}

	var maxBinds, maxBindsPerAddr int64
	for _, a := range u.Authorities {
		if p, ok := a.(user.ConcurrentBindPermission); ok {
			maxBinds, maxBindsPerAddr = p.MaxBinds, p.MaxBindsPerAddr
			break
		}
	}

	_, err := s.pool.Exec(ctx, upsertUserSQL,
		u.Name, encrypted, u.Enabled, u.Admin, maxIdleSeconds, maxBinds, maxBindsPerAddr)
	if err != nil {
		return fmt.Errorf("save user %q: %w", u.Name, err)
	}
	return nil
}

func (s *UserStore) Delete(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM smsc_users WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete user %q: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (s *UserStore) IsAdmin(ctx context.Context, name string) (bool, error) {
	var admin bool
	err := s.pool.QueryRow(ctx, `SELECT admin FROM smsc_users WHERE name = $1`, name).Scan(&admin)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, user.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("is admin %q: %w", name, err)
	}
	return admin, nil
}

func (s *UserStore) AllUserNames(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT name FROM smsc_users ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
