// Package admission decides whether a bind attempt may proceed: a
// two-phase check where password verification is necessary but not
// sufficient, followed by concurrent-bind authorization against the
// user's authority chain.
package admission

import (
	"context"
	"errors"
	"log/slog"

	"github.com/arkosms/smscd/internal/stats"
	"github.com/arkosms/smscd/internal/user"
)

// Controller performs bind admission. Every AuthenticationFailed outcome
// increments the failed-bind statistics before the error propagates;
// admission failures are observable events, not silent errors.
type Controller struct {
	users user.Manager
	stats *stats.Stats
}

func NewController(users user.Manager, st *stats.Stats) *Controller {
	return &Controller{users: users, stats: st}
}

// Authenticate verifies credentials and applies concurrent-bind
// admission. On success the bind is already recorded in the statistics;
// the caller owes a matching Release when the session unbinds or closes.
func (c *Controller) Authenticate(ctx context.Context, systemID, password, remoteAddr string) (*user.User, error) {
	u, err := c.users.Authenticate(ctx, systemID, password)
	if err != nil {
		var af *user.AuthenticationFailed
		if errors.As(err, &af) {
			c.stats.BindFailed(remoteAddr)
		}
		return nil, err
	}

	admitted := c.stats.TryBind(systemID, remoteAddr, func(binds, bindsFromAddr int64) bool {
		req := &user.ConcurrentBindRequest{
			Name:          systemID,
			Addr:          remoteAddr,
			Binds:         binds,
			BindsFromAddr: bindsFromAddr,
		}
		granted := u.Authorize(req)
		if granted == nil {
			return false
		}
		if cbr, ok := granted.(*user.ConcurrentBindRequest); ok {
			slog.DebugContext(ctx, "Concurrent bind authorized",
				slog.Int64("binds", cbr.Binds),
				slog.Int64("binds_from_addr", cbr.BindsFromAddr),
				slog.Int64("max_binds", cbr.MaxBinds),
				slog.Int64("max_binds_per_addr", cbr.MaxBindsPerAddr))
		}
		return true
	})
	if !admitted {
		c.stats.BindFailed(remoteAddr)
		// Indistinguishable from bad credentials on the wire; the log
		// line is the only place the distinction survives.
		slog.WarnContext(ctx, "Bind denied: concurrent-bind limit reached",
			slog.String("system_id", systemID))
		return nil, &user.AuthenticationFailed{SystemID: systemID, Reason: "too many sessions"}
	}
	return u, nil
}

// Release reverses the statistics effect of one successful Authenticate.
func (c *Controller) Release(systemID, remoteAddr string) {
	c.stats.Unbind(systemID, remoteAddr)
}
