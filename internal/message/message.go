// Package message holds the short-message model and the store contract
// the delivery path depends on.
package message

import (
	"context"
	"errors"
	"time"
)

// ErrOriginalNotFound is returned by Cancel and Replace when the message
// they refer to does not exist or is no longer pending.
var ErrOriginalNotFound = errors.New("message: original not found")

// Status is the delivery state of a stored message.
type Status int

const (
	StatusPending Status = iota
	StatusDelivered
	StatusExpired
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusDelivered:
		return "DELIVERED"
	case StatusExpired:
		return "EXPIRED"
	case StatusCanceled:
		return "CANCELED"
	default:
		return "UNKNOWN"
	}
}

// Address is a source or destination address with its TON/NPI pair.
type Address struct {
	TON  byte
	NPI  byte
	Addr string
}

// ShortMessage is one stored message. Replacement never mutates a
// message in place: replacing produces a new message whose Replaced
// field names the original, and the original's ReplacedBy is set to the
// new id, forming an append-only chain.
type ShortMessage struct {
	ID        string
	Recipient string // system id of the user the message is addressed to
	Source    Address
	Dest      Address
	Payload   []byte
	// ValidityPeriod and ScheduleTime are absolute instants; the zero
	// time means "not set".
	ValidityPeriod time.Time
	ScheduleTime   time.Time
	Status         Status
	Replaced       string // id of the message this one replaced
	ReplacedBy     string // id of the message that replaced this one
	SubmittedAt    time.Time
}

// Expired reports whether the message's validity period has passed.
func (m *ShortMessage) Expired(now time.Time) bool {
	return !m.ValidityPeriod.IsZero() && m.ValidityPeriod.Before(now)
}

// Deliverable reports whether the message may be pushed out now: it is
// pending, unexpired, and any scheduled delivery time has arrived.
func (m *ShortMessage) Deliverable(now time.Time) bool {
	if m.Status != StatusPending || m.Expired(now) {
		return false
	}
	return m.ScheduleTime.IsZero() || !m.ScheduleTime.After(now)
}

// Manager is the external message-store collaborator.
type Manager interface {
	// Submit stores a new message. The store assigns the id if empty.
	Submit(ctx context.Context, m *ShortMessage) error
	// Cancel marks a pending message CANCELED.
	Cancel(ctx context.Context, id string) error
	// Replace stores replacement as a new message chained to the pending
	// original and returns the replacement. Fails with
	// ErrOriginalNotFound if the original is missing or not pending.
	Replace(ctx context.Context, originalID string, replacement *ShortMessage) (*ShortMessage, error)
	// SelectByID returns the message or nil when unknown.
	SelectByID(ctx context.Context, id string) (*ShortMessage, error)
	// PendingForUser returns the pending messages addressed to a user.
	PendingForUser(ctx context.Context, name string) ([]*ShortMessage, error)
	// MarkExpired flips a message to EXPIRED.
	MarkExpired(ctx context.Context, id string) error
	// MarkDelivered flips a message to DELIVERED.
	MarkDelivered(ctx context.Context, id string) error
}
