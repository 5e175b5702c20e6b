package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arkosms/smscd/internal/message"
)

// MessageStore is a pgx-backed message.Manager.
type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

const messageColumns = `
id, recipient, src_ton, src_npi, src_addr, dst_ton, dst_npi, dst_addr,
payload, validity_period, schedule_time, status, replaced, replaced_by, submitted_at`

func scanMessage(row pgx.Row) (*message.ShortMessage, error) {
	var (
		m                    message.ShortMessage
		validity, schedule   *time.Time
		replaced, replacedBy *string
	)
	err := row.Scan(&m.ID, &m.Recipient,
		&m.Source.TON, &m.Source.NPI, &m.Source.Addr,
		&m.Dest.TON, &m.Dest.NPI, &m.Dest.Addr,
		&m.Payload, &validity, &schedule, &m.Status, &replaced, &replacedBy, &m.SubmittedAt)
	if err != nil {
		return nil, err
	}
	if validity != nil {
		m.ValidityPeriod = *validity
	}
	if schedule != nil {
		m.ScheduleTime = *schedule
	}
	if replaced != nil {
		m.Replaced = *replaced
	}
	if replacedBy != nil {
		m.ReplacedBy = *replacedBy
	}
	return &m, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

const insertMessageSQL = `
INSERT INTO smsc_messages
	(id, recipient, src_ton, src_npi, src_addr, dst_ton, dst_npi, dst_addr,
	 payload, validity_period, schedule_time, status, replaced, submitted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

func (s *MessageStore) Submit(ctx context.Context, m *message.ShortMessage) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.SubmittedAt.IsZero() {
		m.SubmittedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, insertMessageSQL,
		m.ID, m.Recipient,
		m.Source.TON, m.Source.NPI, m.Source.Addr,
		m.Dest.TON, m.Dest.NPI, m.Dest.Addr,
		m.Payload, nullableTime(m.ValidityPeriod), nullableTime(m.ScheduleTime),
		m.Status, nilIfEmpty(m.Replaced), m.SubmittedAt)
	if err != nil {
		return fmt.Errorf("insert message %s: %w", m.ID, err)
	}
	return nil
}

func (s *MessageStore) Cancel(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE smsc_messages SET status = $1 WHERE id = $2 AND status = $3`,
		message.StatusCanceled, id, message.StatusPending)
	if err != nil {
		return fmt.Errorf("cancel message %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return message.ErrOriginalNotFound
	}
	return nil
}

// Replace runs in one transaction: cancel the pending original and
// insert the chained replacement, or do neither.
func (s *MessageStore) Replace(ctx context.Context, originalID string, replacement *message.ShortMessage) (*message.ShortMessage, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback(ctx)

	newID := replacement.ID
	if newID == "" {
		newID = uuid.NewString()
	}
	tag, err := tx.Exec(ctx,
		`UPDATE smsc_messages SET status = $1, replaced_by = $2 WHERE id = $3 AND status = $4`,
		message.StatusCanceled, newID, originalID, message.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("cancel original %s: %w", originalID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, message.ErrOriginalNotFound
	}

	stored := *replacement
	stored.ID = newID
	stored.Status = message.StatusPending
	stored.Replaced = originalID
	if stored.SubmittedAt.IsZero() {
		stored.SubmittedAt = time.Now()
	}
	_, err = tx.Exec(ctx, insertMessageSQL,
		stored.ID, stored.Recipient,
		stored.Source.TON, stored.Source.NPI, stored.Source.Addr,
		stored.Dest.TON, stored.Dest.NPI, stored.Dest.Addr,
		stored.Payload, nullableTime(stored.ValidityPeriod), nullableTime(stored.ScheduleTime),
		stored.Status, nilIfEmpty(stored.Replaced), stored.SubmittedAt)
	if err != nil {
		return nil, fmt.Errorf("insert replacement %s: %w", stored.ID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit replace: %w", err)
	}
	return &stored, nil
}

func (s *MessageStore) SelectByID(ctx context.Context, id string) (*message.ShortMessage, error) {
	m, err := scanMessage(s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM smsc_messages WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select message %s: %w", id, err)
	}
	return m, nil
}

func (s *MessageStore) PendingForUser(ctx context.Context, name string) ([]*message.ShortMessage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM smsc_messages WHERE recipient = $1 AND status = $2 ORDER BY submitted_at`,
		name, message.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("pending for %q: %w", name, err)
	}
	defer rows.Close()

	var out []*message.ShortMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *MessageStore) MarkExpired(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, message.StatusExpired)
}

func (s *MessageStore) MarkDelivered(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, message.StatusDelivered)
}

func (s *MessageStore) setStatus(ctx context.Context, id string, st message.Status) error {
	tag, err := s.pool.Exec(ctx, `UPDATE smsc_messages SET status = $1 WHERE id = $2`, st, id)
	if err != nil {
		return fmt.Errorf("update message %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return message.ErrOriginalNotFound
	}
	return nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
