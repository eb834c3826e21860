package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stageflow/internal/db"
	"stageflow/internal/domain"
)

// Store persists outbox messages in the outbox_messages table.
type Store struct {
	DB      *sql.DB
	Dialect db.Dialect
	Now     func() time.Time
}

func (s Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Enqueue marshals payload and stores it inside tx, so the message exists
// exactly when the surrounding business write commits.
func (s Store) Enqueue(ctx context.Context, tx *sql.Tx, routingKey string, payload any) error {
	if tx == nil {
		return fmt.Errorf("outbox enqueue requires a transaction")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, s.Dialect.Rebind(`INSERT INTO outbox_messages(event_id, routing_key, payload, created_at) VALUES (?,?,?,?)`),
		uuid.NewString(), routingKey, string(body), domain.Timestamp(s.now()))
	return err
}

// GetUnpublished returns pending messages that are due, oldest first.
func (s Store) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	rows, err := s.DB.QueryContext(ctx, s.Dialect.Rebind(`SELECT id, event_id, routing_key, payload, created_at, published_at, retry_count, next_retry_at, last_error, dead_lettered_at
FROM outbox_messages
WHERE published_at IS NULL AND dead_lettered_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= ?)
ORDER BY id
LIMIT ?`), domain.Timestamp(s.now()), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var msgs []*Message
	for rows.Next() {
		var m Message
		var payload string
		var published, nextRetry, lastErr, dead sql.NullString
		if err := rows.Scan(&m.ID, &m.EventID, &m.RoutingKey, &payload, &m.CreatedAt, &published, &m.RetryCount, &nextRetry, &lastErr, &dead); err != nil {
			return nil, err
		}
		m.Payload = json.RawMessage(payload)
		m.PublishedAt = ptr(published)
		m.NextRetryAt = ptr(nextRetry)
		m.LastError = ptr(lastErr)
		m.DeadLetteredAt = ptr(dead)
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

func (s Store) MarkPublished(ctx context.Context, id int64) error {
	_, err := s.DB.ExecContext(ctx, s.Dialect.Rebind(`UPDATE outbox_messages SET published_at=? WHERE id=?`),
		domain.Timestamp(s.now()), id)
	return err
}

func (s Store) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	_, err := s.DB.ExecContext(ctx, s.Dialect.Rebind(`UPDATE outbox_messages SET retry_count=retry_count+1, last_error=?, next_retry_at=? WHERE id=?`),
		errMsg, domain.Timestamp(nextRetryAt), id)
	return err
}

func (s Store) MarkDead(ctx context.Context, id int64, reason string) error {
	_, err := s.DB.ExecContext(ctx, s.Dialect.Rebind(`UPDATE outbox_messages SET retry_count=retry_count+1, last_error=?, dead_lettered_at=? WHERE id=?`),
		reason, domain.Timestamp(s.now()), id)
	return err
}

// DeleteOld removes published messages older than the retention window.
func (s Store) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := s.now().AddDate(0, 0, -olderThanDays)
	res, err := s.DB.ExecContext(ctx, s.Dialect.Rebind(`DELETE FROM outbox_messages WHERE published_at IS NOT NULL AND published_at < ?`),
		domain.Timestamp(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Counts reports pending and dead-lettered totals.
func (s Store) Counts(ctx context.Context) (pending, dead int, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT
  COALESCE(SUM(CASE WHEN published_at IS NULL AND dead_lettered_at IS NULL THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN dead_lettered_at IS NOT NULL THEN 1 ELSE 0 END), 0)
FROM outbox_messages`).Scan(&pending, &dead)
	return pending, dead, err
}

func ptr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
