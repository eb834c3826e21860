package repo

import (
	"context"
	"database/sql"

	"stageflow/internal/domain"
)

func (r Repo) InsertNotification(ctx context.Context, tx *sql.Tx, n domain.Notification) error {
	_, err := r.exec(ctx, tx, `INSERT INTO notifications(id, user_id, project_id, title, message, link, priority, is_read, created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		n.ID, n.UserID, nullable(n.ProjectID), n.Title, n.Message, nullable(n.Link), n.Priority, boolInt(n.Read), n.CreatedAt)
	return err
}

// NotificationFilter narrows ListNotifications. Empty fields match everything.
type NotificationFilter struct {
	UserID     string
	ProjectID  string
	UnreadOnly bool
	Limit      int
}

func (r Repo) ListNotifications(ctx context.Context, f NotificationFilter) ([]domain.Notification, error) {
	query := `SELECT id, user_id, COALESCE(project_id,''), title, message, COALESCE(link,''), priority, is_read, created_at FROM notifications WHERE 1=1`
	var args []any
	if f.UserID != "" {
		query += ` AND user_id=?`
		args = append(args, f.UserID)
	}
	if f.ProjectID != "" {
		query += ` AND project_id=?`
		args = append(args, f.ProjectID)
	}
	if f.UnreadOnly {
		query += ` AND is_read=0`
	}
	query += ` ORDER BY created_at DESC, user_id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.query(ctx, nil, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Notification{}
	for rows.Next() {
		var n domain.Notification
		var read int
		if err := rows.Scan(&n.ID, &n.UserID, &n.ProjectID, &n.Title, &n.Message, &n.Link, &n.Priority, &read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Read = read != 0
		res = append(res, n)
	}
	return res, rows.Err()
}

// MarkNotificationRead flags a notification of the given user as read.
func (r Repo) MarkNotificationRead(ctx context.Context, userID, id string) error {
	res, err := r.exec(ctx, nil, `UPDATE notifications SET is_read=1 WHERE id=? AND user_id=?`, id, userID)
	if err != nil {
		return err
	}
	return mustAffect(res, ErrNotFound)
}
