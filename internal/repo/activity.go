package repo

import (
	"context"
	"database/sql"

	"stageflow/internal/domain"
)

func (r Repo) InsertActivity(ctx context.Context, tx *sql.Tx, a domain.Activity) error {
	_, err := r.exec(ctx, tx, `INSERT INTO activity_logs(id, user_id, project_id, event_type, description, payload_json, created_at) VALUES (?,?,?,?,?,?,?)`,
		a.ID, a.UserID, nullable(a.ProjectID), a.EventType, a.Description, nullable(a.Payload), a.CreatedAt)
	return err
}

// ActivityFilter narrows ListActivity. Empty fields match everything.
type ActivityFilter struct {
	ProjectID string
	EventType string
	Limit     int
}

// ListActivity returns audit entries newest first.
func (r Repo) ListActivity(ctx context.Context, f ActivityFilter) ([]domain.Activity, error) {
	query := `SELECT id, user_id, COALESCE(project_id,''), event_type, description, COALESCE(payload_json,''), created_at FROM activity_logs WHERE 1=1`
	var args []any
	if f.ProjectID != "" {
		query += ` AND project_id=?`
		args = append(args, f.ProjectID)
	}
	if f.EventType != "" {
		query += ` AND event_type=?`
		args = append(args, f.EventType)
	}
	query += ` ORDER BY created_at DESC, seq DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.query(ctx, nil, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Activity{}
	for rows.Next() {
		var a domain.Activity
		if err := rows.Scan(&a.ID, &a.UserID, &a.ProjectID, &a.EventType, &a.Description, &a.Payload, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
