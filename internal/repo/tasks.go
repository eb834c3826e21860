package repo

import (
	"context"
	"database/sql"

	"stageflow/internal/domain"
)

// TaskDone is the task status that counts as completed.
const TaskDone = "completed"

// CountStageTasks counts tasks attached to a stage record and how many are done.
func (r Repo) CountStageTasks(ctx context.Context, tx *sql.Tx, projectID, stageID string) (domain.TaskCounts, error) {
	var c domain.TaskCounts
	err := r.queryRow(ctx, tx, `SELECT COUNT(*), COALESCE(SUM(CASE WHEN status=? THEN 1 ELSE 0 END), 0) FROM tasks WHERE project_id=? AND stage_id=?`,
		TaskDone, projectID, stageID).Scan(&c.Total, &c.Completed)
	return c, err
}

// ProjectTeamMembers returns the distinct users assigned to any task of the project.
func (r Repo) ProjectTeamMembers(ctx context.Context, tx *sql.Tx, projectID string) ([]string, error) {
	rows, err := r.query(ctx, tx, `SELECT DISTINCT assigned_to FROM tasks WHERE project_id=? AND assigned_to IS NOT NULL AND assigned_to <> '' ORDER BY assigned_to`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := r.exec(ctx, tx, `INSERT INTO tasks(id, project_id, stage_id, assigned_to, title, status) VALUES (?,?,?,?,?,?)`,
		t.ID, t.ProjectID, nullableStringPtr(t.StageID), nullableStringPtr(t.AssignedTo), t.Title, t.Status)
	return err
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := r.exec(ctx, tx, `INSERT INTO users(id, name, email, avatar_url, created_at) VALUES (?,?,?,?,?)`,
		u.ID, u.Name, u.Email, nullableStringPtr(u.AvatarURL), u.CreatedAt)
	return err
}

func (r Repo) InsertApproval(ctx context.Context, tx *sql.Tx, a domain.Approval) error {
	_, err := r.exec(ctx, tx, `INSERT INTO approvals(id, project_id, title, status) VALUES (?,?,?,?)`,
		a.ID, a.ProjectID, a.Title, a.Status)
	return err
}
