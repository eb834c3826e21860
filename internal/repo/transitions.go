package repo

import (
	"context"
	"database/sql"

	"stageflow/internal/domain"
)

// InsertTransition appends a history row. Rows are never updated afterwards.
func (r Repo) InsertTransition(ctx context.Context, tx *sql.Tx, t domain.Transition) error {
	_, err := r.exec(ctx, tx, `INSERT INTO stage_transitions(id, project_id, from_stage, to_stage, from_stage_id, to_stage_id, transitioned_by, reason, notes, checklist_completed, approval_received, approval_id, transitioned_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.FromStage, t.ToStage, nullableStringPtr(t.FromStageID), t.ToStageID, t.TransitionedBy,
		nullableStringPtr(t.Reason), nullableStringPtr(t.Notes), boolInt(t.ChecklistCompleted), boolInt(t.ApprovalReceived),
		nullableStringPtr(t.ApprovalID), t.TransitionedAt)
	return err
}

// ListTransitions returns the history of a project newest first, joined with
// the acting user and the referenced approval when they exist.
func (r Repo) ListTransitions(ctx context.Context, projectID string, limit int) ([]domain.TransitionView, error) {
	query := `SELECT t.id, t.project_id, t.from_stage, t.to_stage, t.from_stage_id, t.to_stage_id, t.transitioned_by,
  t.reason, t.notes, t.checklist_completed, t.approval_received, t.approval_id, t.transitioned_at,
  COALESCE(u.name,''), COALESCE(u.email,''), u.avatar_url, a.title, a.status
FROM stage_transitions t
LEFT JOIN users u ON u.id = t.transitioned_by
LEFT JOIN approvals a ON a.id = t.approval_id
WHERE t.project_id=?
ORDER BY t.transitioned_at DESC, t.seq DESC`
	args := []any{projectID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.query(ctx, nil, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.TransitionView{}
	for rows.Next() {
		var v domain.TransitionView
		var fromID, reason, notes, approvalID, avatar, approvalTitle, approvalStatus sql.NullString
		var checklist, approved int
		if err := rows.Scan(&v.ID, &v.ProjectID, &v.FromStage, &v.ToStage, &fromID, &v.ToStageID, &v.TransitionedBy,
			&reason, &notes, &checklist, &approved, &approvalID, &v.TransitionedAt,
			&v.TransitionedByName, &v.TransitionedByEmail, &avatar, &approvalTitle, &approvalStatus); err != nil {
			return nil, err
		}
		v.FromStageID = stringPtr(fromID)
		v.Reason = stringPtr(reason)
		v.Notes = stringPtr(notes)
		v.ApprovalID = stringPtr(approvalID)
		v.ChecklistCompleted = checklist != 0
		v.ApprovalReceived = approved != 0
		v.TransitionedByAvatar = stringPtr(avatar)
		v.ApprovalTitle = stringPtr(approvalTitle)
		v.ApprovalStatus = stringPtr(approvalStatus)
		res = append(res, v)
	}
	return res, rows.Err()
}
