package repo

import (
	"context"
	"database/sql"
	"errors"

	"stageflow/internal/domain"
)

const stageColumns = `id,project_id,stage_number,stage_name,status,progress_percentage,start_date,end_date,actual_start_date,actual_end_date,assigned_team_lead`

func scanStage(row rowScanner) (domain.StageRecord, error) {
	var s domain.StageRecord
	var start, end, actualStart, actualEnd, lead sql.NullString
	err := row.Scan(&s.ID, &s.ProjectID, &s.StageNumber, &s.StageName, &s.Status, &s.ProgressPercentage,
		&start, &end, &actualStart, &actualEnd, &lead)
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.StartDate = stringPtr(start)
	s.EndDate = stringPtr(end)
	s.ActualStartDate = stringPtr(actualStart)
	s.ActualEndDate = stringPtr(actualEnd)
	s.AssignedTeamLead = stringPtr(lead)
	return s, nil
}

func (r Repo) InsertStage(ctx context.Context, tx *sql.Tx, s domain.StageRecord) error {
	_, err := r.exec(ctx, tx, `INSERT INTO project_stages(`+stageColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.ProjectID, s.StageNumber, s.StageName, s.Status, s.ProgressPercentage,
		nullableStringPtr(s.StartDate), nullableStringPtr(s.EndDate),
		nullableStringPtr(s.ActualStartDate), nullableStringPtr(s.ActualEndDate),
		nullableStringPtr(s.AssignedTeamLead))
	return err
}

// GetStageByName finds the stage record of a project by display name.
func (r Repo) GetStageByName(ctx context.Context, tx *sql.Tx, projectID, name string) (domain.StageRecord, error) {
	return scanStage(r.queryRow(ctx, tx, `SELECT `+stageColumns+` FROM project_stages WHERE project_id=? AND stage_name=?`, projectID, name))
}

func (r Repo) ListStages(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.StageRecord, error) {
	rows, err := r.query(ctx, tx, `SELECT `+stageColumns+` FROM project_stages WHERE project_id=? ORDER BY stage_number`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StageRecord
	for rows.Next() {
		s, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// CompleteStage marks a stage record completed at 100%.
func (r Repo) CompleteStage(ctx context.Context, tx *sql.Tx, stageID, date string) error {
	res, err := r.exec(ctx, tx, `UPDATE project_stages SET status=?, progress_percentage=100, actual_end_date=? WHERE id=?`,
		domain.StageCompleted, date, stageID)
	if err != nil {
		return err
	}
	return mustAffect(res, ErrNotFound)
}

// StartStage marks a stage record in progress from date. A re-entered stage
// loses its previous end date.
func (r Repo) StartStage(ctx context.Context, tx *sql.Tx, stageID, date string) error {
	res, err := r.exec(ctx, tx, `UPDATE project_stages SET status=?, actual_start_date=?, actual_end_date=NULL WHERE id=?`,
		domain.StageInProgress, date, stageID)
	if err != nil {
		return err
	}
	return mustAffect(res, ErrNotFound)
}
