package repo

import (
	"context"
	"database/sql"
	"errors"

	"stageflow/internal/domain"
)

const projectColumns = `id,name,client_id,current_stage,current_phase,status,progress,actual_end_date,version,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (domain.Project, error) {
	var p domain.Project
	var clientID, endDate sql.NullString
	err := row.Scan(&p.ID, &p.Name, &clientID, &p.CurrentStage, &p.CurrentPhase, &p.Status, &p.Progress, &endDate, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.ClientID = stringPtr(clientID)
	p.ActualEndDate = stringPtr(endDate)
	return p, nil
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := r.exec(ctx, tx, `INSERT INTO projects(`+projectColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Name, nullableStringPtr(p.ClientID), p.CurrentStage, p.CurrentPhase, p.Status, p.Progress,
		nullableStringPtr(p.ActualEndDate), p.Version, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	return scanProject(r.queryRow(ctx, tx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

// GetProjectForUpdate reads the project and, on postgres, holds its row lock
// until tx ends.
func (r Repo) GetProjectForUpdate(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	return scanProject(r.queryRow(ctx, tx, `SELECT `+projectColumns+` FROM projects WHERE id=?`+r.Dialect.ForUpdate(), id))
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.query(ctx, nil, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// StageUpdate is the aggregate change a transition applies to a project.
type StageUpdate struct {
	ProjectID       string
	ExpectedVersion int64
	StageCode       string
	PhaseName       string
	Status          string
	Progress        int
	ActualEndDate   *string
	UpdatedAt       string
}

// ApplyTransition writes the new lifecycle position if the row is still at
// ExpectedVersion, and bumps the version. An existing actual_end_date is kept.
func (r Repo) ApplyTransition(ctx context.Context, tx *sql.Tx, u StageUpdate) error {
	res, err := r.exec(ctx, tx, `UPDATE projects
SET current_stage=?, current_phase=?, status=?, progress=?, actual_end_date=COALESCE(actual_end_date, ?), version=version+1, updated_at=?
WHERE id=? AND version=?`,
		u.StageCode, u.PhaseName, u.Status, u.Progress, nullableStringPtr(u.ActualEndDate), u.UpdatedAt, u.ProjectID, u.ExpectedVersion)
	if err != nil {
		return err
	}
	return mustAffect(res, ErrConflict)
}

func (r Repo) DeleteProject(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.exec(ctx, tx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res, ErrNotFound)
}
