package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"stageflow/internal/domain"
	"stageflow/internal/events"
	"stageflow/internal/repo"
)

type CreateProjectInput struct {
	ID       string
	Name     string
	ClientID string
	ActorID  string
	TeamLead string
}

// CreateProject stores the aggregate together with one stage record per
// catalog stage. The first stage starts immediately.
func (e *Engine) CreateProject(ctx context.Context, in CreateProjectInput) (domain.Project, error) {
	const op = "create project"
	in.ID = strings.TrimSpace(in.ID)
	in.Name = strings.TrimSpace(in.Name)
	in.ActorID = strings.TrimSpace(in.ActorID)
	if in.Name == "" {
		return domain.Project{}, newError(ErrValidation, op, "name is required")
	}
	if in.ActorID == "" {
		return domain.Project{}, newError(ErrValidation, op, "actor is required")
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}

	tx, err := e.begin(ctx, op)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetProject(ctx, tx, in.ID); err == nil {
		return domain.Project{}, newError(ErrConflict, op, "project %s already exists", in.ID)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Project{}, storeErr(op, err)
	}

	now := e.now()
	ts := domain.Timestamp(now)
	today := domain.Date(now)
	first := e.Catalog.First()
	p := domain.Project{
		ID:           in.ID,
		Name:         in.Name,
		ClientID:     optional(in.ClientID),
		CurrentStage: first.Code,
		CurrentPhase: first.Name,
		Status:       domain.ProjectPlanning,
		Progress:     0,
		Version:      1,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, storeErr(op, err)
	}
	for i, def := range e.Catalog.Stages() {
		rec := domain.StageRecord{
			ID:               uuid.NewString(),
			ProjectID:        p.ID,
			StageNumber:      i + 1,
			StageName:        def.Name,
			Status:           domain.StageNotStarted,
			AssignedTeamLead: optional(in.TeamLead),
		}
		if i == 0 {
			rec.Status = domain.StageInProgress
			rec.ActualStartDate = &today
		}
		if err := e.Repo.InsertStage(ctx, tx, rec); err != nil {
			return domain.Project{}, storeErr(op, err)
		}
	}
	if err := e.Audit.Record(ctx, tx, domain.Activity{
		UserID:      in.ActorID,
		ProjectID:   p.ID,
		EventType:   events.ProjectCreated,
		Description: "Project " + p.Name + " created",
	}, events.Payload{"stages": e.Catalog.Len()}); err != nil {
		return domain.Project{}, storeErr(op, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, storeErr(op, err)
	}
	e.logger().Info("project created", "project_id", p.ID, "stage", p.CurrentStage)
	return p, nil
}

func (e *Engine) GetProject(ctx context.Context, id string) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, nil, id)
	if errors.Is(err, repo.ErrNotFound) {
		return p, newError(ErrNotFound, "get project", "project %s not found", id)
	}
	return p, storeErr("get project", err)
}

// ListStages returns the stage records of a project in stage order.
func (e *Engine) ListStages(ctx context.Context, projectID string) ([]domain.StageRecord, error) {
	if _, err := e.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	recs, err := e.Repo.ListStages(ctx, nil, projectID)
	return recs, storeErr("list stages", err)
}

func (e *Engine) ListProjects(ctx context.Context) ([]domain.Project, error) {
	ps, err := e.Repo.ListProjects(ctx)
	return ps, storeErr("list projects", err)
}

// DeleteProject removes the project. Its stage records, history,
// notifications and activity go with it.
func (e *Engine) DeleteProject(ctx context.Context, projectID, actorID string) error {
	const op = "delete project"
	if strings.TrimSpace(actorID) == "" {
		return newError(ErrValidation, op, "actor is required")
	}
	tx, err := e.begin(ctx, op)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProjectForUpdate(ctx, tx, projectID)
	if errors.Is(err, repo.ErrNotFound) {
		return newError(ErrNotFound, op, "project %s not found", projectID)
	}
	if err != nil {
		return storeErr(op, err)
	}
	if err := e.Repo.DeleteProject(ctx, tx, p.ID); err != nil {
		return storeErr(op, err)
	}
	if err := e.Audit.Record(ctx, tx, domain.Activity{
		UserID:      actorID,
		EventType:   events.ProjectDeleted,
		Description: "Project " + p.Name + " deleted",
	}, events.Payload{"project_id": p.ID}); err != nil {
		return storeErr(op, err)
	}
	if err := tx.Commit(); err != nil {
		return storeErr(op, err)
	}
	e.logger().Info("project deleted", "project_id", p.ID)
	return nil
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
