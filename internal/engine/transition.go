package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"stageflow/internal/domain"
	"stageflow/internal/events"
	"stageflow/internal/notify"
	"stageflow/internal/repo"
)

// RoutingStageTransitioned is the broker routing key of committed transitions.
const RoutingStageTransitioned = "project.stage.transitioned"

// TransitionInput is the request to move a project to ToStage, a stage
// display name. Optional text fields are nil when absent.
type TransitionInput struct {
	ProjectID          string
	ActorID            string
	ToStage            string
	Reason             *string
	Notes              *string
	ChecklistCompleted bool
	ApprovalReceived   bool
	ApprovalID         *string
}

// Normalize trims every string and turns blank optionals into nil.
func (in TransitionInput) Normalize() TransitionInput {
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	in.ActorID = strings.TrimSpace(in.ActorID)
	in.ToStage = strings.TrimSpace(in.ToStage)
	in.Reason = trimOptional(in.Reason)
	in.Notes = trimOptional(in.Notes)
	in.ApprovalID = trimOptional(in.ApprovalID)
	return in
}

func trimOptional(v *string) *string {
	if v == nil {
		return nil
	}
	return optional(*v)
}

type TransitionResult struct {
	TransitionID   string `json:"transition_id"`
	FromStage      string `json:"from_stage"`
	ToStage        string `json:"to_stage"`
	TransitionedAt string `json:"transitioned_at"`
}

// StageTransitioned is the event published for every committed transition.
type StageTransitioned struct {
	TransitionID   string `json:"transition_id"`
	ProjectID      string `json:"project_id"`
	FromStage      string `json:"from_stage"`
	ToStage        string `json:"to_stage"`
	ToStageCode    string `json:"to_stage_code"`
	Terminal       bool   `json:"terminal"`
	TransitionedBy string `json:"transitioned_by"`
	TransitionedAt string `json:"transitioned_at"`
	Notified       int    `json:"notified"`
}

// currentStageName resolves the project's stage code to its display name. A
// code missing from the catalog resolves to the stored phase name, or to the
// code itself when no phase is stored.
func (e *Engine) currentStageName(p domain.Project) string {
	if name, ok := e.Catalog.NameFor(p.CurrentStage); ok {
		return name
	}
	e.logger().Warn("unmapped stage code", "project_id", p.ID, "code", p.CurrentStage)
	if p.CurrentPhase != "" {
		return p.CurrentPhase
	}
	return p.CurrentStage
}

// Transition moves a project to another stage. History, aggregate, both stage
// records, team notifications, the audit entry and the outbox event are
// written in one transaction; any failure leaves all of them untouched.
func (e *Engine) Transition(ctx context.Context, in TransitionInput) (TransitionResult, error) {
	const op = "transition"
	in = in.Normalize()
	switch {
	case in.ToStage == "":
		return TransitionResult{}, newError(ErrValidation, op, "to_stage is required")
	case in.ProjectID == "":
		return TransitionResult{}, newError(ErrValidation, op, "project is required")
	case in.ActorID == "":
		return TransitionResult{}, newError(ErrValidation, op, "actor is required")
	}

	tx, err := e.begin(ctx, op)
	if err != nil {
		return TransitionResult{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProjectForUpdate(ctx, tx, in.ProjectID)
	if errors.Is(err, repo.ErrNotFound) {
		return TransitionResult{}, newError(ErrNotFound, op, "project %s not found", in.ProjectID)
	}
	if err != nil {
		return TransitionResult{}, storeErr(op, err)
	}

	fromName := e.currentStageName(p)
	var fromID *string
	from, err := e.Repo.GetStageByName(ctx, tx, p.ID, fromName)
	switch {
	case err == nil:
		fromID = &from.ID
	case errors.Is(err, repo.ErrNotFound):
	default:
		return TransitionResult{}, storeErr(op, err)
	}
	to, err := e.Repo.GetStageByName(ctx, tx, p.ID, in.ToStage)
	if errors.Is(err, repo.ErrNotFound) {
		return TransitionResult{}, newError(ErrNotFound, op, "target stage not found: %s", in.ToStage)
	}
	if err != nil {
		return TransitionResult{}, storeErr(op, err)
	}
	if e.Catalog.IsTerminal(p.CurrentStage) && p.Status == domain.ProjectCompleted {
		if code, _ := e.Catalog.CodeFor(in.ToStage); code != p.CurrentStage {
			return TransitionResult{}, newError(ErrConflict, op, "project %s is already completed", p.ID)
		}
	}

	toCode, ok := e.Catalog.CodeFor(in.ToStage)
	if !ok {
		e.logger().Warn("unmapped stage name, using slug", "project_id", p.ID, "stage", in.ToStage, "code", toCode)
	}
	terminal := e.Catalog.IsTerminal(toCode)

	now := e.now()
	ts := domain.Timestamp(now)
	today := domain.Date(now)

	rec := domain.Transition{
		ID:                 uuid.NewString(),
		ProjectID:          p.ID,
		FromStage:          fromName,
		ToStage:            in.ToStage,
		FromStageID:        fromID,
		ToStageID:          to.ID,
		TransitionedBy:     in.ActorID,
		Reason:             in.Reason,
		Notes:              in.Notes,
		ChecklistCompleted: in.ChecklistCompleted,
		ApprovalReceived:   in.ApprovalReceived,
		ApprovalID:         in.ApprovalID,
		TransitionedAt:     ts,
	}
	if err := e.Repo.InsertTransition(ctx, tx, rec); err != nil {
		return TransitionResult{}, storeErr(op, err)
	}

	update := repo.StageUpdate{
		ProjectID:       p.ID,
		ExpectedVersion: p.Version,
		StageCode:       toCode,
		PhaseName:       in.ToStage,
		Status:          domain.ProjectInProgress,
		Progress:        to.ProgressPercentage,
		UpdatedAt:       ts,
	}
	if terminal {
		update.Status = domain.ProjectCompleted
		update.Progress = 100
		update.ActualEndDate = &ts
	}
	if err := e.Repo.ApplyTransition(ctx, tx, update); err != nil {
		return TransitionResult{}, storeErr(op, err)
	}

	if fromID != nil && *fromID != to.ID {
		if err := e.Repo.CompleteStage(ctx, tx, *fromID, today); err != nil {
			return TransitionResult{}, storeErr(op, err)
		}
	}
	if err := e.Repo.StartStage(ctx, tx, to.ID, today); err != nil {
		return TransitionResult{}, storeErr(op, err)
	}

	team, err := e.Repo.ProjectTeamMembers(ctx, tx, p.ID)
	if err != nil {
		return TransitionResult{}, storeErr(op, err)
	}
	sent, err := e.Notifier.Notify(ctx, tx, team, notify.Message{
		ProjectID: p.ID,
		Title:     "Project stage updated",
		Message:   fmt.Sprintf("%s moved to %s", p.Name, in.ToStage),
		Link:      e.projectLink(p.ID),
		Priority:  e.priority(),
	})
	if err != nil {
		return TransitionResult{}, storeErr(op, err)
	}

	if err := e.Audit.Record(ctx, tx, domain.Activity{
		UserID:      in.ActorID,
		ProjectID:   p.ID,
		EventType:   events.StageTransitioned,
		Description: fmt.Sprintf("Project transitioned from %s to %s", fromName, in.ToStage),
		CreatedAt:   ts,
	}, events.Payload{
		"transition_id": rec.ID,
		"from_stage":    fromName,
		"to_stage":      in.ToStage,
	}); err != nil {
		return TransitionResult{}, storeErr(op, err)
	}

	if e.Outbox != nil {
		if err := e.Outbox.Enqueue(ctx, tx, RoutingStageTransitioned, StageTransitioned{
			TransitionID:   rec.ID,
			ProjectID:      p.ID,
			FromStage:      fromName,
			ToStage:        in.ToStage,
			ToStageCode:    toCode,
			Terminal:       terminal,
			TransitionedBy: in.ActorID,
			TransitionedAt: ts,
			Notified:       len(sent),
		}); err != nil {
			return TransitionResult{}, storeErr(op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return TransitionResult{}, storeErr(op, err)
	}
	e.logger().Info("project transitioned",
		"project_id", p.ID,
		"transition_id", rec.ID,
		"from", fromName,
		"to", in.ToStage,
		"terminal", terminal,
		"notified", len(sent),
	)
	return TransitionResult{
		TransitionID:   rec.ID,
		FromStage:      fromName,
		ToStage:        in.ToStage,
		TransitionedAt: ts,
	}, nil
}
