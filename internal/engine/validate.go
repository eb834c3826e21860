package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"stageflow/internal/domain"
	"stageflow/internal/repo"
)

type CheckInput struct {
	ProjectID string
	// ToStage is optional. Readiness is always judged on the current stage.
	ToStage string
}

type StageProgress struct {
	TotalTasks         int `json:"total_tasks"`
	CompletedTasks     int `json:"completed_tasks"`
	ProgressPercentage int `json:"progress_percentage"`
}

// Check is the advisory answer to "may this project leave its stage".
type Check struct {
	Allowed       bool          `json:"allowed"`
	Reasons       []string      `json:"reasons"`
	Warnings      []string      `json:"warnings"`
	StageProgress StageProgress `json:"stage_progress"`
	CurrentStage  string        `json:"current_stage"`
	TargetStage   string        `json:"target_stage,omitempty"`
}

// Evaluate judges the readiness of a stage record from its task counts.
// Only a blocked stage disallows; unfinished work only warns.
func Evaluate(stage domain.StageRecord, counts domain.TaskCounts) Check {
	c := Check{
		Allowed:      true,
		Reasons:      []string{},
		Warnings:     []string{},
		CurrentStage: stage.StageName,
		StageProgress: StageProgress{
			TotalTasks:         counts.Total,
			CompletedTasks:     counts.Completed,
			ProgressPercentage: stage.ProgressPercentage,
		},
	}
	if stage.Status == domain.StageBlocked {
		c.Allowed = false
		c.Reasons = append(c.Reasons, fmt.Sprintf("current stage %s is blocked", stage.StageName))
	}
	if counts.Completed < counts.Total {
		c.Warnings = append(c.Warnings, fmt.Sprintf("%d tasks still pending", counts.Total-counts.Completed))
	}
	if stage.ProgressPercentage < 100 {
		c.Warnings = append(c.Warnings, fmt.Sprintf("stage only %d%% complete", stage.ProgressPercentage))
	}
	return c
}

// CanTransition reports whether the project's current stage is ready to be
// left. It never writes.
func (e *Engine) CanTransition(ctx context.Context, in CheckInput) (Check, error) {
	const op = "check transition"
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	in.ToStage = strings.TrimSpace(in.ToStage)
	if in.ProjectID == "" {
		return Check{}, newError(ErrValidation, op, "project is required")
	}
	p, err := e.Repo.GetProject(ctx, nil, in.ProjectID)
	if errors.Is(err, repo.ErrNotFound) {
		return Check{}, newError(ErrNotFound, op, "project %s not found", in.ProjectID)
	}
	if err != nil {
		return Check{}, storeErr(op, err)
	}
	name := e.currentStageName(p)
	stage, err := e.Repo.GetStageByName(ctx, nil, p.ID, name)
	if errors.Is(err, repo.ErrNotFound) {
		return Check{}, newError(ErrNotFound, op, "stage data inconsistency: no stage record %q for project %s", name, p.ID)
	}
	if err != nil {
		return Check{}, storeErr(op, err)
	}
	counts, err := e.Repo.CountStageTasks(ctx, nil, p.ID, stage.ID)
	if err != nil {
		return Check{}, storeErr(op, err)
	}
	c := Evaluate(stage, counts)
	if in.ToStage != "" {
		c.TargetStage = in.ToStage
		if _, err := e.Repo.GetStageByName(ctx, nil, p.ID, in.ToStage); errors.Is(err, repo.ErrNotFound) {
			c.Warnings = append(c.Warnings, fmt.Sprintf("target stage %s not found for project", in.ToStage))
		} else if err != nil {
			return Check{}, storeErr(op, err)
		}
	}
	return c, nil
}
