package engine

import (
	"context"

	"stageflow/internal/domain"
)

// History lists a project's transitions, most recent first.
func (e *Engine) History(ctx context.Context, projectID string) ([]domain.TransitionView, error) {
	if _, err := e.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	views, err := e.Repo.ListTransitions(ctx, projectID, 0)
	return views, storeErr("history", err)
}
