package engine

import (
	"context"

	"stageflow/internal/domain"
	"stageflow/internal/repo"
)

func (e *Engine) ActivityLog(ctx context.Context, f repo.ActivityFilter) ([]domain.Activity, error) {
	if f.ProjectID != "" {
		if _, err := e.GetProject(ctx, f.ProjectID); err != nil {
			return nil, err
		}
	}
	items, err := e.Repo.ListActivity(ctx, f)
	return items, storeErr("activity", err)
}

// Notifications lists stored notifications. Delivery is someone else's job.
func (e *Engine) Notifications(ctx context.Context, f repo.NotificationFilter) ([]domain.Notification, error) {
	items, err := e.Repo.ListNotifications(ctx, f)
	return items, storeErr("notifications", err)
}

func (e *Engine) MarkNotificationRead(ctx context.Context, userID, id string) error {
	err := e.Repo.MarkNotificationRead(ctx, userID, id)
	if err != nil && KindOf(err) == ErrNotFound {
		return newError(ErrNotFound, "mark read", "notification %s not found", id)
	}
	return storeErr("mark read", err)
}
