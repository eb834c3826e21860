package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"stageflow/internal/engine"
	"stageflow/internal/engine/auth"
	"stageflow/internal/repo"
)

type handlers struct {
	engine *engine.Engine
	policy auth.Policy
}

type projectPath struct {
	ProjectID string `path:"project_id"`
}

func (h handlers) registerProjects(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create a project with one record per catalog stage",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest
	}) (*output[ProjectResponse], error) {
		principal, err := requirePermission(ctx, h.policy, auth.PermProjectCreate)
		if err != nil {
			return nil, handleError(err)
		}
		p, err := h.engine.CreateProject(ctx, engine.CreateProjectInput{
			ID:       input.Body.ID,
			Name:     input.Body.Name,
			ClientID: input.Body.ClientID,
			TeamLead: input.Body.TeamLead,
			ActorID:  principal.UserID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		stages, err := h.engine.ListStages(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &output[ProjectResponse]{Body: ProjectResponse{Project: p, Stages: stages}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*output[ProjectListResponse], error) {
		if _, err := requirePermission(ctx, h.policy, auth.PermProjectRead); err != nil {
			return nil, handleError(err)
		}
		items, err := h.engine.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &output[ProjectListResponse]{Body: ProjectListResponse{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get a project with its stage records",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*output[ProjectResponse], error) {
		if _, err := requirePermission(ctx, h.policy, auth.PermProjectRead); err != nil {
			return nil, handleError(err)
		}
		p, err := h.engine.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		stages, err := h.engine.ListStages(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &output[ProjectResponse]{Body: ProjectResponse{Project: p, Stages: stages}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-project",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}",
		Summary:       "Delete a project and everything recorded for it",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct{}, error) {
		principal, err := requirePermission(ctx, h.policy, auth.PermProjectDelete)
		if err != nil {
			return nil, handleError(err)
		}
		if err := h.engine.DeleteProject(ctx, input.ProjectID, principal.UserID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-stages",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/stages",
		Summary:     "List stage records in stage order",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*output[StageListResponse], error) {
		if _, err := requirePermission(ctx, h.policy, auth.PermStageRead); err != nil {
			return nil, handleError(err)
		}
		items, err := h.engine.ListStages(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &output[StageListResponse]{Body: StageListResponse{Items: nonNilSlice(items)}}, nil
	})
}

func (h handlers) registerTransitions(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "check-transition",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/transition/check",
		Summary:     "Report whether the current stage looks ready to leave",
		Description: "Advisory only. A transition is never refused because of this report.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ToStage   string `query:"to_stage"`
	}) (*output[CheckResponse], error) {
		if _, err := requirePermission(ctx, h.policy, auth.PermStageRead); err != nil {
			return nil, handleError(err)
		}
		check, err := h.engine.CanTransition(ctx, engine.CheckInput{ProjectID: input.ProjectID, ToStage: input.ToStage})
		if err != nil {
			return nil, handleError(err)
		}
		check.Reasons = nonNilSlice(check.Reasons)
		check.Warnings = nonNilSlice(check.Warnings)
		return &output[CheckResponse]{Body: check}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-project",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/transition",
		Summary:     "Move a project to another stage",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Body      TransitionRequest
	}) (*output[TransitionResponse], error) {
		principal, err := requirePermission(ctx, h.policy, auth.PermStageTransition)
		if err != nil {
			return nil, handleError(err)
		}
		res, err := h.engine.Transition(ctx, engine.TransitionInput{
			ProjectID:          input.ProjectID,
			ActorID:            principal.UserID,
			ToStage:            input.Body.ToStage,
			Reason:             input.Body.Reason,
			Notes:              input.Body.Notes,
			ChecklistCompleted: input.Body.ChecklistCompleted,
			ApprovalReceived:   input.Body.ApprovalReceived,
			ApprovalID:         input.Body.ApprovalID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &output[TransitionResponse]{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-transitions",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/transitions",
		Summary:     "Transition history, most recent first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*output[HistoryResponse], error) {
		if _, err := requirePermission(ctx, h.policy, auth.PermStageHistory); err != nil {
			return nil, handleError(err)
		}
		items, err := h.engine.History(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &output[HistoryResponse]{Body: HistoryResponse{Items: nonNilSlice(items)}}, nil
	})
}

func (h handlers) registerActivity(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-activity",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/activity",
		Summary:     "Audit entries of a project, newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		EventType string `query:"event_type"`
		Limit     int    `query:"limit" minimum:"0"`
	}) (*output[ActivityResponse], error) {
		if _, err := requirePermission(ctx, h.policy, auth.PermProjectRead); err != nil {
			return nil, handleError(err)
		}
		items, err := h.engine.ActivityLog(ctx, repo.ActivityFilter{
			ProjectID: input.ProjectID,
			EventType: input.EventType,
			Limit:     input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &output[ActivityResponse]{Body: ActivityResponse{Items: nonNilSlice(items)}}, nil
	})
}

func (h handlers) registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "whoami",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "The authenticated principal and its effective permissions",
	}, func(ctx context.Context, _ *struct{}) (*output[WhoAmIResponse], error) {
		principal, err := principalFromRequest(ctx)
		if err != nil {
			return nil, err
		}
		perms := h.policy.Permissions(principal.Roles)
		perms = append(perms, principal.Permissions...)
		return &output[WhoAmIResponse]{Body: WhoAmIResponse{
			UserID:      principal.UserID,
			Roles:       nonNilSlice(principal.Roles),
			Permissions: nonNilSlice(perms),
			Source:      principal.Source,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/me/notifications",
		Summary:     "Notifications addressed to the authenticated user",
	}, func(ctx context.Context, input *struct {
		Unread    bool   `query:"unread"`
		ProjectID string `query:"project_id"`
		Limit     int    `query:"limit" minimum:"0"`
	}) (*output[NotificationListResponse], error) {
		principal, err := principalFromRequest(ctx)
		if err != nil {
			return nil, err
		}
		items, lerr := h.engine.Notifications(ctx, repo.NotificationFilter{
			UserID:     principal.UserID,
			ProjectID:  input.ProjectID,
			UnreadOnly: input.Unread,
			Limit:      input.Limit,
		})
		if lerr != nil {
			return nil, handleError(lerr)
		}
		return &output[NotificationListResponse]{Body: NotificationListResponse{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "read-notification",
		Method:        http.MethodPost,
		Path:          "/me/notifications/{notification_id}/read",
		Summary:       "Mark a notification read",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		NotificationID string `path:"notification_id"`
	}) (*struct{}, error) {
		principal, err := principalFromRequest(ctx)
		if err != nil {
			return nil, err
		}
		if merr := h.engine.MarkNotificationRead(ctx, principal.UserID, input.NotificationID); merr != nil {
			return nil, handleError(merr)
		}
		return &struct{}{}, nil
	})
}
