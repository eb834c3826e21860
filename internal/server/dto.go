package server

import (
	"stageflow/internal/domain"
	"stageflow/internal/engine"
)

// Request payloads

type CreateProjectRequest struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name" minLength:"1"`
	ClientID string `json:"client_id,omitempty"`
	TeamLead string `json:"team_lead,omitempty"`
}

type TransitionRequest struct {
	ToStage            string  `json:"to_stage" example:"Development"`
	Reason             *string `json:"reason,omitempty"`
	Notes              *string `json:"notes,omitempty"`
	ChecklistCompleted bool    `json:"checklist_completed,omitempty"`
	ApprovalReceived   bool    `json:"approval_received,omitempty"`
	ApprovalID         *string `json:"approval_id,omitempty"`
}

type DevLoginRequest struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles,omitempty"`
}

// Responses

type ProjectResponse struct {
	domain.Project
	Stages []domain.StageRecord `json:"stages,omitempty"`
}

type ProjectListResponse struct {
	Items []domain.Project `json:"items"`
}

type StageListResponse struct {
	Items []domain.StageRecord `json:"items"`
}

type TransitionResponse = engine.TransitionResult

type CheckResponse = engine.Check

type HistoryResponse struct {
	Items []domain.TransitionView `json:"items"`
}

type ActivityResponse struct {
	Items []domain.Activity `json:"items"`
}

type NotificationListResponse struct {
	Items []domain.Notification `json:"items"`
}

type WhoAmIResponse struct {
	UserID      string   `json:"user_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Source      string   `json:"source"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
