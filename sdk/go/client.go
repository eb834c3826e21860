package stageflowsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Stageflow HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// Project is the lifecycle summary of a project.
type Project struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	ClientID      *string `json:"client_id,omitempty"`
	CurrentStage  string  `json:"current_stage"`
	CurrentPhase  string  `json:"current_phase"`
	Status        string  `json:"status"`
	Progress      int     `json:"progress"`
	ActualEndDate *string `json:"actual_end_date,omitempty"`
	Version       int64   `json:"version"`
	Stages        []Stage `json:"stages,omitempty"`
}

// Stage is one per-project stage record.
type Stage struct {
	ID                 string  `json:"id"`
	StageNumber        int     `json:"stage_number"`
	StageName          string  `json:"stage_name"`
	Status             string  `json:"status"`
	ProgressPercentage int     `json:"progress_percentage"`
	ActualStartDate    *string `json:"actual_start_date,omitempty"`
	ActualEndDate      *string `json:"actual_end_date,omitempty"`
}

// TransitionRequest moves a project to ToStage, a stage display name.
type TransitionRequest struct {
	ToStage            string  `json:"to_stage"`
	Reason             *string `json:"reason,omitempty"`
	Notes              *string `json:"notes,omitempty"`
	ChecklistCompleted bool    `json:"checklist_completed,omitempty"`
	ApprovalReceived   bool    `json:"approval_received,omitempty"`
	ApprovalID         *string `json:"approval_id,omitempty"`
}

type TransitionResult struct {
	TransitionID   string `json:"transition_id"`
	FromStage      string `json:"from_stage"`
	ToStage        string `json:"to_stage"`
	TransitionedAt string `json:"transitioned_at"`
}

// Check is the advisory readiness report of the current stage.
type Check struct {
	Allowed       bool     `json:"allowed"`
	Reasons       []string `json:"reasons"`
	Warnings      []string `json:"warnings"`
	CurrentStage  string   `json:"current_stage"`
	TargetStage   string   `json:"target_stage,omitempty"`
	StageProgress struct {
		TotalTasks         int `json:"total_tasks"`
		CompletedTasks     int `json:"completed_tasks"`
		ProgressPercentage int `json:"progress_percentage"`
	} `json:"stage_progress"`
}

// Transition is one history entry.
type Transition struct {
	ID                 string  `json:"id"`
	FromStage          string  `json:"from_stage"`
	ToStage            string  `json:"to_stage"`
	TransitionedBy     string  `json:"transitioned_by"`
	TransitionedByName string  `json:"transitioned_by_name,omitempty"`
	Reason             *string `json:"reason,omitempty"`
	Notes              *string `json:"notes,omitempty"`
	ChecklistCompleted bool    `json:"checklist_completed"`
	ApprovalReceived   bool    `json:"approval_received"`
	ApprovalID         *string `json:"approval_id,omitempty"`
	ApprovalTitle      *string `json:"approval_title,omitempty"`
	TransitionedAt     string  `json:"transitioned_at"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateProject creates a project. An empty id lets the server pick one.
func (c *Client) CreateProject(ctx context.Context, id, name string) (Project, error) {
	body := map[string]any{"name": name}
	if id != "" {
		body["id"] = id
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "projects", body, &resp)
	return resp, err
}

// GetProject returns a project with its stage records.
func (c *Client) GetProject(ctx context.Context, projectID string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, c.projectPath(projectID, ""), nil, &resp)
	return resp, err
}

// CanTransition asks whether the project's current stage looks finished.
func (c *Client) CanTransition(ctx context.Context, projectID, toStage string) (Check, error) {
	endpoint := c.projectPath(projectID, "transition/check")
	if toStage != "" {
		endpoint += "?to_stage=" + url.QueryEscape(toStage)
	}
	var resp Check
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) Transition(ctx context.Context, projectID string, req TransitionRequest) (TransitionResult, error) {
	var resp TransitionResult
	err := c.do(ctx, http.MethodPost, c.projectPath(projectID, "transition"), req, &resp)
	return resp, err
}

// History returns the project's transitions, most recent first.
func (c *Client) History(ctx context.Context, projectID string) ([]Transition, error) {
	var resp struct {
		Items []Transition `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, c.projectPath(projectID, "transitions"), nil, &resp)
	return resp.Items, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(projectID, p string) string {
	base := "projects/" + url.PathEscape(projectID)
	if p == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}
