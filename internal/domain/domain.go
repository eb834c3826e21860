package domain

// Project statuses.
const (
	ProjectPlanning   = "Planning"
	ProjectInProgress = "In Progress"
	ProjectOnHold     = "On Hold"
	ProjectCompleted  = "Completed"
	ProjectCancelled  = "Cancelled"
)

// Stage record statuses.
const (
	StageNotStarted = "not_started"
	StageInProgress = "in_progress"
	StageCompleted  = "completed"
	StageBlocked    = "blocked"
)

// Project is the aggregate summary of a project's lifecycle position.
type Project struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	ClientID      *string `json:"client_id,omitempty"`
	CurrentStage  string  `json:"current_stage"`
	CurrentPhase  string  `json:"current_phase"`
	Status        string  `json:"status" enum:"Planning,In Progress,On Hold,Completed,Cancelled"`
	Progress      int     `json:"progress" minimum:"0" maximum:"100"`
	ActualEndDate *string `json:"actual_end_date,omitempty" format:"date-time"`
	Version       int64   `json:"version"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	UpdatedAt     string  `json:"updated_at" format:"date-time"`
}

// StageRecord is the per-project progress row for one stage.
type StageRecord struct {
	ID                 string  `json:"id"`
	ProjectID          string  `json:"project_id"`
	StageNumber        int     `json:"stage_number"`
	StageName          string  `json:"stage_name"`
	Status             string  `json:"status" enum:"not_started,in_progress,completed,blocked"`
	ProgressPercentage int     `json:"progress_percentage" minimum:"0" maximum:"100"`
	StartDate          *string `json:"start_date,omitempty" format:"date"`
	EndDate            *string `json:"end_date,omitempty" format:"date"`
	ActualStartDate    *string `json:"actual_start_date,omitempty" format:"date"`
	ActualEndDate      *string `json:"actual_end_date,omitempty" format:"date"`
	AssignedTeamLead   *string `json:"assigned_team_lead,omitempty"`
}

// Transition is an immutable record of one lifecycle move.
type Transition struct {
	ID                 string  `json:"id"`
	ProjectID          string  `json:"project_id"`
	FromStage          string  `json:"from_stage"`
	ToStage            string  `json:"to_stage"`
	FromStageID        *string `json:"from_stage_id,omitempty"`
	ToStageID          string  `json:"to_stage_id"`
	TransitionedBy     string  `json:"transitioned_by"`
	Reason             *string `json:"reason,omitempty"`
	Notes              *string `json:"notes,omitempty"`
	ChecklistCompleted bool    `json:"checklist_completed"`
	ApprovalReceived   bool    `json:"approval_received"`
	ApprovalID         *string `json:"approval_id,omitempty"`
	TransitionedAt     string  `json:"transitioned_at" format:"date-time"`
}

// TransitionView is a Transition enriched for display.
type TransitionView struct {
	Transition
	TransitionedByName   string  `json:"transitioned_by_name,omitempty"`
	TransitionedByEmail  string  `json:"transitioned_by_email,omitempty"`
	TransitionedByAvatar *string `json:"transitioned_by_avatar,omitempty"`
	ApprovalTitle        *string `json:"approval_title,omitempty"`
	ApprovalStatus       *string `json:"approval_status,omitempty"`
}

// TaskCounts aggregates task completion for one stage.
type TaskCounts struct {
	Total     int `json:"total_tasks"`
	Completed int `json:"completed_tasks"`
}

type User struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	AvatarURL *string `json:"avatar_url,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type Task struct {
	ID         string  `json:"id"`
	ProjectID  string  `json:"project_id"`
	StageID    *string `json:"stage_id,omitempty"`
	AssignedTo *string `json:"assigned_to,omitempty"`
	Title      string  `json:"title"`
	Status     string  `json:"status"`
}

type Approval struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
}

type Notification struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	ProjectID string `json:"project_id,omitempty"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Link      string `json:"link,omitempty"`
	Priority  string `json:"priority" enum:"low,medium,high,urgent"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Activity is one audit log entry.
type Activity struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	ProjectID   string `json:"project_id,omitempty"`
	EventType   string `json:"event_type"`
	Description string `json:"description"`
	Payload     string `json:"payload_json,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string   `json:"id"`
	UserID    string   `json:"user_id"`
	Name      string   `json:"name,omitempty"`
	KeyHash   string   `json:"key_hash"`
	Roles     []string `json:"roles,omitempty"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}
