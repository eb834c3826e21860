package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stageflow/internal/domain"
	"stageflow/internal/repo"
)

// Activity event types.
const (
	ProjectCreated    = "project.created"
	ProjectDeleted    = "project.deleted"
	StageTransitioned = "stage.transitioned"
)

// Writer records audit entries in activity_logs within the caller's transaction.
type Writer struct {
	Repo repo.Repo
	Now  func() time.Time
}

type Payload map[string]any

// Record appends an activity entry. ID and CreatedAt are filled when empty;
// payload, when non-nil, is stored as JSON.
func (w Writer) Record(ctx context.Context, tx *sql.Tx, a domain.Activity, payload Payload) error {
	if tx == nil {
		return fmt.Errorf("activity record requires a transaction")
	}
	if w.Now == nil {
		w.Now = time.Now
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt == "" {
		a.CreatedAt = domain.Timestamp(w.Now())
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal activity payload: %w", err)
		}
		a.Payload = string(data)
	}
	return w.Repo.InsertActivity(ctx, tx, a)
}
