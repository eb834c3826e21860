package notify

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stageflow/internal/domain"
	"stageflow/internal/repo"
)

// Message is a notification addressed to several users at once.
type Message struct {
	ProjectID string
	Title     string
	Message   string
	Link      string
	Priority  string
}

// Dispatcher stores one notification row per recipient.
type Dispatcher struct {
	Repo repo.Repo
	Now  func() time.Time
}

// Notify writes msg for every recipient inside tx, in the given order, and
// returns the stored notifications. An empty recipient list is a no-op.
func (d Dispatcher) Notify(ctx context.Context, tx *sql.Tx, recipients []string, msg Message) ([]domain.Notification, error) {
	if tx == nil {
		return nil, fmt.Errorf("notify requires a transaction")
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	priority := msg.Priority
	if priority == "" {
		priority = "medium"
	}
	created := domain.Timestamp(d.Now())
	out := make([]domain.Notification, 0, len(recipients))
	seen := make(map[string]bool, len(recipients))
	for _, userID := range recipients {
		if userID == "" || seen[userID] {
			continue
		}
		seen[userID] = true
		n := domain.Notification{
			ID:        uuid.NewString(),
			UserID:    userID,
			ProjectID: msg.ProjectID,
			Title:     msg.Title,
			Message:   msg.Message,
			Link:      msg.Link,
			Priority:  priority,
			CreatedAt: created,
		}
		if err := d.Repo.InsertNotification(ctx, tx, n); err != nil {
			return nil, fmt.Errorf("notify %s: %w", userID, err)
		}
		out = append(out, n)
	}
	return out, nil
}
