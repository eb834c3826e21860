package engine

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"stageflow/internal/config"
	"stageflow/internal/db"
	"stageflow/internal/domain"
	"stageflow/internal/events"
	"stageflow/internal/notify"
	"stageflow/internal/outbox"
	"stageflow/internal/repo"
	"stageflow/internal/stages"
)

// Notifier fans a message out to recipients inside the caller's transaction.
type Notifier interface {
	Notify(ctx context.Context, tx *sql.Tx, recipients []string, msg notify.Message) ([]domain.Notification, error)
}

// ActivityRecorder appends audit entries inside the caller's transaction.
type ActivityRecorder interface {
	Record(ctx context.Context, tx *sql.Tx, a domain.Activity, payload events.Payload) error
}

// OutboxWriter stores an event for publication after commit.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx *sql.Tx, routingKey string, payload any) error
}

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Catalog  stages.Catalog
	Notifier Notifier
	Audit    ActivityRecorder
	// Outbox may be nil, in which case no broker event is written.
	Outbox OutboxWriter
	Config *config.Config
	Logger *slog.Logger
	Now    func() time.Time
}

// New wires an engine with the default SQL-backed collaborators. The
// collaborators share e.Now through a closure so tests can swap the clock.
func New(conn *sql.DB, dialect db.Dialect, cfg *config.Config, logger *slog.Logger) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := repo.Repo{DB: conn, Dialect: dialect}
	e := &Engine{
		DB:      conn,
		Repo:    r,
		Catalog: cfg.Catalog(),
		Config:  cfg,
		Logger:  logger,
		Now:     time.Now,
	}
	clock := func() time.Time { return e.now() }
	e.Notifier = notify.Dispatcher{Repo: r, Now: clock}
	e.Audit = events.Writer{Repo: r, Now: clock}
	e.Outbox = outbox.Store{DB: conn, Dialect: dialect, Now: clock}
	return e
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *Engine) begin(ctx context.Context, op string) (*sql.Tx, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr(op, err)
	}
	return tx, nil
}

func (e *Engine) priority() string {
	if e.Config != nil && e.Config.Notifications.Priority != "" {
		return e.Config.Notifications.Priority
	}
	return "high"
}

func (e *Engine) projectLink(projectID string) string {
	if e.Config != nil && e.Config.Notifications.LinkTemplate != "" {
		return e.Config.ProjectLink(projectID)
	}
	return "/projects/" + projectID
}
