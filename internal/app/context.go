package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"stageflow/internal/config"
	"stageflow/internal/db"
	"stageflow/internal/engine"
	"stageflow/internal/migrate"
	"stageflow/internal/outbox"
)

// Settings are the process-level overrides applied on top of stageflow.yml.
type Settings struct {
	Workspace   string
	Driver      string
	DatabaseURL string
	LogLevel    string
	LogFormat   string
	RabbitMQURL string
	// RequireConfig fails when stageflow.yml is missing instead of using defaults.
	RequireConfig bool
	LogOutput     io.Writer
}

// App is a wired engine plus the resources it owns.
type App struct {
	Config  *config.Config
	DB      *sql.DB
	Dialect db.Dialect
	Engine  *engine.Engine
	Logger  *slog.Logger
}

// Bootstrap loads config, opens and migrates the store and wires the engine.
func Bootstrap(ctx context.Context, s Settings) (*App, error) {
	var cfg *config.Config
	var err error
	if s.RequireConfig {
		cfg, err = config.Load(s.Workspace)
	} else {
		cfg, err = config.LoadOptional(s.Workspace)
	}
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, s)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	out := s.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger := NewLogger(cfg.Log.Level, cfg.Log.Format, out)

	conn, dialect, err := db.Open(db.Config{
		Driver:    cfg.Database.Driver,
		Workspace: s.Workspace,
		Path:      cfg.Database.Path,
		URL:       cfg.Database.URL,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrate.Migrate(conn, dialect); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Debug("database ready", "driver", dialect)
	return &App{
		Config:  cfg,
		DB:      conn,
		Dialect: dialect,
		Engine:  engine.New(conn, dialect, cfg, logger),
		Logger:  logger,
	}, nil
}

func applyOverrides(cfg *config.Config, s Settings) {
	if s.Driver != "" {
		cfg.Database.Driver = s.Driver
	}
	if s.DatabaseURL != "" {
		cfg.Database.URL = s.DatabaseURL
		if s.Driver == "" {
			cfg.Database.Driver = string(db.Postgres)
		}
	}
	if s.LogLevel != "" {
		cfg.Log.Level = s.LogLevel
	}
	if s.LogFormat != "" {
		cfg.Log.Format = s.LogFormat
	}
	if s.RabbitMQURL != "" {
		cfg.RabbitMQ.URL = s.RabbitMQURL
	}
}

func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

// NewLogger builds a slog logger from level and format names.
func NewLogger(level, format string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Publisher connects to RabbitMQ when a URL is configured and otherwise
// falls back to logging events.
func (a *App) Publisher() (outbox.Publisher, error) {
	if a.Config.RabbitMQ.URL == "" {
		a.Logger.Warn("rabbitmq url not configured, events will only be logged")
		return outbox.LogPublisher{Logger: a.Logger}, nil
	}
	return outbox.NewRabbitMQPublisher(a.Config.RabbitMQ.URL, a.Config.RabbitMQ.Exchange, a.Logger)
}

// Relay builds the outbox relay over this app's store.
func (a *App) Relay(pub outbox.Publisher) *outbox.Relay {
	oc := a.Config.Outbox
	cfg := outbox.DefaultRelayConfig()
	cfg.PollInterval = oc.PollInterval
	cfg.BatchSize = oc.BatchSize
	cfg.MaxRetries = oc.MaxRetries
	cfg.BackoffBase = oc.BackoffBase
	cfg.BackoffMax = oc.BackoffMax
	cfg.RetentionDays = oc.RetentionDays
	store := outbox.Store{DB: a.DB, Dialect: a.Dialect}
	return outbox.NewRelay(store, pub, cfg, a.Logger)
}
