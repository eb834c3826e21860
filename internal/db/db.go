package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const defaultDBName = "stageflow.db"

// Dialect captures the SQL differences between the supported stores.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// Rebind rewrites ? placeholders to $n for postgres.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// ForUpdate is the row-lock suffix for a SELECT inside a transaction. SQLite
// has no row locks; its transactions are opened IMMEDIATE instead.
func (d Dialect) ForUpdate() string {
	if d == Postgres {
		return " FOR UPDATE"
	}
	return ""
}

type Config struct {
	Driver    string
	Workspace string
	Path      string
	URL       string
}

func dbPath(cfg Config) string {
	if cfg.Path != "" {
		if filepath.IsAbs(cfg.Path) {
			return cfg.Path
		}
		return filepath.Join(workspaceDir(cfg.Workspace), cfg.Path)
	}
	return filepath.Join(workspaceDir(cfg.Workspace), ".stageflow", defaultDBName)
}

func workspaceDir(workspace string) string {
	if workspace == "" {
		return "."
	}
	return workspace
}

// EnsureWorkspace creates the directory holding the sqlite file.
func EnsureWorkspace(cfg Config) (string, error) {
	dir := filepath.Dir(dbPath(cfg))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Open opens the configured store. SQLite connections run with foreign keys on,
// WAL journaling, a busy timeout and IMMEDIATE transactions so concurrent
// writers queue instead of failing.
func Open(cfg Config) (*sql.DB, Dialect, error) {
	switch cfg.Driver {
	case "", string(SQLite):
		if _, err := EnsureWorkspace(cfg); err != nil {
			return nil, "", err
		}
		dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_txlock=immediate", dbPath(cfg))
		conn, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, "", err
		}
		return conn, SQLite, nil
	case string(Postgres):
		if cfg.URL == "" {
			return nil, "", fmt.Errorf("database url required for postgres")
		}
		conn, err := sql.Open("pgx", cfg.URL)
		if err != nil {
			return nil, "", err
		}
		return conn, Postgres, nil
	default:
		return nil, "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
