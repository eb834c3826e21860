package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stageflow/internal/db"
)

func TestLoadMigrationsBothDialects(t *testing.T) {
	for _, d := range []db.Dialect{db.SQLite, db.Postgres} {
		ms, err := loadMigrations(d)
		require.NoError(t, err, d)
		require.NotEmpty(t, ms)
		assert.Equal(t, 1, ms[0].Version)
		assert.Contains(t, ms[0].UpSQL, "CREATE TABLE stage_transitions")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, Migrate(conn, dialect))
	require.NoError(t, Migrate(conn, dialect))

	var version int
	require.NoError(t, conn.QueryRow(`SELECT version FROM schema_version`).Scan(&version))
	assert.Equal(t, 1, version)

	var n int
	require.NoError(t, conn.QueryRow(`SELECT count(*) FROM project_stages`).Scan(&n))
	assert.Zero(t, n)
}
