package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stageflow/internal/config"
	"stageflow/internal/engine"
	"stageflow/internal/outbox"
)

func TestBootstrapDefaultsAndRelay(t *testing.T) {
	dir := t.TempDir()
	var logs bytes.Buffer
	a, err := Bootstrap(context.Background(), Settings{Workspace: dir, LogFormat: "json", LogOutput: &logs})
	require.NoError(t, err)
	defer a.Close()

	assert.FileExists(t, filepath.Join(dir, ".stageflow", "stageflow.db"))
	_, err = a.Engine.CreateProject(context.Background(), engine.CreateProjectInput{ID: "P1", Name: "Site", ActorID: "pm"})
	require.NoError(t, err)
	assert.Contains(t, logs.String(), `"msg":"project created"`)

	pub, err := a.Publisher()
	require.NoError(t, err)
	assert.IsType(t, outbox.LogPublisher{}, pub)

	_, err = a.Engine.Transition(context.Background(), engine.TransitionInput{ProjectID: "P1", ActorID: "pm", ToStage: "UI/UX Design"})
	require.NoError(t, err)
	relay := a.Relay(pub)
	require.NoError(t, relay.ProcessOnce(context.Background()))
	assert.Equal(t, uint64(1), relay.Stats().Published)
	assert.Contains(t, logs.String(), "project.stage.transitioned")
}

func TestBootstrapRequireConfig(t *testing.T) {
	dir := t.TempDir()
	_, err := Bootstrap(context.Background(), Settings{Workspace: dir, RequireConfig: true, LogOutput: &bytes.Buffer{}})
	require.Error(t, err)

	require.NoError(t, os.WriteFile(config.Path(dir), []byte("log:\n  level: debug\n"), 0o644))
	a, err := Bootstrap(context.Background(), Settings{Workspace: dir, RequireConfig: true, LogOutput: &bytes.Buffer{}})
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, "debug", a.Config.Log.Level)
}

func TestBootstrapRejectsUnknownDriver(t *testing.T) {
	_, err := Bootstrap(context.Background(), Settings{Workspace: t.TempDir(), Driver: "mysql", LogOutput: &bytes.Buffer{}})
	require.Error(t, err)
}
