package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stageflow/internal/domain"
	"stageflow/internal/engine"
)

func TestEvaluate(t *testing.T) {
	cases := []struct {
		name     string
		stage    domain.StageRecord
		counts   domain.TaskCounts
		allowed  bool
		reasons  []string
		warnings []string
	}{
		{
			name:     "finished stage",
			stage:    domain.StageRecord{StageName: "Testing", Status: domain.StageInProgress, ProgressPercentage: 100},
			counts:   domain.TaskCounts{Total: 2, Completed: 2},
			allowed:  true,
			reasons:  []string{},
			warnings: []string{},
		},
		{
			name:     "pending work only warns",
			stage:    domain.StageRecord{StageName: "Testing", Status: domain.StageInProgress, ProgressPercentage: 60},
			counts:   domain.TaskCounts{Total: 5, Completed: 3},
			allowed:  true,
			reasons:  []string{},
			warnings: []string{"2 tasks still pending", "stage only 60% complete"},
		},
		{
			name:     "blocked regardless of counts",
			stage:    domain.StageRecord{StageName: "Testing", Status: domain.StageBlocked, ProgressPercentage: 100},
			counts:   domain.TaskCounts{Total: 1, Completed: 1},
			allowed:  false,
			reasons:  []string{"current stage Testing is blocked"},
			warnings: []string{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := engine.Evaluate(tc.stage, tc.counts)
			assert.Equal(t, tc.allowed, c.Allowed)
			assert.Equal(t, tc.reasons, c.Reasons)
			assert.Equal(t, tc.warnings, c.Warnings)
			assert.Equal(t, tc.counts.Total, c.StageProgress.TotalTasks)
			assert.Equal(t, tc.counts.Completed, c.StageProgress.CompletedTasks)
			assert.Equal(t, tc.stage.ProgressPercentage, c.StageProgress.ProgressPercentage)
		})
	}
}

func TestCanTransitionReportsCurrentStage(t *testing.T) {
	env := newTestEnv(t)
	env.seedProject(t)
	before := env.snapshot(t)

	c, err := env.Engine.CanTransition(env.Ctx, engine.CheckInput{ProjectID: "P1", ToStage: "UI/UX Design"})
	require.NoError(t, err)
	assert.True(t, c.Allowed)
	assert.Equal(t, "Planning", c.CurrentStage)
	assert.Equal(t, "UI/UX Design", c.TargetStage)
	assert.Equal(t, engine.StageProgress{TotalTasks: 3, CompletedTasks: 1, ProgressPercentage: 0}, c.StageProgress)
	assert.Equal(t, []string{"2 tasks still pending", "stage only 0% complete"}, c.Warnings)

	again, err := env.Engine.CanTransition(env.Ctx, engine.CheckInput{ProjectID: "P1", ToStage: "UI/UX Design"})
	require.NoError(t, err)
	assert.Equal(t, c, again)
	assert.Equal(t, before, env.snapshot(t))
}

func TestCanTransitionBlockedStage(t *testing.T) {
	env := newTestEnv(t)
	env.seedProject(t)
	env.exec(t, `UPDATE tasks SET status='completed' WHERE project_id='P1'`)
	env.exec(t, `UPDATE project_stages SET status='blocked', progress_percentage=100 WHERE project_id='P1' AND stage_name='Planning'`)

	c, err := env.Engine.CanTransition(env.Ctx, engine.CheckInput{ProjectID: "P1"})
	require.NoError(t, err)
	assert.False(t, c.Allowed)
	assert.Equal(t, []string{"current stage Planning is blocked"}, c.Reasons)
	assert.Empty(t, c.Warnings)

	// advisory only: the executor still moves a blocked project
	res := env.move(t, "UI/UX Design")
	assert.Equal(t, "Planning", res.FromStage)
}

func TestCanTransitionErrors(t *testing.T) {
	env := newTestEnv(t)
	env.seedProject(t)

	_, err := env.Engine.CanTransition(env.Ctx, engine.CheckInput{ProjectID: "missing"})
	assert.ErrorIs(t, err, engine.ErrNotFound)
	_, err = env.Engine.CanTransition(env.Ctx, engine.CheckInput{})
	assert.ErrorIs(t, err, engine.ErrValidation)

	c, err := env.Engine.CanTransition(env.Ctx, engine.CheckInput{ProjectID: "P1", ToStage: "Launch"})
	require.NoError(t, err)
	assert.Contains(t, c.Warnings, "target stage Launch not found for project")

	env.exec(t, `DELETE FROM project_stages WHERE project_id='P1' AND stage_name='Planning'`)
	_, err = env.Engine.CanTransition(env.Ctx, engine.CheckInput{ProjectID: "P1"})
	require.ErrorIs(t, err, engine.ErrNotFound)
	assert.Contains(t, err.Error(), "stage data inconsistency")
}

func TestTransitionWithoutSourceRecord(t *testing.T) {
	env := newTestEnv(t)
	env.seedProject(t)
	env.exec(t, `DELETE FROM project_stages WHERE project_id='P1' AND stage_name='Planning'`)

	res := env.move(t, "UI/UX Design")
	assert.Equal(t, "Planning", res.FromStage)
	history, err := env.Engine.History(env.Ctx, "P1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].FromStageID)
	assertSingleActive(t, env)
}
