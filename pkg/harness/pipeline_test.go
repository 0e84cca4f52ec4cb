package harness

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cruzjc/pi5-dashboard/pkg/config"
	"github.com/cruzjc/pi5-dashboard/pkg/fault"
	"github.com/cruzjc/pi5-dashboard/pkg/models"
	"github.com/cruzjc/pi5-dashboard/pkg/persona"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	limits, err := config.ResolveLimits(config.Limits{})
	require.NoError(t, err)
	return NewService(Options{
		SharedRepos:  t.TempDir(),
		RunsDir:      t.TempDir(),
		ArtifactsDir: t.TempDir(),
		WorktreesDir: t.TempDir(),
		Limits:       limits,
		Personas:     persona.NewRegistry(persona.Defaults()),
	})
}

func newTestRun(t *testing.T, s *Service, task models.TaskInput) *Run {
	t.Helper()
	id := "test-run"
	r := newRun(id, task, NewArtifactStore(t.TempDir()), nil, 1024)
	s.mu.Lock()
	s.runs[id] = r
	s.mu.Unlock()
	return r
}

func stageNamed(t *testing.T, snap models.RunSnapshot, name string) models.StageInfo {
	t.Helper()
	for _, st := range snap.Stages {
		if st.Name == name {
			return st
		}
	}
	t.Fatalf("stage %s not in snapshot", name)
	return models.StageInfo{}
}

func TestExecuteAllCompleted(t *testing.T) {
	s := newTestService(t)
	r := newTestRun(t, s, models.TaskInput{Title: "t", RepoPath: "/x", Objective: "o"})

	var order []string
	defs := make([]stageDef, 0, len(StageOrder))
	for _, name := range StageOrder {
		name := name
		defs = append(defs, stageDef{name, func(r *Run) stageOutcome {
			order = append(order, name)
			return completed("")
		}})
	}
	s.execute(r, defs)

	assert.Equal(t, StageOrder, order)

	snap := r.Snapshot()
	assert.Equal(t, models.RunCompleted, snap.Status)
	require.NotNil(t, snap.StartedAt)
	require.NotNil(t, snap.FinishedAt)
	assert.Empty(t, snap.CurrentStage)
	for _, st := range snap.Stages {
		assert.Equal(t, models.StageCompleted, st.Status, st.Name)
	}
	// The deterministic summary lands in the snapshot and as an artifact.
	assert.Contains(t, snap.SummaryText, "Status: completed")
	require.NotEmpty(t, snap.Artifacts)

	// The run also persisted to disk.
	persisted, err := s.store.Load(r.ID())
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, persisted.Status)
}

func TestExecuteStopsAtFailure(t *testing.T) {
	s := newTestService(t)
	r := newTestRun(t, s, models.TaskInput{Title: "t", RepoPath: "/x", Objective: "o"})

	ran := map[string]bool{}
	defs := []stageDef{
		{StageInit, func(r *Run) stageOutcome { ran[StageInit] = true; return completed("") }},
		{StageWorktreePrepare, func(r *Run) stageOutcome {
			ran[StageWorktreePrepare] = true
			return failed(fmt.Errorf("boom"))
		}},
		{StageArtifactScaffold, func(r *Run) stageOutcome {
			ran[StageArtifactScaffold] = true
			return completed("")
		}},
	}
	s.execute(r, defs)

	assert.True(t, ran[StageInit])
	assert.True(t, ran[StageWorktreePrepare])
	assert.False(t, ran[StageArtifactScaffold], "stages after a failure must not run")

	snap := r.Snapshot()
	assert.Equal(t, models.RunFailed, snap.Status)
	assert.Equal(t, "stage worktree_prepare: boom", snap.Error)
	assert.Equal(t, models.StageFailed, stageNamed(t, snap, StageWorktreePrepare).Status)
	assert.Equal(t, models.StagePending, stageNamed(t, snap, StageArtifactScaffold).Status)
	assert.Contains(t, snap.SummaryText, "First failed stage: worktree_prepare")
}

func TestExecuteSkippedStagesDoNotStopTheRun(t *testing.T) {
	s := newTestService(t)
	r := newTestRun(t, s, models.TaskInput{Title: "t", RepoPath: "/x", Objective: "o"})

	defs := []stageDef{
		{StageInit, func(r *Run) stageOutcome { return completed("") }},
		{StageSubtaskFanout, func(r *Run) stageOutcome { return skipped("no subtasks") }},
		{StageFinalizeCommit, func(r *Run) stageOutcome { return completed("") }},
	}
	s.execute(r, defs)

	snap := r.Snapshot()
	assert.Equal(t, models.RunCompleted, snap.Status)
	st := stageNamed(t, snap, StageSubtaskFanout)
	assert.Equal(t, models.StageSkipped, st.Status)
	assert.Equal(t, "no subtasks", st.Detail)
}

func TestExecuteCancelBetweenStages(t *testing.T) {
	s := newTestService(t)
	r := newTestRun(t, s, models.TaskInput{Title: "t", RepoPath: "/x", Objective: "o"})

	ranSecond := false
	defs := []stageDef{
		{StageInit, func(r *Run) stageOutcome {
			r.RequestCancel()
			return completed("")
		}},
		{StageWorktreePrepare, func(r *Run) stageOutcome { ranSecond = true; return completed("") }},
	}
	s.execute(r, defs)

	assert.False(t, ranSecond)
	snap := r.Snapshot()
	assert.Equal(t, models.RunCancelled, snap.Status)
	assert.Equal(t, "cancelled", snap.Error)
	require.NotNil(t, snap.FinishedAt)
}

func TestExecuteCancelledStageOutcome(t *testing.T) {
	s := newTestService(t)
	r := newTestRun(t, s, models.TaskInput{Title: "t", RepoPath: "/x", Objective: "o"})

	defs := []stageDef{
		{StageInit, func(r *Run) stageOutcome {
			return failed(fmt.Errorf("subtask 2: %w", fault.ErrCancelled))
		}},
	}
	s.execute(r, defs)

	snap := r.Snapshot()
	assert.Equal(t, models.RunCancelled, snap.Status)
	assert.Equal(t, "cancelled", stageNamed(t, snap, StageInit).Detail)
}

func TestFailedMapsCancellation(t *testing.T) {
	out := failed(errors.New("plain"))
	assert.Equal(t, stageFailed, out.kind)

	out = failed(fmt.Errorf("wrapped: %w", fault.ErrCancelled))
	assert.Equal(t, stageCancelled, out.kind)
}
