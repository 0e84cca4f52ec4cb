package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cruzjc/pi5-dashboard/pkg/models"
	"github.com/cruzjc/pi5-dashboard/pkg/persona"
)

func TestRenderTaskSpec(t *testing.T) {
	task := models.TaskInput{
		Title:                "Add export button",
		RepoPath:             "/srv/repos/app",
		Objective:            "Users can export their data as CSV.",
		SuccessCriteria:      []string{"button visible on the settings page"},
		VerificationCommands: []string{"make test"},
		BrowserScenarios:     []models.BrowserScenario{{Name: "settings", URL: "http://localhost:3000/settings"}},
		SubtaskCount:         2,
	}
	r := newRun("run-1", task, NewArtifactStore(t.TempDir()), nil, 1024)
	p := persona.Persona{ID: "aria", Name: "Aria", Personality: "Calm."}

	got := renderTaskSpec(r, &p)
	assert.Contains(t, got, "# Task: Add export button")
	assert.Contains(t, got, "- Run: run-1")
	assert.Contains(t, got, "- Base branch: (current)")
	assert.Contains(t, got, "- Subtasks: 2")
	assert.Contains(t, got, "Users can export their data as CSV.")
	assert.Contains(t, got, "## Success criteria")
	assert.Contains(t, got, "button visible on the settings page")
	assert.Contains(t, got, "## Verification commands")
	assert.Contains(t, got, "## Browser scenarios")
	assert.Contains(t, got, "settings: http://localhost:3000/settings")
	assert.Contains(t, got, "## Voice")

	// Without a persona the voice section disappears.
	got = renderTaskSpec(r, nil)
	assert.NotContains(t, got, "## Voice")
	// Empty optional sections are omitted entirely.
	assert.NotContains(t, got, "## Constraints")
}

func TestRenderAgentsDoc(t *testing.T) {
	layout := &models.WorktreeLayout{
		Parent: models.WorktreeInfo{Path: "/wt/parent", Branch: "harness/2026-08-26/x-abc123"},
		Subtasks: []models.SubtaskWorktree{
			{Name: "subtask-1", Path: "/wt/sub1", Branch: "harness/2026-08-26/x-abc123-sub1"},
		},
	}
	got := renderAgentsDoc(layout)
	assert.Contains(t, got, "parent: /wt/parent (branch harness/2026-08-26/x-abc123)")
	assert.Contains(t, got, "subtask-1: /wt/sub1 (branch harness/2026-08-26/x-abc123-sub1)")
}

func TestRenderSubtaskBrief(t *testing.T) {
	task := models.TaskInput{
		Objective:      "obj",
		SubtaskCount:   3,
		SubtaskPrompts: []string{"do the schema migration"},
	}
	r := newRun("run-1", task, NewArtifactStore(t.TempDir()), nil, 1024)

	// Subtask 1 has an explicit prompt; subtask 2 falls back to the template.
	got := renderSubtaskBrief(r, 1)
	assert.Contains(t, got, "# Subtask 1")
	assert.Contains(t, got, "do the schema migration")

	got = renderSubtaskBrief(r, 2)
	assert.Contains(t, got, "slice 2 of 3")
	assert.NotContains(t, got, "## Instructions")
}

func TestRenderVerificationPlan(t *testing.T) {
	got := renderVerificationPlan(models.TaskInput{})
	assert.Contains(t, got, "No verification commands")

	got = renderVerificationPlan(models.TaskInput{VerificationCommands: []string{"go vet ./...", "make test"}})
	assert.Contains(t, got, "go vet ./...")
	assert.Contains(t, got, "make test")
	assert.Contains(t, got, "bash -lc")
}

func TestSubtaskPromptOverride(t *testing.T) {
	task := models.TaskInput{SubtaskPrompts: []string{"  first  ", ""}}
	assert.Equal(t, "first", subtaskPromptOverride(task, 1))
	assert.Equal(t, "", subtaskPromptOverride(task, 2))
	assert.Equal(t, "", subtaskPromptOverride(task, 3))
}
