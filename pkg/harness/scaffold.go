package harness

import (
	"fmt"
	"strings"
	"time"

	"github.com/cruzjc/pi5-dashboard/pkg/models"
	"github.com/cruzjc/pi5-dashboard/pkg/persona"
)

// renderTaskSpec builds docs/harness/task-spec.md for the parent worktree.
func renderTaskSpec(r *Run, chosen *persona.Persona) string {
	task := r.task
	var b strings.Builder
	fmt.Fprintf(&b, "# Task: %s\n\n", task.Title)
	fmt.Fprintf(&b, "- Run: %s\n", r.id)
	fmt.Fprintf(&b, "- Repo: %s\n", task.RepoPath)
	fmt.Fprintf(&b, "- Base branch: %s\n", orDefault(task.BaseBranch, "(current)"))
	fmt.Fprintf(&b, "- Subtasks: %d\n\n", task.SubtaskCount)

	b.WriteString("## Objective\n\n")
	b.WriteString(task.Objective)
	b.WriteString("\n")

	writeListSection(&b, "Success criteria", task.SuccessCriteria)
	writeListSection(&b, "Constraints", task.Constraints)
	writeListSection(&b, "Verification commands", task.VerificationCommands)

	if len(task.BrowserScenarios) > 0 {
		b.WriteString("\n## Browser scenarios\n\n")
		for _, sc := range task.BrowserScenarios {
			fmt.Fprintf(&b, "- %s: %s\n", sc.Name, sc.URL)
		}
	}

	if chosen != nil {
		b.WriteString("\n## Voice\n\n")
		b.WriteString(persona.StyleGuide(*chosen))
		b.WriteString("\n")
	}
	return b.String()
}

// renderAgentsDoc describes the working conventions the CLI jobs follow.
func renderAgentsDoc(layout *models.WorktreeLayout) string {
	var b strings.Builder
	b.WriteString("# Working conventions\n\n")
	b.WriteString("- Read `docs/harness/task-spec.md` before changing anything.\n")
	b.WriteString("- Append a dated entry to `docs/harness/run-journal.md` after every work session.\n")
	b.WriteString("- Keep changes scoped to the objective; do not reformat unrelated files.\n")
	b.WriteString("- Subtask work happens in the sibling subtask worktrees; the parent worktree integrates.\n\n")
	b.WriteString("## Worktrees\n\n")
	fmt.Fprintf(&b, "- parent: %s (branch %s)\n", layout.Parent.Path, layout.Parent.Branch)
	for _, sub := range layout.Subtasks {
		fmt.Fprintf(&b, "- %s: %s (branch %s)\n", sub.Name, sub.Path, sub.Branch)
	}
	return b.String()
}

func renderJournalSeed(r *Run) string {
	return fmt.Sprintf("# Run journal\n\nRun %s — %s\n\n- %s: run started.\n",
		r.id, r.task.Title, time.Now().UTC().Format(time.RFC3339))
}

func renderReviewChecklist(task models.TaskInput) string {
	var b strings.Builder
	b.WriteString("# Review checklist\n\n")
	b.WriteString("- [ ] Objective addressed end to end\n")
	for _, c := range task.SuccessCriteria {
		fmt.Fprintf(&b, "- [ ] %s\n", c)
	}
	for _, c := range task.Constraints {
		fmt.Fprintf(&b, "- [ ] Constraint respected: %s\n", c)
	}
	b.WriteString("- [ ] Verification commands pass\n")
	b.WriteString("- [ ] Journal up to date\n")
	return b.String()
}

func renderVerificationPlan(task models.TaskInput) string {
	var b strings.Builder
	b.WriteString("# Verification plan\n\n")
	if len(task.VerificationCommands) == 0 {
		b.WriteString("No verification commands configured for this run.\n")
		return b.String()
	}
	b.WriteString("Commands run via `bash -lc` in the parent worktree, in order:\n\n")
	for _, cmd := range task.VerificationCommands {
		fmt.Fprintf(&b, "```\n%s\n```\n\n", cmd)
	}
	return b.String()
}

func renderSubtaskBrief(r *Run, i int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Subtask %d\n\n", i)
	fmt.Fprintf(&b, "Parent objective: %s\n\n", r.task.Objective)
	if prompt := subtaskPromptOverride(r.task, i); prompt != "" {
		b.WriteString("## Instructions\n\n")
		b.WriteString(prompt)
		b.WriteString("\n")
	} else {
		fmt.Fprintf(&b, "Take on an independent slice %d of %d of the objective. Coordinate through the parent worktree's docs/harness documents.\n",
			i, r.task.SubtaskCount)
	}
	return b.String()
}

// subtaskPromptOverride returns the explicit per-subtask prompt, or "".
func subtaskPromptOverride(task models.TaskInput, i int) string {
	if i-1 < len(task.SubtaskPrompts) {
		return strings.TrimSpace(task.SubtaskPrompts[i-1])
	}
	return ""
}

func writeListSection(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n## %s\n\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
