package harness

import (
	"fmt"
	"strings"
)

// Prompts for the non-interactive CLI jobs. Each one points the assistant at
// the scaffolded docs so state survives across stages.

func parentPlanPrompt(r *Run) string {
	var b strings.Builder
	b.WriteString("You are the parent planner of an automated harness run.\n")
	b.WriteString("Read docs/harness/task-spec.md and docs/harness/AGENTS.md in this worktree.\n")
	b.WriteString("Write a concrete implementation plan to docs/harness/parent-plan.md: ordered steps, files you expect to touch, risks, and how each success criterion will be verified.\n")
	b.WriteString("Then append a short planning entry to docs/harness/run-journal.md.\n")
	fmt.Fprintf(&b, "\nObjective:\n%s\n", r.task.Objective)
	return b.String()
}

func subtaskPrompt(r *Run, i int) string {
	if override := subtaskPromptOverride(r.task, i); override != "" {
		return override
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are subtask worker %d of %d in an automated harness run.\n", i, r.task.SubtaskCount)
	fmt.Fprintf(&b, "Your brief is docs/harness/subtasks/subtask-%d.md in the parent worktree; the shared spec is docs/harness/task-spec.md there.\n", i)
	b.WriteString("Implement your slice of the objective inside THIS worktree only. Commit nothing; leave changes in the working tree.\n")
	fmt.Fprintf(&b, "\nObjective:\n%s\n", r.task.Objective)
	return b.String()
}

func integratePrompt(r *Run, subtaskPaths []string) string {
	var b strings.Builder
	b.WriteString("You are the integrator of an automated harness run.\n")
	b.WriteString("The subtask worktrees below contain uncommitted changes produced in parallel. Review each one, merge the useful work into THIS parent worktree, resolve conflicts and inconsistencies, and append an integration entry to docs/harness/run-journal.md.\n\n")
	b.WriteString("Subtask worktrees:\n")
	for _, p := range subtaskPaths {
		fmt.Fprintf(&b, "- %s\n", p)
	}
	fmt.Fprintf(&b, "\nObjective:\n%s\n", r.task.Objective)
	return b.String()
}

func repairPrompt(reason string) string {
	var b strings.Builder
	b.WriteString("Verification of this worktree failed. Fix the underlying problems; do not weaken or skip the checks.\n\n")
	b.WriteString("Failure report:\n")
	b.WriteString(reason)
	b.WriteString("\nAppend a repair entry to docs/harness/run-journal.md when done.\n")
	return b.String()
}

func selfReviewPrompt(r *Run) string {
	var b strings.Builder
	b.WriteString("You are the reviewer of an automated harness run.\n")
	b.WriteString("Work through docs/harness/review-checklist.md against the current state of this worktree. Fix small problems directly; record larger concerns in the checklist file. Update docs/harness/run-journal.md with the review outcome.\n")
	fmt.Fprintf(&b, "\nObjective:\n%s\n", r.task.Objective)
	return b.String()
}

func browserRepairPrompt(report string) string {
	var b strings.Builder
	b.WriteString("Headless-browser validation of this worktree failed. Diagnose and fix the application so the scenarios below pass; do not modify the scenarios.\n\n")
	b.WriteString(report)
	return b.String()
}
