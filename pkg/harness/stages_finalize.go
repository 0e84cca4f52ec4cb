package harness

import (
	"fmt"

	"github.com/cruzjc/pi5-dashboard/pkg/models"
)

const commitSubjectMax = 72

// stageFinalizeCommitPush stages everything in the parent worktree, commits
// on the final branch and pushes it to origin. A clean tree records a skipped
// push result and completes the stage.
func (s *Service) stageFinalizeCommitPush(r *Run) stageOutcome {
	layout := r.layout()
	parent := layout.Parent.Path

	if _, err := runGit(r.ctx, parent, "add", "-A"); err != nil {
		return failed(err)
	}
	dirty, err := gitPorcelain(r.ctx, parent)
	if err != nil {
		return failed(err)
	}
	if len(dirty) == 0 {
		push := models.PushResult{OK: true, Skipped: true, Reason: "no changes"}
		r.mu.Lock()
		r.push = &push
		r.touchLocked()
		r.mu.Unlock()
		r.note("nothing to commit, push skipped")
		return completed("no changes to commit")
	}

	subject := "Harness: " + r.task.Title
	if len(subject) > commitSubjectMax {
		subject = subject[:commitSubjectMax]
	}
	body := fmt.Sprintf("Run %s.\n\nObjective: %s\n\nSource: harness orchestrator", r.id, r.task.Objective)
	if _, err := runGit(r.ctx, parent, "commit", "-m", subject, "-m", body); err != nil {
		return failed(err)
	}

	commit, err := runGit(r.ctx, parent, "rev-parse", "HEAD")
	if err != nil {
		return failed(err)
	}
	r.mu.Lock()
	r.finalCommit = commit
	branch := r.finalBranch
	r.mu.Unlock()

	out, pushErr := runGit(r.ctx, parent, "push", "-u", "origin", branch)
	push := models.PushResult{
		OK:     pushErr == nil,
		Branch: branch,
		Remote: "origin",
		Output: tail(out, s.limits.PushOutputTail),
	}
	if pushErr != nil {
		push.Code = 1
		push.Reason = pushErr.Error()
	}
	r.mu.Lock()
	r.push = &push
	r.touchLocked()
	r.mu.Unlock()

	if pushErr != nil {
		return failed(fmt.Errorf("push %s: %w", branch, pushErr))
	}
	return completed(fmt.Sprintf("committed %s, pushed %s", shortID(commit), branch))
}
