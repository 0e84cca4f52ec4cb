package harness

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cruzjc/pi5-dashboard/pkg/fault"
	"github.com/cruzjc/pi5-dashboard/pkg/fsutil"
	"github.com/cruzjc/pi5-dashboard/pkg/models"
)

// stageInit resolves the persona and the repository, pins the base branch and
// snapshots the task configuration as the first artifact.
func (s *Service) stageInit(r *Run) stageOutcome {
	task := r.task

	chosen := s.personas.Select(task.PersonaMode, task.PersonaID)

	sharedRoot, err := fsutil.ResolveExisting(s.sharedRepos)
	if err != nil {
		return failed(fmt.Errorf("shared repos root: %w", err))
	}
	// A relative repo path is relative to the shared-repos root, never to the
	// process working directory.
	repoInput := task.RepoPath
	if !filepath.IsAbs(repoInput) {
		repoInput = filepath.Join(sharedRoot, repoInput)
	}
	repoPath, err := fsutil.ResolveExisting(repoInput)
	if err != nil {
		return failed(fmt.Errorf("repo path %s: %w: %w", task.RepoPath, fault.ErrPathEscape, err))
	}
	if !fsutil.WithinRoot(sharedRoot, repoPath) {
		return failed(fmt.Errorf("repo path %s is outside %s: %w", task.RepoPath, s.sharedRepos, fault.ErrPathEscape))
	}

	repoRoot, err := gitTopLevel(r.ctx, repoPath)
	if err != nil {
		return failed(fmt.Errorf("%s is not a git repository: %w", task.RepoPath, err))
	}
	repoRoot, err = fsutil.ResolveExisting(repoRoot)
	if err != nil {
		return failed(fmt.Errorf("repo root: %w", err))
	}
	if !fsutil.WithinRoot(sharedRoot, repoRoot) {
		return failed(fmt.Errorf("repo root %s is outside %s: %w", repoRoot, s.sharedRepos, fault.ErrPathEscape))
	}

	baseBranch := task.BaseBranch
	if baseBranch == "" {
		baseBranch, err = gitCurrentBranch(r.ctx, repoRoot)
		if err != nil {
			return failed(fmt.Errorf("resolve base branch: %w", err))
		}
	}

	r.mu.Lock()
	r.persona = &chosen
	r.repoRoot = repoRoot
	r.baseBranch = baseBranch
	r.mu.Unlock()

	info := chosen.Info()
	if _, err := r.artifacts.AddJSON("metadata/config.json", "config.json", map[string]any{
		"runId":      r.id,
		"task":       task,
		"persona":    info,
		"repoRoot":   repoRoot,
		"baseBranch": baseBranch,
	}, "Resolved task configuration"); err != nil {
		return failed(err)
	}

	return completed(fmt.Sprintf("repo %s @ %s, persona %s", repoRoot, baseBranch, chosen.Name))
}

// stageWorktreePrepare requires a clean tree, then lays out the parent and
// subtask worktrees on fresh branches.
func (s *Service) stageWorktreePrepare(r *Run) stageOutcome {
	r.mu.Lock()
	repoRoot := r.repoRoot
	baseBranch := r.baseBranch
	r.mu.Unlock()

	dirty, err := gitPorcelain(r.ctx, repoRoot)
	if err != nil {
		return failed(err)
	}
	if len(dirty) > 0 {
		return failed(fmt.Errorf("%w: %d uncommitted entries in %s", fault.ErrDirtyRepo, len(dirty), repoRoot))
	}

	finalBranch := fmt.Sprintf("harness/%s/%s-%s",
		time.Now().UTC().Format("2006-01-02"),
		fsutil.Slug(r.task.Title, 40),
		shortID(r.id))

	baseRoot := filepath.Join(s.worktreesDir, r.id)
	parentPath := filepath.Join(baseRoot, "parent")
	if _, err := runGit(r.ctx, repoRoot, "worktree", "add", "-b", finalBranch, parentPath, baseBranch); err != nil {
		return failed(err)
	}

	layout := models.WorktreeLayout{
		BaseRoot: baseRoot,
		Parent:   models.WorktreeInfo{Path: parentPath, Branch: finalBranch},
	}
	for i := 1; i <= r.task.SubtaskCount; i++ {
		name := SubtaskChannel(i)
		branch := fmt.Sprintf("%s-sub%d", finalBranch, i)
		path := filepath.Join(baseRoot, name)
		if _, err := runGit(r.ctx, repoRoot, "worktree", "add", "-b", branch, path, baseBranch); err != nil {
			return failed(err)
		}
		layout.Subtasks = append(layout.Subtasks, models.SubtaskWorktree{
			Name:   name,
			Path:   path,
			Branch: branch,
		})
	}

	r.mu.Lock()
	r.finalBranch = finalBranch
	r.worktrees = &layout
	r.mu.Unlock()

	return completed(fmt.Sprintf("branch %s, %d subtask worktrees", finalBranch, r.task.SubtaskCount))
}

// stageArtifactScaffold writes the harness working documents into the parent
// worktree and mirrors each one into the artifact store.
func (s *Service) stageArtifactScaffold(r *Run) stageOutcome {
	r.mu.Lock()
	layout := r.worktrees
	chosen := r.persona
	r.mu.Unlock()
	if layout == nil {
		return failed(fmt.Errorf("worktree layout missing"))
	}

	docsDir := filepath.Join(layout.Parent.Path, "docs", "harness")
	docs := []struct {
		name    string
		content string
		desc    string
	}{
		{"task-spec.md", renderTaskSpec(r, chosen), "Task specification"},
		{"AGENTS.md", renderAgentsDoc(layout), "Workflow conventions"},
		{"run-journal.md", renderJournalSeed(r), "Run journal seed"},
		{"review-checklist.md", renderReviewChecklist(r.task), "Review checklist"},
		{"verification-plan.md", renderVerificationPlan(r.task), "Verification plan"},
	}
	for _, d := range docs {
		if err := writeDoc(docsDir, d.name, d.content); err != nil {
			return failed(err)
		}
		if _, err := r.artifacts.AddText(filepath.Join("docs", d.name), d.name, d.content, d.desc); err != nil {
			return failed(err)
		}
	}

	for i := 1; i <= r.task.SubtaskCount; i++ {
		name := fmt.Sprintf("subtask-%d.md", i)
		content := renderSubtaskBrief(r, i)
		if err := writeDoc(filepath.Join(docsDir, "subtasks"), name, content); err != nil {
			return failed(err)
		}
		if _, err := r.artifacts.AddText(filepath.Join("docs", "subtasks", name), name, content,
			fmt.Sprintf("Brief for subtask %d", i)); err != nil {
			return failed(err)
		}
	}

	return completed(fmt.Sprintf("%d documents scaffolded", len(docs)+r.task.SubtaskCount))
}

func writeDoc(dir, name, content string) error {
	return fsutil.WriteFileAtomic(filepath.Join(dir, name), []byte(content), 0o644)
}

// writeDocJSON drops a subtask status file into the parent worktree's docs
// tree.
func writeDocJSON(parentPath, subName string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s status: %w", subName, err)
	}
	dir := filepath.Join(parentPath, "docs", "harness", "subtasks")
	return fsutil.WriteFileAtomic(filepath.Join(dir, subName+"-status.json"), data, 0o644)
}
