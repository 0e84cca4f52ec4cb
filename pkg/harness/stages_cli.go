package harness

import (
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/cruzjc/pi5-dashboard/pkg/models"
)

// stageParentPlan has the CLI produce docs/harness/parent-plan.md in the
// parent worktree.
func (s *Service) stageParentPlan(r *Run) stageOutcome {
	layout := r.layout()
	res, err := s.runCLI(r, ChannelParent, layout.Parent.Path, parentPlanPrompt(r))
	if err != nil {
		return failed(err)
	}
	if _, err := r.artifacts.AddText("cli/parent-plan.log", "parent-plan.log",
		res.Plain, "Parent planning output"); err != nil {
		return failed(err)
	}
	return completed(describeExit(res))
}

// stageSubtaskFanout launches one CLI job per subtask worktree in parallel.
// All jobs are started, all are awaited; results land in input order. Any
// failed job fails the stage.
func (s *Service) stageSubtaskFanout(r *Run) stageOutcome {
	if r.task.SubtaskCount == 0 {
		return skipped("no subtasks configured")
	}
	layout := r.layout()

	results := make([]models.SubtaskResult, len(layout.Subtasks))
	var g errgroup.Group
	var cpErr error
	for i, sub := range layout.Subtasks {
		if cpErr = r.checkpoint(); cpErr != nil {
			break
		}
		i, sub := i, sub
		idx := i + 1
		g.Go(func() error {
			result := models.SubtaskResult{Channel: sub.Name, Worktree: sub.Path}
			res, err := s.runCLI(r, sub.Name, sub.Path, subtaskPrompt(r, idx))
			if err != nil {
				result.Error = err.Error()
				_, _ = r.artifacts.AddText(
					fmt.Sprintf("cli/%s-error.log", sub.Name),
					fmt.Sprintf("%s-error.log", sub.Name),
					res.Plain+"\n\n"+err.Error(),
					fmt.Sprintf("Subtask %d failure", idx))
				results[i] = result
				return err
			}
			meta, aerr := r.artifacts.AddText(
				fmt.Sprintf("cli/%s.log", sub.Name),
				fmt.Sprintf("%s.log", sub.Name),
				res.Plain,
				fmt.Sprintf("Subtask %d output", idx))
			if aerr != nil {
				result.Error = aerr.Error()
				results[i] = result
				return aerr
			}
			result.OK = true
			result.ArtifactID = meta.ID
			results[i] = result
			return nil
		})
	}
	err := g.Wait()

	r.mu.Lock()
	r.subtasks = results
	r.mu.Unlock()

	if cpErr != nil {
		return failed(cpErr)
	}
	if err != nil {
		return failed(fmt.Errorf("subtask fan-out: %w", err))
	}
	return completed(fmt.Sprintf("%d subtask jobs completed", len(results)))
}

// stageSubtaskCollect snapshots each subtask worktree's status and touched
// files into the parent docs tree and an aggregate artifact.
func (s *Service) stageSubtaskCollect(r *Run) stageOutcome {
	if r.task.SubtaskCount == 0 {
		return skipped("no subtasks configured")
	}
	layout := r.layout()

	type subStatus struct {
		Name    string   `json:"name"`
		Branch  string   `json:"branch"`
		Status  []string `json:"status"`
		Changed []string `json:"changedFiles"`
	}
	aggregate := make([]subStatus, 0, len(layout.Subtasks))
	for _, sub := range layout.Subtasks {
		status, err := gitPorcelain(r.ctx, sub.Path)
		if err != nil {
			return failed(err)
		}
		diff, err := runGit(r.ctx, sub.Path, "diff", "--name-only")
		if err != nil {
			return failed(err)
		}
		entry := subStatus{Name: sub.Name, Branch: sub.Branch, Status: status}
		if diff != "" {
			entry.Changed = strings.Split(diff, "\n")
		}
		aggregate = append(aggregate, entry)

		if _, err := r.artifacts.AddJSON(
			fmt.Sprintf("docs/subtasks/%s-status.json", sub.Name),
			fmt.Sprintf("%s-status.json", sub.Name),
			entry,
			fmt.Sprintf("Worktree status of %s", sub.Name)); err != nil {
			return failed(err)
		}
		if err := writeDocJSON(layout.Parent.Path, sub.Name, entry); err != nil {
			return failed(err)
		}
	}

	if _, err := r.artifacts.AddJSON("docs/subtasks/collect.json", "collect.json",
		aggregate, "Aggregated subtask worktree status"); err != nil {
		return failed(err)
	}
	return completed(fmt.Sprintf("%d worktrees collected", len(aggregate)))
}

// stageParentIntegrate has the CLI fold the subtask work into the parent
// worktree.
func (s *Service) stageParentIntegrate(r *Run) stageOutcome {
	if r.task.SubtaskCount == 0 {
		return skipped("no subtasks configured")
	}
	layout := r.layout()

	paths := make([]string, len(layout.Subtasks))
	for i, sub := range layout.Subtasks {
		paths[i] = sub.Path
	}
	res, err := s.runCLI(r, ChannelParent, layout.Parent.Path, integratePrompt(r, paths))
	if err != nil {
		return failed(err)
	}
	if _, err := r.artifacts.AddText("cli/parent-integrate.log", "parent-integrate.log",
		res.Plain, "Integration output"); err != nil {
		return failed(err)
	}
	return completed(describeExit(res))
}

// stageSelfReview has the CLI work the review checklist.
func (s *Service) stageSelfReview(r *Run) stageOutcome {
	layout := r.layout()
	res, err := s.runCLI(r, ChannelParent, layout.Parent.Path, selfReviewPrompt(r))
	if err != nil {
		return failed(err)
	}
	if _, err := r.artifacts.AddText("cli/self-review.log", "self-review.log",
		res.Plain, "Self-review output"); err != nil {
		return failed(err)
	}
	return completed(describeExit(res))
}
