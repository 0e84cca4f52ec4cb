package harness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cruzjc/pi5-dashboard/pkg/models"
)

const summaryLLMTimeout = 30 * time.Second

// finalizeSummary builds the run summary on every terminal path and persists
// it as an artifact. An LLM rewrite is attempted when a key is configured;
// every failure falls back to the deterministic text.
func (s *Service) finalizeSummary(r *Run) {
	snap := r.Snapshot()
	text := buildSummary(snap)

	if s.llm.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), summaryLLMTimeout)
		rewritten, err := s.llm.Complete(ctx,
			fmt.Sprintf("Rewrite the following automation run report as a clear prose summary of at most %d words. Keep every concrete fact (ids, branches, counts, failures). Output plain text only.", s.limits.SummaryRewriteWords),
			text)
		cancel()
		if err != nil {
			s.logger.Warn("Summary rewrite failed, keeping deterministic text", "run_id", r.id, "error", err)
		} else if strings.TrimSpace(rewritten) != "" {
			text = rewritten
		}
	}

	r.mu.Lock()
	r.summaryText = text
	r.touchLocked()
	r.mu.Unlock()

	if _, err := r.artifacts.AddText("summary/final-summary.txt", "final-summary.txt",
		text, "Run summary"); err != nil {
		s.logger.Warn("Summary artifact write failed", "run_id", r.id, "error", err)
	}
}

// buildSummary renders the deterministic run report.
func buildSummary(snap models.RunSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s: %s\n", snap.ID, snap.Task.Title)
	fmt.Fprintf(&b, "Status: %s\n", snap.Status)
	if snap.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", snap.Error)
	}
	if snap.RepoRoot != "" {
		fmt.Fprintf(&b, "Repo: %s\n", snap.RepoRoot)
	}
	if snap.FinalBranch != "" {
		fmt.Fprintf(&b, "Branch: %s\n", snap.FinalBranch)
	}
	if snap.FinalCommit != "" {
		fmt.Fprintf(&b, "Commit: %s\n", snap.FinalCommit)
	}

	var completedN, skippedN int
	firstFailed := ""
	for _, st := range snap.Stages {
		switch st.Status {
		case models.StageCompleted:
			completedN++
		case models.StageSkipped:
			skippedN++
		case models.StageFailed:
			if firstFailed == "" {
				firstFailed = st.Name
			}
		}
	}
	if firstFailed != "" {
		fmt.Fprintf(&b, "First failed stage: %s\n", firstFailed)
	}
	fmt.Fprintf(&b, "Stages: %d/%d completed (skipped %d)\n", completedN, len(snap.Stages), skippedN)

	fmt.Fprintf(&b, "Verification commands: %d\n", len(snap.Task.VerificationCommands))
	if n := len(snap.Task.BrowserScenarios); n > 0 {
		outcome := "not attempted"
		if snap.Browser != nil {
			if snap.Browser.OK {
				outcome = "ok"
			} else {
				outcome = "failed"
			}
		}
		fmt.Fprintf(&b, "Browser scenarios: %d (%s)\n", n, outcome)
	}

	switch {
	case snap.Push == nil:
		b.WriteString("Push: not reached\n")
	case snap.Push.Skipped:
		fmt.Fprintf(&b, "Push: skipped (%s)\n", snap.Push.Reason)
	case snap.Push.OK:
		fmt.Fprintf(&b, "Push: ok (%s -> %s)\n", snap.Push.Branch, snap.Push.Remote)
	default:
		fmt.Fprintf(&b, "Push: failed (%s)\n", snap.Push.Reason)
	}
	return b.String()
}
