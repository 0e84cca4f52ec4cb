package harness

import (
	"fmt"
	"strings"

	"github.com/cruzjc/pi5-dashboard/pkg/models"
)

// stageTestVerify runs the configured verification commands through bash in
// the parent worktree. Failures trigger one CLI repair pass followed by a
// rerun of only the failing commands.
func (s *Service) stageTestVerify(r *Run) stageOutcome {
	commands := r.task.VerificationCommands
	if len(commands) == 0 {
		return skipped("no verification commands")
	}
	layout := r.layout()

	attempt1, err := s.runVerifyCommands(r, layout.Parent.Path, commands)
	if err != nil {
		return failed(err)
	}
	if _, err := r.artifacts.AddJSON("verify/attempt-1.json", "attempt-1.json",
		attempt1, "Verification results, first attempt"); err != nil {
		return failed(err)
	}

	failing := failingCommands(attempt1)
	if len(failing) == 0 {
		return completed(fmt.Sprintf("%d commands passed", len(commands)))
	}

	r.note("verification failed for %d of %d commands, attempting repair", len(failing), len(commands))
	repair, err := s.runCLI(r, ChannelParent, layout.Parent.Path, repairPrompt(verifyFailureReport(attempt1)))
	if err != nil {
		return failed(fmt.Errorf("repair pass: %w", err))
	}
	if _, err := r.artifacts.AddText("verify/repair.log", "repair.log",
		repair.Plain, "Repair pass output"); err != nil {
		return failed(err)
	}

	attempt2, err := s.runVerifyCommands(r, layout.Parent.Path, failing)
	if err != nil {
		return failed(err)
	}
	if _, err := r.artifacts.AddJSON("verify/attempt-2.json", "attempt-2.json",
		attempt2, "Verification results after repair"); err != nil {
		return failed(err)
	}

	if still := failingCommands(attempt2); len(still) > 0 {
		quoted := make([]string, len(still))
		for i, cmd := range still {
			quoted[i] = ShellQuote(cmd)
		}
		return failed(fmt.Errorf("%d verification commands still failing after repair: %s",
			len(still), strings.Join(quoted, ", ")))
	}
	return completed(fmt.Sprintf("%d commands passed after one repair", len(commands)))
}

// runVerifyCommands executes each command in order, honoring cancellation
// between commands.
func (s *Service) runVerifyCommands(r *Run, dir string, commands []string) ([]models.VerifyCommandResult, error) {
	results := make([]models.VerifyCommandResult, 0, len(commands))
	for _, cmd := range commands {
		if err := r.checkpoint(); err != nil {
			return nil, err
		}
		res, err := s.runShell(r, ChannelParent, dir, cmd)
		if err != nil {
			return nil, err
		}
		results = append(results, models.VerifyCommandResult{
			Command: cmd,
			OK:      res.Signal == "" && res.Code == 0,
			Code:    res.Code,
			Signal:  res.Signal,
			Output:  tail(strings.TrimSpace(res.Plain), s.limits.VerifyOutputTail),
		})
	}
	return results, nil
}

func failingCommands(results []models.VerifyCommandResult) []string {
	var failing []string
	for _, res := range results {
		if !res.OK {
			failing = append(failing, res.Command)
		}
	}
	return failing
}

// verifyFailureReport renders the failing commands for the repair prompt.
func verifyFailureReport(results []models.VerifyCommandResult) string {
	var b strings.Builder
	for _, res := range results {
		if res.OK {
			continue
		}
		fmt.Fprintf(&b, "Command: %s\n", res.Command)
		if res.Signal != "" {
			fmt.Fprintf(&b, "Terminated by signal %s\n", res.Signal)
		} else {
			fmt.Fprintf(&b, "Exit code: %d\n", res.Code)
		}
		if res.Output != "" {
			fmt.Fprintf(&b, "Output tail:\n%s\n", res.Output)
		}
		b.WriteString("\n")
	}
	return b.String()
}
