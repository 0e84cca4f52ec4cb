package harness

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// runGit executes one git command in dir and returns its merged output.
// Non-zero exits become errors carrying the trimmed output.
func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil {
		if text != "" {
			return text, fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, text)
		}
		return text, fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return text, nil
}

// gitTopLevel resolves the repository root containing dir.
func gitTopLevel(ctx context.Context, dir string) (string, error) {
	return runGit(ctx, dir, "rev-parse", "--show-toplevel")
}

// gitCurrentBranch returns the checked-out branch, or "main" when HEAD is
// detached.
func gitCurrentBranch(ctx context.Context, dir string) (string, error) {
	out, err := runGit(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	if out == "HEAD" {
		return "main", nil
	}
	return out, nil
}

// gitPorcelain returns the porcelain status lines, empty for a clean tree.
func gitPorcelain(ctx context.Context, dir string) ([]string, error) {
	out, err := runGit(ctx, dir, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}
