// Package fault defines the error kinds shared by the CLI session service,
// the harness orchestrator, and the HTTP layer. Services wrap these sentinels
// with context via fmt.Errorf("...: %w", ...); the API error mapper translates
// them to status codes.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnavailableDependency is returned when a required runtime dependency
	// (PTY device, browser executable) is missing on the host.
	ErrUnavailableDependency = errors.New("dependency unavailable")

	// ErrUnknownTarget is returned for lookups of providers, runs, channels
	// or artifacts that do not exist.
	ErrUnknownTarget = errors.New("unknown target")

	// ErrInvalidInput is returned when request validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSessionNotRunning is returned when a write or resize is attempted
	// on an idle channel.
	ErrSessionNotRunning = errors.New("session not running")

	// ErrSpawnFailed is returned when a child process failed to start.
	ErrSpawnFailed = errors.New("spawn failed")

	// ErrPathEscape is returned when a canonicalized path resolves outside
	// its allowlisted root.
	ErrPathEscape = errors.New("path escapes allowed root")

	// ErrCancelled is returned when run cancellation is observed at a
	// checkpoint.
	ErrCancelled = errors.New("cancelled")

	// ErrDirtyRepo is returned when the base repository has uncommitted
	// changes.
	ErrDirtyRepo = errors.New("repository has uncommitted changes")

	// ErrNoComposerInteraction is returned when narration is requested for a
	// provider that has no recorded composer interaction.
	ErrNoComposerInteraction = errors.New("no composer interaction recorded")

	// ErrNoCapturedOutput is returned when no output was captured after the
	// last composer interaction.
	ErrNoCapturedOutput = errors.New("no captured output since last interaction")

	// ErrUnsupportedAuthMode is returned for auth operations a provider does
	// not support.
	ErrUnsupportedAuthMode = errors.New("unsupported auth mode")
)

// CommandExitError reports a subprocess that exited non-zero where a zero
// exit was required. Output carries the trimmed plain-text tail.
type CommandExitError struct {
	Code   int
	Signal string
	Output string
}

func (e *CommandExitError) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("command terminated by signal %s", e.Signal)
	}
	msg := fmt.Sprintf("command exited with code %d", e.Code)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

// NewCommandExit creates a CommandExitError from an exit code, an optional
// terminating signal name and the captured plain output.
func NewCommandExit(code int, signal, output string) error {
	return &CommandExitError{Code: code, Signal: signal, Output: output}
}

// IsCommandExit reports whether err is (or wraps) a CommandExitError.
func IsCommandExit(err error) bool {
	var ce *CommandExitError
	return errors.As(err, &ce)
}
