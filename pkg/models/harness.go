package models

import "time"

// RunStatus is the lifecycle state of a harness run.
type RunStatus string

const (
	RunCreated   RunStatus = "created"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// StageStatus is the state of one pipeline stage.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// TaskInput is the immutable request that creates a run.
type TaskInput struct {
	Title                string            `json:"title"`
	RepoPath             string            `json:"repoPath"`
	Objective            string            `json:"objective"`
	SuccessCriteria      []string          `json:"successCriteria,omitempty"`
	Constraints          []string          `json:"constraints,omitempty"`
	BaseBranch           string            `json:"baseBranch,omitempty"`
	SubtaskCount         int               `json:"subtaskCount"`
	VerificationCommands []string          `json:"verificationCommands,omitempty"`
	BrowserScenarios     []BrowserScenario `json:"browserScenarios,omitempty"`
	SubtaskPrompts       []string          `json:"subtaskPrompts,omitempty"`
	PersonaMode          string            `json:"personaMode,omitempty"`
	PersonaID            string            `json:"personaId,omitempty"`
}

// BrowserScenario describes one headless-browser validation pass.
type BrowserScenario struct {
	Name         string       `json:"name"`
	URL          string       `json:"url"`
	TimeoutSec   int          `json:"timeoutSec,omitempty"` // clamped to [1, 60], default 15
	WaitSelector string       `json:"waitSelector,omitempty"`
	WaitText     string       `json:"waitText,omitempty"`
	Fill         []FillAction `json:"fill,omitempty"`
	Click        []string     `json:"click,omitempty"`
}

// FillAction types text into one selector.
type FillAction struct {
	Selector string `json:"selector"`
	Value    string `json:"value"`
}

// StageInfo is the observable record of one pipeline stage.
type StageInfo struct {
	Name       string      `json:"name"`
	Status     StageStatus `json:"status"`
	StartedAt  *time.Time  `json:"startedAt,omitempty"`
	FinishedAt *time.Time  `json:"finishedAt,omitempty"`
	DurationMs int64       `json:"durationMs,omitempty"`
	Detail     string      `json:"detail,omitempty"`
}

// WorktreeInfo names one git worktree on its branch.
type WorktreeInfo struct {
	Path   string `json:"path"`
	Branch string `json:"branch"`
}

// SubtaskWorktree is WorktreeInfo plus the channel/worktree name.
type SubtaskWorktree struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Branch string `json:"branch"`
}

// WorktreeLayout is the on-disk layout of a run's worktrees.
type WorktreeLayout struct {
	BaseRoot string            `json:"baseRoot"`
	Parent   WorktreeInfo      `json:"parent"`
	Subtasks []SubtaskWorktree `json:"subtasks,omitempty"`
}

// ArtifactMeta describes one persisted artifact under the run's root.
type ArtifactMeta struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	RelPath     string    `json:"relPath"`
	Type        string    `json:"type"` // text | json | image | file
	Mime        string    `json:"mime"`
	Size        *int64    `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
	Description string    `json:"description,omitempty"`
}

// SubtaskResult records one fan-out job, in input order.
type SubtaskResult struct {
	OK         bool   `json:"ok"`
	Channel    string `json:"channel"`
	Worktree   string `json:"worktree"`
	ArtifactID string `json:"artifactId,omitempty"`
	Error      string `json:"error,omitempty"`
}

// VerifyCommandResult records one verification command execution.
type VerifyCommandResult struct {
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Code    int    `json:"code"`
	Signal  string `json:"signal,omitempty"`
	Output  string `json:"output,omitempty"`
}

// PushResult records the outcome of finalize_commit_push.
type PushResult struct {
	OK      bool   `json:"ok"`
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Code    int    `json:"code,omitempty"`
	Branch  string `json:"branch,omitempty"`
	Remote  string `json:"remote,omitempty"`
	Output  string `json:"output,omitempty"`
}

// ScenarioResult records one browser scenario outcome.
type ScenarioResult struct {
	Name          string   `json:"name"`
	OK            bool     `json:"ok"`
	Error         string   `json:"error,omitempty"`
	ConsoleErrors []string `json:"consoleErrors,omitempty"`
	PageErrors    []string `json:"pageErrors,omitempty"`
	Screenshot    string   `json:"screenshot,omitempty"` // rel path under the artifact root
}

// BrowserResult aggregates the browser_validation stage.
type BrowserResult struct {
	Attempted bool             `json:"attempted"`
	OK        bool             `json:"ok"`
	Detail    string           `json:"detail,omitempty"`
	Scenarios []ScenarioResult `json:"scenarios,omitempty"`
}

// RunSnapshot is the full persisted/observable state of one run. It is the
// JSON envelope written to harness/runs/<id>.json and returned by the API.
type RunSnapshot struct {
	ID              string          `json:"id"`
	Status          RunStatus       `json:"status"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	StartedAt       *time.Time      `json:"startedAt,omitempty"`
	FinishedAt      *time.Time      `json:"finishedAt,omitempty"`
	CancelRequested bool            `json:"cancelRequested,omitempty"`
	CurrentStage    string          `json:"currentStage,omitempty"`
	Error           string          `json:"error,omitempty"`
	Task            TaskInput       `json:"task"`
	Persona         *PersonaInfo    `json:"persona,omitempty"`
	RepoRoot        string          `json:"repoRoot,omitempty"`
	BaseBranch      string          `json:"baseBranch,omitempty"`
	FinalBranch     string          `json:"finalBranch,omitempty"`
	FinalCommit     string          `json:"finalCommit,omitempty"`
	Worktrees       *WorktreeLayout `json:"worktrees,omitempty"`
	Stages          []StageInfo     `json:"stages"`
	Artifacts       []ArtifactMeta  `json:"artifacts,omitempty"`
	SummaryText     string          `json:"summaryText,omitempty"`
	Subtasks        []SubtaskResult `json:"subtasks,omitempty"`
	Push            *PushResult     `json:"push,omitempty"`
	Browser         *BrowserResult  `json:"browser,omitempty"`
	Channels        []string        `json:"channels,omitempty"`
}

// RunListItem is the runs-list row.
type RunListItem struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Status       RunStatus `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	CurrentStage string    `json:"currentStage,omitempty"`
	Error        string    `json:"error,omitempty"`
}
