// Package harness implements the staged run pipeline: git worktree
// preparation, parallel CLI subtask fan-out, verification with one repair
// retry, browser validation, commit/push and artifact persistence. Every run
// exposes its PTY channels for WebSocket streaming.
package harness

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cruzjc/pi5-dashboard/pkg/fault"
	"github.com/cruzjc/pi5-dashboard/pkg/models"
	"github.com/cruzjc/pi5-dashboard/pkg/persona"
	"github.com/cruzjc/pi5-dashboard/pkg/terminal"
)

// Stage names, in pipeline order.
const (
	StageInit              = "init"
	StageWorktreePrepare   = "worktree_prepare"
	StageArtifactScaffold  = "artifact_scaffold"
	StageParentPlan        = "parent_plan"
	StageSubtaskFanout     = "subtask_fanout"
	StageSubtaskCollect    = "subtask_collect"
	StageParentIntegrate   = "parent_integrate"
	StageTestVerify        = "test_verify"
	StageSelfReview        = "self_review"
	StageBrowserValidation = "browser_validation"
	StageFinalizeCommit    = "finalize_commit_push"
)

// StageOrder is the fixed stage sequence of every run.
var StageOrder = []string{
	StageInit,
	StageWorktreePrepare,
	StageArtifactScaffold,
	StageParentPlan,
	StageSubtaskFanout,
	StageSubtaskCollect,
	StageParentIntegrate,
	StageTestVerify,
	StageSelfReview,
	StageBrowserValidation,
	StageFinalizeCommit,
}

// Fixed channel names.
const (
	ChannelOrchestrator  = "orchestrator"
	ChannelParent        = "parent"
	ChannelBrowserWorker = "browser-worker"
)

// SubtaskChannel names the channel of subtask i (1-based).
func SubtaskChannel(i int) string { return fmt.Sprintf("subtask-%d", i) }

// Run is one reified pipeline execution. The pipeline goroutine owns the
// mutations; API reads take consistent snapshots under mu. Channel
// operations are never performed while holding mu.
type Run struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	artifacts   *ArtifactStore
	transcripts *terminal.TranscriptWriter
	bufferChars int

	mu              sync.Mutex
	status          models.RunStatus
	createdAt       time.Time
	updatedAt       time.Time
	startedAt       *time.Time
	finishedAt      *time.Time
	cancelRequested bool
	currentStage    string
	errMsg          string
	task            models.TaskInput
	persona         *persona.Persona
	repoRoot        string
	baseBranch      string
	finalBranch     string
	finalCommit     string
	worktrees       *models.WorktreeLayout
	stages          []models.StageInfo
	summaryText     string
	subtasks        []models.SubtaskResult
	push            *models.PushResult
	browser         *models.BrowserResult
	channels        map[string]*terminal.Channel
	activeJobs      map[string]context.CancelFunc
}

func newRun(id string, task models.TaskInput, artifacts *ArtifactStore, transcripts *terminal.TranscriptWriter, bufferChars int) *Run {
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now().UTC()
	stages := make([]models.StageInfo, len(StageOrder))
	for i, name := range StageOrder {
		stages[i] = models.StageInfo{Name: name, Status: models.StagePending}
	}
	return &Run{
		id:          id,
		ctx:         ctx,
		cancel:      cancel,
		artifacts:   artifacts,
		transcripts: transcripts,
		bufferChars: bufferChars,
		status:      models.RunCreated,
		createdAt:   now,
		updatedAt:   now,
		task:        task,
		stages:      stages,
		channels:    make(map[string]*terminal.Channel),
		activeJobs:  make(map[string]context.CancelFunc),
	}
}

// ID returns the run id.
func (r *Run) ID() string { return r.id }

// Status returns the current run status.
func (r *Run) Status() models.RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// validChannel reports whether name is one of this run's channels.
func (r *Run) validChannel(name string) bool {
	switch name {
	case ChannelOrchestrator, ChannelParent, ChannelBrowserWorker:
		return true
	}
	for i := 1; i <= r.task.SubtaskCount; i++ {
		if name == SubtaskChannel(i) {
			return true
		}
	}
	return false
}

// Channel returns (creating on first use) the named run channel.
func (r *Run) Channel(name string) (*terminal.Channel, error) {
	if !r.validChannel(name) {
		return nil, fmt.Errorf("channel %q: %w", name, fault.ErrUnknownTarget)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.channels[name]; ok {
		return ch, nil
	}
	ch := terminal.NewChannel(terminal.ChannelOptions{
		Target:      r.id,
		Name:        name,
		BufferChars: r.bufferChars,
		Transcripts: r.transcripts,
	})
	r.channels[name] = ch
	return ch, nil
}

// note streams an orchestrator progress line to attached clients and the
// transcript.
func (r *Run) note(format string, args ...any) {
	ch, err := r.Channel(ChannelOrchestrator)
	if err != nil {
		return
	}
	ch.Inject(terminal.SourceSys, fmt.Sprintf(format+"\r\n", args...))
}

// RequestCancel flags the run for cancellation and tears down in-flight
// jobs. Safe to call repeatedly and after completion.
func (r *Run) RequestCancel() {
	r.mu.Lock()
	r.cancelRequested = true
	jobs := make([]context.CancelFunc, 0, len(r.activeJobs))
	for _, cancel := range r.activeJobs {
		jobs = append(jobs, cancel)
	}
	r.touchLocked()
	r.mu.Unlock()

	for _, cancel := range jobs {
		cancel()
	}
	r.cancel()
}

// checkpoint returns fault.ErrCancelled once cancellation was requested.
// Called at stage entry and before each subtask kick-off, verification
// command and browser scenario.
func (r *Run) checkpoint() error {
	r.mu.Lock()
	requested := r.cancelRequested
	r.mu.Unlock()
	if requested || r.ctx.Err() != nil {
		return fault.ErrCancelled
	}
	return nil
}

func (r *Run) registerJob(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	r.activeJobs[id] = cancel
	r.mu.Unlock()
}

func (r *Run) releaseJob(id string) {
	r.mu.Lock()
	delete(r.activeJobs, id)
	r.mu.Unlock()
}

func (r *Run) clearJobs() {
	r.mu.Lock()
	r.activeJobs = make(map[string]context.CancelFunc)
	r.mu.Unlock()
}

// layout returns the worktree layout recorded by worktree_prepare. Stages
// after it may assume a non-nil result; a nil layout yields empty paths and
// the subsequent git call fails with a clear error.
func (r *Run) layout() models.WorktreeLayout {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.worktrees == nil {
		return models.WorktreeLayout{}
	}
	return *r.worktrees
}

func (r *Run) touchLocked() {
	r.updatedAt = time.Now().UTC()
}

// beginStage marks a stage running.
func (r *Run) beginStage(name string) {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentStage = name
	for i := range r.stages {
		if r.stages[i].Name == name {
			r.stages[i].Status = models.StageRunning
			r.stages[i].StartedAt = &now
			break
		}
	}
	r.touchLocked()
}

// endStage records a stage outcome. Failed outcomes also fail the run;
// cancelled outcomes mark the run cancelled.
func (r *Run) endStage(name string, out stageOutcome) {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.stages {
		if r.stages[i].Name != name {
			continue
		}
		st := &r.stages[i]
		st.FinishedAt = &now
		if st.StartedAt != nil {
			st.DurationMs = now.Sub(*st.StartedAt).Milliseconds()
		}
		switch out.kind {
		case stageCompleted:
			st.Status = models.StageCompleted
			st.Detail = out.detail
		case stageSkipped:
			st.Status = models.StageSkipped
			st.Detail = out.detail
		case stageFailed:
			st.Status = models.StageFailed
			st.Detail = out.err.Error()
			r.status = models.RunFailed
			r.errMsg = fmt.Sprintf("stage %s: %s", name, out.err.Error())
		case stageCancelled:
			st.Status = models.StageFailed
			st.Detail = "cancelled"
			r.status = models.RunCancelled
			r.errMsg = "cancelled"
		}
		break
	}
	r.touchLocked()
}

// Snapshot returns the full observable run state.
func (r *Run) Snapshot() models.RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := models.RunSnapshot{
		ID:              r.id,
		Status:          r.status,
		CreatedAt:       r.createdAt,
		UpdatedAt:       r.updatedAt,
		StartedAt:       r.startedAt,
		FinishedAt:      r.finishedAt,
		CancelRequested: r.cancelRequested,
		CurrentStage:    r.currentStage,
		Error:           r.errMsg,
		Task:            r.task,
		RepoRoot:        r.repoRoot,
		BaseBranch:      r.baseBranch,
		FinalBranch:     r.finalBranch,
		FinalCommit:     r.finalCommit,
		SummaryText:     r.summaryText,
	}
	if r.persona != nil {
		info := r.persona.Info()
		snap.Persona = &info
	}
	if r.worktrees != nil {
		wt := *r.worktrees
		snap.Worktrees = &wt
	}
	snap.Stages = append([]models.StageInfo(nil), r.stages...)
	snap.Subtasks = append([]models.SubtaskResult(nil), r.subtasks...)
	if r.push != nil {
		p := *r.push
		snap.Push = &p
	}
	if r.browser != nil {
		b := *r.browser
		snap.Browser = &b
	}
	snap.Artifacts = r.artifacts.List()

	snap.Channels = []string{ChannelOrchestrator, ChannelParent}
	for i := 1; i <= r.task.SubtaskCount; i++ {
		snap.Channels = append(snap.Channels, SubtaskChannel(i))
	}
	snap.Channels = append(snap.Channels, ChannelBrowserWorker)
	return snap
}

// stopChannels terminates every live channel of the run.
func (r *Run) stopChannels() {
	r.mu.Lock()
	channels := make([]*terminal.Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		channels = append(channels, ch)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, ch := range channels {
		if !ch.Running() {
			continue
		}
		wg.Add(1)
		go func(ch *terminal.Channel) {
			defer wg.Done()
			_ = ch.Stop()
		}(ch)
	}
	wg.Wait()
}
