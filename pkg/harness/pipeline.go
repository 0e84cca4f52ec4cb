package harness

import (
	"errors"
	"time"

	"github.com/cruzjc/pi5-dashboard/pkg/fault"
	"github.com/cruzjc/pi5-dashboard/pkg/models"
)

// stageOutcome is the discriminated result of one stage: completed, skipped
// with a reason, failed with an error, or cancelled.
type stageKind int

const (
	stageCompleted stageKind = iota
	stageSkipped
	stageFailed
	stageCancelled
)

type stageOutcome struct {
	kind   stageKind
	detail string
	err    error
}

func completed(detail string) stageOutcome { return stageOutcome{kind: stageCompleted, detail: detail} }
func skipped(detail string) stageOutcome   { return stageOutcome{kind: stageSkipped, detail: detail} }
func cancelled() stageOutcome              { return stageOutcome{kind: stageCancelled} }

func failed(err error) stageOutcome {
	if errors.Is(err, fault.ErrCancelled) {
		return cancelled()
	}
	return stageOutcome{kind: stageFailed, err: err}
}

type stageDef struct {
	name string
	fn   func(r *Run) stageOutcome
}

// stageTable binds the fixed stage order to its implementations.
func (s *Service) stageTable() []stageDef {
	return []stageDef{
		{StageInit, s.stageInit},
		{StageWorktreePrepare, s.stageWorktreePrepare},
		{StageArtifactScaffold, s.stageArtifactScaffold},
		{StageParentPlan, s.stageParentPlan},
		{StageSubtaskFanout, s.stageSubtaskFanout},
		{StageSubtaskCollect, s.stageSubtaskCollect},
		{StageParentIntegrate, s.stageParentIntegrate},
		{StageTestVerify, s.stageTestVerify},
		{StageSelfReview, s.stageSelfReview},
		{StageBrowserValidation, s.stageBrowserValidation},
		{StageFinalizeCommit, s.stageFinalizeCommitPush},
	}
}

// execute drives one run through the pipeline. It is the only goroutine that
// mutates run state beyond cancellation flags.
func (s *Service) execute(r *Run, defs []stageDef) {
	defer func() {
		r.clearJobs()
		r.stopChannels()
	}()

	now := time.Now().UTC()
	r.mu.Lock()
	r.status = models.RunRunning
	r.startedAt = &now
	r.touchLocked()
	r.mu.Unlock()
	s.persist(r)
	r.note("run %s started: %s", r.id, r.task.Title)

	for _, def := range defs {
		if err := r.checkpoint(); err != nil {
			r.mu.Lock()
			r.status = models.RunCancelled
			r.errMsg = "cancelled"
			r.touchLocked()
			r.mu.Unlock()
			break
		}

		r.beginStage(def.name)
		s.persist(r)
		r.note("stage %s started", def.name)

		out := def.fn(r)
		r.endStage(def.name, out)
		s.persist(r)

		switch out.kind {
		case stageCompleted:
			r.note("stage %s completed", def.name)
		case stageSkipped:
			r.note("stage %s skipped: %s", def.name, out.detail)
		case stageFailed:
			r.note("stage %s failed: %s", def.name, out.err.Error())
		case stageCancelled:
			r.note("stage %s cancelled", def.name)
		}
		if out.kind == stageFailed || out.kind == stageCancelled {
			break
		}
	}

	now = time.Now().UTC()
	r.mu.Lock()
	if !r.status.Terminal() {
		r.status = models.RunCompleted
	}
	r.finishedAt = &now
	r.currentStage = ""
	r.touchLocked()
	finalStatus := r.status
	r.mu.Unlock()

	// Summary finalization is best-effort on every terminal path.
	s.finalizeSummary(r)
	s.persist(r)
	r.note("run %s finished: %s", r.id, finalStatus)

	s.notifier.NotifyRunFinished(r.Snapshot())
	s.logger.Info("Run finished", "run_id", r.id, "status", finalStatus)
}

// persist writes the run snapshot; failures are logged, the in-memory run
// stays authoritative.
func (s *Service) persist(r *Run) {
	if err := s.store.Save(r.Snapshot()); err != nil {
		s.logger.Warn("Run snapshot persist failed", "run_id", r.id, "error", err)
	}
}
