package harness

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cruzjc/pi5-dashboard/pkg/config"
	"github.com/cruzjc/pi5-dashboard/pkg/fault"
	"github.com/cruzjc/pi5-dashboard/pkg/llm"
	"github.com/cruzjc/pi5-dashboard/pkg/models"
	"github.com/cruzjc/pi5-dashboard/pkg/narrate"
	"github.com/cruzjc/pi5-dashboard/pkg/notify"
	"github.com/cruzjc/pi5-dashboard/pkg/persona"
	"github.com/cruzjc/pi5-dashboard/pkg/terminal"
)

// Options configure the harness service.
type Options struct {
	SharedRepos   string // allowlisted root for task repo paths
	RunsDir       string
	ArtifactsDir  string
	WorktreesDir  string
	CLIBinary     string // assistant CLI used for exec jobs, default "codex"
	Limits        config.Limits
	Personas      *persona.Registry
	LLM           *llm.Client
	Narrator      *narrate.Narrator
	Notifier      *notify.Service
	Transcripts   *terminal.TranscriptWriter
}

// Service owns the run registry and the pipeline execution.
type Service struct {
	sharedRepos  string
	runsDir      string
	artifactsDir string
	worktreesDir string
	cliBinary    string
	limits       config.Limits
	personas     *persona.Registry
	llm          *llm.Client
	narrator     *narrate.Narrator
	notifier     *notify.Service
	transcripts  *terminal.TranscriptWriter
	store        *SnapshotStore
	logger       *slog.Logger

	mu   sync.Mutex
	runs map[string]*Run
}

// NewService creates the harness service.
func NewService(opts Options) *Service {
	cli := opts.CLIBinary
	if cli == "" {
		cli = "codex"
	}
	return &Service{
		sharedRepos:  opts.SharedRepos,
		runsDir:      opts.RunsDir,
		artifactsDir: opts.ArtifactsDir,
		worktreesDir: opts.WorktreesDir,
		cliBinary:    cli,
		limits:       opts.Limits,
		personas:     opts.Personas,
		llm:          opts.LLM,
		narrator:     opts.Narrator,
		notifier:     opts.Notifier,
		transcripts:  opts.Transcripts,
		store:        NewSnapshotStore(opts.RunsDir),
		logger:       slog.Default().With("component", "harness"),
		runs:         make(map[string]*Run),
	}
}

// ConfigInfo is the payload of GET /api/harness/config.
type ConfigInfo struct {
	PTYAvailable     bool          `json:"ptyAvailable"`
	BrowserAvailable bool          `json:"browserAvailable"`
	BrowserPath      string        `json:"browserPath,omitempty"`
	CLIBinary        string        `json:"cliBinary"`
	SharedRepos      string        `json:"sharedRepos"`
	Limits           config.Limits `json:"limits"`
}

// Config reports dependency availability and the active limits.
func (s *Service) Config() ConfigInfo {
	path, ok := browserExecutable()
	return ConfigInfo{
		PTYAvailable:     terminal.PTYAvailable(),
		BrowserAvailable: ok,
		BrowserPath:      path,
		CLIBinary:        s.cliBinary,
		SharedRepos:      s.sharedRepos,
		Limits:           s.limits,
	}
}

// CreateRun validates the task input, registers a run and starts its
// pipeline goroutine.
func (s *Service) CreateRun(task models.TaskInput) (models.RunSnapshot, error) {
	if !terminal.PTYAvailable() {
		return models.RunSnapshot{}, fmt.Errorf("pty: %w", fault.ErrUnavailableDependency)
	}
	if strings.TrimSpace(task.Title) == "" {
		return models.RunSnapshot{}, fmt.Errorf("title is required: %w", fault.ErrInvalidInput)
	}
	if strings.TrimSpace(task.RepoPath) == "" {
		return models.RunSnapshot{}, fmt.Errorf("repoPath is required: %w", fault.ErrInvalidInput)
	}
	if strings.TrimSpace(task.Objective) == "" {
		return models.RunSnapshot{}, fmt.Errorf("objective is required: %w", fault.ErrInvalidInput)
	}
	if task.SubtaskCount < 0 || task.SubtaskCount > s.limits.MaxSubtasks {
		return models.RunSnapshot{}, fmt.Errorf("subtaskCount must be in [0, %d]: %w",
			s.limits.MaxSubtasks, fault.ErrInvalidInput)
	}
	if task.PersonaMode != "" && task.PersonaMode != models.PersonaModeSelected &&
		task.PersonaMode != models.PersonaModeRandom {
		return models.RunSnapshot{}, fmt.Errorf("personaMode %q: %w", task.PersonaMode, fault.ErrInvalidInput)
	}

	id := uuid.New().String()
	artifacts := NewArtifactStore(filepath.Join(s.artifactsDir, id))
	r := newRun(id, task, artifacts, s.transcripts, s.limits.MainBufferChars)

	s.mu.Lock()
	s.runs[id] = r
	s.mu.Unlock()

	s.persist(r)
	go s.execute(r, s.stageTable())

	s.logger.Info("Run created", "run_id", id, "title", task.Title)
	return r.Snapshot(), nil
}

// GetRun returns the live run snapshot, falling back to the on-disk
// envelope for runs from earlier service lives.
func (s *Service) GetRun(id string) (models.RunSnapshot, error) {
	s.mu.Lock()
	r, ok := s.runs[id]
	s.mu.Unlock()
	if ok {
		return r.Snapshot(), nil
	}
	return s.store.Load(id)
}

// ListRuns merges live runs with on-disk snapshots (unknown ids only, so
// live state is never clobbered), newest first, capped.
func (s *Service) ListRuns() []models.RunListItem {
	s.mu.Lock()
	snaps := make([]models.RunSnapshot, 0, len(s.runs))
	seen := make(map[string]bool, len(s.runs))
	for id, r := range s.runs {
		snaps = append(snaps, r.Snapshot())
		seen[id] = true
	}
	s.mu.Unlock()

	for _, snap := range s.store.LoadAll() {
		if !seen[snap.ID] {
			snaps = append(snaps, snap)
		}
	}

	sort.Slice(snaps, func(i, j int) bool {
		return listSortKey(snaps[i]).After(listSortKey(snaps[j]))
	})
	if len(snaps) > s.limits.RunListCap {
		snaps = snaps[:s.limits.RunListCap]
	}

	out := make([]models.RunListItem, len(snaps))
	for i, snap := range snaps {
		out[i] = models.RunListItem{
			ID:           snap.ID,
			Title:        snap.Task.Title,
			Status:       snap.Status,
			CreatedAt:    snap.CreatedAt,
			UpdatedAt:    snap.UpdatedAt,
			CurrentStage: snap.CurrentStage,
			Error:        snap.Error,
		}
	}
	return out
}

func listSortKey(snap models.RunSnapshot) time.Time {
	if !snap.UpdatedAt.IsZero() {
		return snap.UpdatedAt
	}
	return snap.CreatedAt
}

// StopRun requests cancellation of a live run.
func (s *Service) StopRun(id string) error {
	s.mu.Lock()
	r, ok := s.runs[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("run %q: %w", id, fault.ErrUnknownTarget)
	}
	if r.Status().Terminal() {
		return nil
	}
	r.RequestCancel()
	s.persist(r)
	return nil
}

// Channel resolves a (run, channel) pair for WebSocket attachment. Only
// live runs stream.
func (s *Service) Channel(runID, name string) (*terminal.Channel, error) {
	s.mu.Lock()
	r, ok := s.runs[runID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("run %q: %w", runID, fault.ErrUnknownTarget)
	}
	return r.Channel(name)
}

// Artifacts lists a run's artifacts.
func (s *Service) Artifacts(runID string) ([]models.ArtifactMeta, error) {
	snap, err := s.GetRun(runID)
	if err != nil {
		return nil, err
	}
	return snap.Artifacts, nil
}

// ArtifactContent is one resolved artifact plus its absolute file path.
type ArtifactContent struct {
	Meta models.ArtifactMeta
	Path string
}

// Artifact resolves one artifact by id, guarding its path against the run's
// artifact root.
func (s *Service) Artifact(runID, artifactID string) (ArtifactContent, error) {
	snap, err := s.GetRun(runID)
	if err != nil {
		return ArtifactContent{}, err
	}
	for _, meta := range snap.Artifacts {
		if meta.ID != artifactID {
			continue
		}
		abs, err := ResolveArtifactPath(s.artifactsDir, runID, meta)
		if err != nil {
			return ArtifactContent{}, err
		}
		if _, err := os.Stat(abs); err != nil {
			return ArtifactContent{}, fmt.Errorf("artifact %s: %w", artifactID, fault.ErrUnknownTarget)
		}
		return ArtifactContent{Meta: meta, Path: abs}, nil
	}
	return ArtifactContent{}, fmt.Errorf("artifact %q: %w", artifactID, fault.ErrUnknownTarget)
}

// NarrateSummary narrates a run's stored summary text. No extraction: the
// summary is built at run end.
func (s *Service) NarrateSummary(ctx context.Context, runID, mode, personaID string) (models.NarrationResult, error) {
	snap, err := s.GetRun(runID)
	if err != nil {
		return models.NarrationResult{}, err
	}
	if strings.TrimSpace(snap.SummaryText) == "" {
		return models.NarrationResult{}, fmt.Errorf("run %s has no summary: %w", runID, fault.ErrNoCapturedOutput)
	}

	chosen := s.resolveRunPersona(mode, personaID, snap.Persona)
	result := s.narrator.Narrate(ctx, narrate.Request{
		Title:       fmt.Sprintf("Harness run: %s", snap.Task.Title),
		Source:      snap.SummaryText,
		Persona:     chosen,
		AudioPrefix: "harness-" + shortID(runID),
	})
	return result, nil
}

func (s *Service) resolveRunPersona(mode, personaID string, runPersona *models.PersonaInfo) persona.Persona {
	if mode == models.PersonaModeRandom || personaID != "" {
		return s.personas.Select(mode, personaID)
	}
	if runPersona != nil {
		if p, ok := s.personas.Get(runPersona.ID); ok {
			return p
		}
	}
	return s.personas.Default()
}

// Shutdown cancels every live run and stops its channels.
func (s *Service) Shutdown(ctx context.Context) {
	s.mu.Lock()
	runs := make([]*Run, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, r := range runs {
		if r.Status().Terminal() {
			continue
		}
		wg.Add(1)
		go func(r *Run) {
			defer wg.Done()
			r.RequestCancel()
			r.stopChannels()
		}(r)
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Shutdown deadline passed with runs still stopping")
	}
}

func shortID(id string) string {
	if len(id) <= 6 {
		return id
	}
	return id[len(id)-6:]
}
