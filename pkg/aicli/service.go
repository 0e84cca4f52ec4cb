package aicli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/cruzjc/pi5-dashboard/pkg/config"
	"github.com/cruzjc/pi5-dashboard/pkg/fault"
	"github.com/cruzjc/pi5-dashboard/pkg/models"
	"github.com/cruzjc/pi5-dashboard/pkg/narrate"
	"github.com/cruzjc/pi5-dashboard/pkg/persona"
	"github.com/cruzjc/pi5-dashboard/pkg/terminal"
)

const (
	authStatusTimeout = 12 * time.Second
	versionTimeout    = 8 * time.Second
	previewChars      = 200
)

// Options configure the session service.
type Options struct {
	Workspace   string // cwd for provider main sessions
	Limits      config.Limits
	Personas    *persona.Registry
	Narrator    *narrate.Narrator
	Transcripts *terminal.TranscriptWriter
}

// Service owns the fixed provider registry and every operation the HTTP and
// WebSocket layers perform on it.
type Service struct {
	providers map[string]*Provider
	order     []string
	personas  *persona.Registry
	narrator  *narrate.Narrator
	logger    *slog.Logger
	sf        singleflight.Group
}

// NewService builds the provider set and their idle channels.
func NewService(opts Options) *Service {
	s := &Service{
		providers: make(map[string]*Provider),
		personas:  opts.Personas,
		narrator:  opts.Narrator,
		logger:    slog.Default().With("component", "ai-cli"),
	}

	mainChars := opts.Limits.MainBufferChars
	authChars := opts.Limits.AuthBufferChars
	for _, p := range builtinProviders(opts.Workspace) {
		p := p
		p.main = terminal.NewChannel(terminal.ChannelOptions{
			Target:      p.ID,
			Name:        "main",
			BufferChars: mainChars,
			Transcripts: opts.Transcripts,
		})
		p.auth = terminal.NewChannel(terminal.ChannelOptions{
			Target:      p.ID,
			Name:        "auth",
			BufferChars: authChars,
			Transcripts: opts.Transcripts,
			HintFunc:    ExtractAuthHint,
			OnExit:      func() { s.onAuthExit(p.ID) },
		})
		decorate := func(st *models.ChannelState) {
			auth := p.AuthStatus()
			st.Auth = &auth
		}
		p.main.SetStateDecorator(decorate)
		p.auth.SetStateDecorator(decorate)
		p.authStatus = models.AuthStatus{State: models.AuthUnknown}
		p.personaPref = models.PersonaPreference{Mode: models.PersonaModeSelected}
		s.providers[p.ID] = p
		s.order = append(s.order, p.ID)
	}
	return s
}

// Providers lists provider summaries in registry order.
func (s *Service) Providers() []models.ProviderSummary {
	out := make([]models.ProviderSummary, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.providers[id].Summary())
	}
	return out
}

// Personas lists the configured personas.
func (s *Service) Personas() []models.PersonaInfo {
	return s.personas.All()
}

// Snapshot returns the full state of one provider.
func (s *Service) Snapshot(id string) (models.ProviderSnapshot, error) {
	p, err := s.provider(id)
	if err != nil {
		return models.ProviderSnapshot{}, err
	}
	return p.Snapshot(), nil
}

// Channel resolves a (provider, channel) pair for WebSocket attachment.
func (s *Service) Channel(id, name string) (*terminal.Channel, error) {
	p, err := s.provider(id)
	if err != nil {
		return nil, err
	}
	switch name {
	case "main":
		return p.main, nil
	case "auth":
		return p.auth, nil
	default:
		return nil, fmt.Errorf("channel %q: %w", name, fault.ErrUnknownTarget)
	}
}

// EnsureMain spawns the provider's interactive session if it is not already
// running. Idempotent.
func (s *Service) EnsureMain(id string) (models.ChannelState, error) {
	p, err := s.provider(id)
	if err != nil {
		return models.ChannelState{}, err
	}
	if _, err := p.main.Start(terminal.StartSpec{
		Path: p.Binary,
		Args: p.MainArgs(),
		Dir:  p.Workspace,
		Env:  sessionEnv(),
	}); err != nil {
		return p.main.State(), err
	}
	if p.Version() == "" {
		go s.detectVersion(p)
	}
	return p.main.State(), nil
}

// StopMain terminates the interactive session.
func (s *Service) StopMain(id string) error {
	p, err := s.provider(id)
	if err != nil {
		return err
	}
	return p.main.Stop()
}

// RestartMain stops then respawns the interactive session.
func (s *Service) RestartMain(id string) (models.ChannelState, error) {
	if err := s.StopMain(id); err != nil {
		return models.ChannelState{}, err
	}
	return s.EnsureMain(id)
}

// StartAuth spawns the auth subchannel. Only "login" is accepted; the flow
// for providers without a dedicated login subcommand is the bare REPL.
func (s *Service) StartAuth(id, mode string) (models.ChannelState, error) {
	p, err := s.provider(id)
	if err != nil {
		return models.ChannelState{}, err
	}
	if mode != "login" {
		return models.ChannelState{}, fmt.Errorf("auth mode %q: %w", mode, fault.ErrUnsupportedAuthMode)
	}
	if _, err := p.auth.Start(terminal.StartSpec{
		Path: p.Binary,
		Args: p.Auth.LoginArgs,
		Dir:  p.Workspace,
		Env:  sessionEnv(),
	}); err != nil {
		return p.auth.State(), err
	}
	return p.auth.State(), nil
}

// StopAuth terminates the auth subchannel.
func (s *Service) StopAuth(id string) error {
	p, err := s.provider(id)
	if err != nil {
		return err
	}
	return p.auth.Stop()
}

// RefreshAuthStatus runs the provider's status subcommand synchronously and
// updates (and broadcasts) the parsed result. Concurrent refreshes of the
// same provider coalesce.
func (s *Service) RefreshAuthStatus(ctx context.Context, id string) (models.AuthStatus, error) {
	p, err := s.provider(id)
	if err != nil {
		return models.AuthStatus{}, err
	}

	v, err, _ := s.sf.Do("auth-status:"+id, func() (any, error) {
		var st models.AuthStatus
		if !p.Auth.CanStatus {
			st = bestEffortStatus()
		} else {
			cmdCtx, cancel := context.WithTimeout(ctx, authStatusTimeout)
			defer cancel()
			out, err := exec.CommandContext(cmdCtx, p.Binary, p.Auth.StatusArgs...).CombinedOutput()
			if err != nil && len(out) == 0 {
				now := time.Now().UTC()
				st = models.AuthStatus{
					State:     models.AuthUnknown,
					Detail:    err.Error(),
					Method:    "cli",
					CheckedAt: &now,
				}
			} else {
				// Non-zero exits still carry usable output ("not logged in"
				// typically exits 1), so the merged output is always parsed.
				st = p.parseStatus(string(out))
			}
		}
		p.setAuthStatus(st)
		p.broadcastState()
		return st, nil
	})
	if err != nil {
		return models.AuthStatus{}, err
	}
	return v.(models.AuthStatus), nil
}

// Logout runs the provider's logout subcommand and re-polls status.
func (s *Service) Logout(ctx context.Context, id string) (models.AuthStatus, error) {
	p, err := s.provider(id)
	if err != nil {
		return models.AuthStatus{}, err
	}
	if !p.Auth.CanLogout {
		return models.AuthStatus{}, fmt.Errorf("logout for %s: %w", id, fault.ErrUnsupportedAuthMode)
	}
	cmdCtx, cancel := context.WithTimeout(ctx, authStatusTimeout)
	defer cancel()
	if out, err := exec.CommandContext(cmdCtx, p.Binary, p.Auth.LogoutArgs...).CombinedOutput(); err != nil {
		return models.AuthStatus{}, fmt.Errorf("logout %s: %w: %s", id, err, firstLine(string(out)))
	}
	return s.RefreshAuthStatus(ctx, id)
}

// Shutdown stops every live channel, in parallel.
func (s *Service) Shutdown(ctx context.Context) {
	var wg sync.WaitGroup
	for _, id := range s.order {
		p := s.providers[id]
		for _, ch := range []*terminal.Channel{p.main, p.auth} {
			if !ch.Running() {
				continue
			}
			wg.Add(1)
			go func(ch *terminal.Channel) {
				defer wg.Done()
				_ = ch.Stop()
			}(ch)
		}
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Shutdown deadline passed with channels still stopping")
	}
}

// onAuthExit re-polls auth status after the auth subprocess ends, since a
// completed login flow changes it.
func (s *Service) onAuthExit(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), authStatusTimeout+time.Second)
	defer cancel()
	if _, err := s.RefreshAuthStatus(ctx, id); err != nil {
		s.logger.Debug("Auth status re-poll failed", "provider", id, "error", err)
	}
}

func (s *Service) detectVersion(p *Provider) {
	v, err, _ := s.sf.Do("version:"+p.ID, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), versionTimeout)
		defer cancel()
		out, err := exec.CommandContext(ctx, p.Binary, "--version").CombinedOutput()
		if err != nil && len(out) == 0 {
			return "", err
		}
		return firstLine(string(out)), nil
	})
	if err != nil {
		s.logger.Debug("Version detection failed", "provider", p.ID, "error", err)
		return
	}
	if version := v.(string); version != "" {
		p.setVersion(version)
	}
}

func (s *Service) provider(id string) (*Provider, error) {
	p, ok := s.providers[id]
	if !ok {
		return nil, fmt.Errorf("provider %q: %w", id, fault.ErrUnknownTarget)
	}
	return p, nil
}

// sessionEnv is the child environment for interactive sessions: the service
// environment plus a color-capable TERM.
func sessionEnv() []string {
	env := os.Environ()
	filtered := env[:0]
	for _, kv := range env {
		if !strings.HasPrefix(kv, "TERM=") {
			filtered = append(filtered, kv)
		}
	}
	return append(filtered, "TERM=xterm-256color")
}

// newInteractionID mints a composer interaction id.
func newInteractionID() string {
	return uuid.New().String()
}
