// Package aicli supervises the interactive CLI assistant sessions: a fixed
// registry of providers, each with a PTY-backed main channel and an auth
// subchannel, persona prompt composition and narration over captured output.
package aicli

import (
	"sync"

	"github.com/cruzjc/pi5-dashboard/pkg/models"
	"github.com/cruzjc/pi5-dashboard/pkg/terminal"
)

// AuthSpec describes the auth subcommands a provider supports.
type AuthSpec struct {
	LoginArgs  []string
	StatusArgs []string
	LogoutArgs []string
	CanStatus  bool
	CanLogout  bool
}

// statusParser interprets the merged stdout+stderr of a status subcommand.
type statusParser func(output string) models.AuthStatus

// Provider is one CLI assistant: identity, binary, argument factories and
// the two channels. Mutable state (auth status, version, persona preference,
// last composer interaction) is guarded by mu.
type Provider struct {
	ID        string
	Title     string
	Binary    string
	Workspace string
	MainArgs  func() []string
	Auth      AuthSpec

	parseStatus statusParser

	main *terminal.Channel
	auth *terminal.Channel

	mu              sync.Mutex
	authStatus      models.AuthStatus
	version         string
	personaPref     models.PersonaPreference
	lastInteraction *models.ComposerInteraction
}

// builtinProviders is the fixed provider set, created once at service start.
func builtinProviders(workspace string) []*Provider {
	return []*Provider{
		{
			ID:        "codex",
			Title:     "Codex CLI",
			Binary:    "codex",
			Workspace: workspace,
			MainArgs:  func() []string { return nil },
			Auth: AuthSpec{
				LoginArgs:  []string{"login"},
				StatusArgs: []string{"login", "status"},
				LogoutArgs: []string{"logout"},
				CanStatus:  true,
				CanLogout:  true,
			},
			parseStatus: parseKeywordStatus,
		},
		{
			ID:        "claude",
			Title:     "Claude Code",
			Binary:    "claude",
			Workspace: workspace,
			MainArgs:  func() []string { return nil },
			Auth: AuthSpec{
				LoginArgs:  []string{"login"},
				StatusArgs: []string{"auth", "status"},
				LogoutArgs: []string{"logout"},
				CanStatus:  true,
				CanLogout:  true,
			},
			parseStatus: parseJSONStatus,
		},
		{
			// Gemini has no status or logout subcommand; the bare REPL walks
			// through the OAuth flow on first start.
			ID:        "gemini",
			Title:     "Gemini CLI",
			Binary:    "gemini",
			Workspace: workspace,
			MainArgs:  func() []string { return nil },
			Auth: AuthSpec{
				LoginArgs: nil,
			},
		},
	}
}

// AuthStatus returns the provider's last known auth state.
func (p *Provider) AuthStatus() models.AuthStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authStatus
}

func (p *Provider) setAuthStatus(st models.AuthStatus) {
	p.mu.Lock()
	p.authStatus = st
	p.mu.Unlock()
}

// Version returns the cached version string, possibly empty.
func (p *Provider) Version() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.version
}

func (p *Provider) setVersion(v string) {
	p.mu.Lock()
	p.version = v
	p.mu.Unlock()
}

// LastInteraction returns a copy of the last composer interaction, or nil.
func (p *Provider) LastInteraction() *models.ComposerInteraction {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastInteraction == nil {
		return nil
	}
	cp := *p.lastInteraction
	return &cp
}

func (p *Provider) setLastInteraction(marker models.ComposerInteraction, pref models.PersonaPreference) {
	p.mu.Lock()
	p.lastInteraction = &marker
	p.personaPref = pref
	p.mu.Unlock()
}

// Snapshot assembles the full observable provider state.
func (p *Provider) Snapshot() models.ProviderSnapshot {
	p.mu.Lock()
	authStatus := p.authStatus
	version := p.version
	pref := p.personaPref
	var last *models.ComposerInteraction
	if p.lastInteraction != nil {
		cp := *p.lastInteraction
		last = &cp
	}
	p.mu.Unlock()

	return models.ProviderSnapshot{
		ID:        p.ID,
		Title:     p.Title,
		Binary:    p.Binary,
		Version:   version,
		Workspace: p.Workspace,
		Main:      p.main.State(),
		Auth:      p.auth.State(),
		AuthStatus: authStatus,
		AuthSupport: models.AuthSupport{
			CanStatus: p.Auth.CanStatus,
			CanLogout: p.Auth.CanLogout,
		},
		Persona:         pref,
		LastInteraction: last,
	}
}

// Summary assembles the list-endpoint row.
func (p *Provider) Summary() models.ProviderSummary {
	p.mu.Lock()
	authStatus := p.authStatus
	version := p.version
	p.mu.Unlock()
	return models.ProviderSummary{
		ID:        p.ID,
		Title:     p.Title,
		Running:   p.main.Running(),
		AuthState: authStatus.State,
		Version:   version,
		CheckedAt: authStatus.CheckedAt,
	}
}

// broadcastState pushes fresh state snapshots to both the main and the auth
// sinks of the provider.
func (p *Provider) broadcastState() {
	p.main.BroadcastState()
	p.auth.BroadcastState()
}
