// Package models holds the JSON-facing data structures shared by the CLI
// session service, the harness orchestrator and the HTTP/WebSocket API.
// Field tags follow the dashboard wire format (camelCase).
package models

import "time"

// Auth states reported for a provider.
const (
	AuthLoggedIn  = "logged_in"
	AuthLoggedOut = "logged_out"
	AuthUnknown   = "unknown"
)

// Persona selection modes.
const (
	PersonaModeSelected = "selected"
	PersonaModeRandom   = "random"
)

// ChannelState is the observable snapshot of one PTY channel. It is the
// payload of `hello` and `state` WebSocket messages and part of provider and
// run snapshots.
type ChannelState struct {
	Target     string     `json:"target"` // provider id or run id
	Channel    string     `json:"channel"`
	Running    bool       `json:"running"`
	Stopping   bool       `json:"stopping,omitempty"`
	Cols       int        `json:"cols"`
	Rows       int        `json:"rows"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	ExitedAt   *time.Time `json:"exitedAt,omitempty"`
	ExitCode   *int       `json:"exitCode,omitempty"`
	ExitSignal string     `json:"exitSignal,omitempty"`
	LastError  string     `json:"lastError,omitempty"`
	OutputSeq  uint64     `json:"outputSeq"`
	BufferSize int        `json:"bufferSize"`

	// Auth carries the owning provider's auth status on provider channels.
	Auth *AuthStatus `json:"auth,omitempty"`
}

// AuthStatus is a provider's last known authentication state.
type AuthStatus struct {
	State     string     `json:"state"`
	Detail    string     `json:"detail,omitempty"`
	CheckedAt *time.Time `json:"checkedAt,omitempty"`
	Method    string     `json:"method,omitempty"`
}

// PersonaInfo identifies a persona without its personality text.
type PersonaInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	VoiceID string `json:"voiceId,omitempty"`
}

// PersonaPreference is a provider's sticky persona choice.
type PersonaPreference struct {
	Mode      string `json:"mode"`
	PersonaID string `json:"personaId,omitempty"`
}

// ComposerInteraction marks the point in a channel's output stream where a
// persona-framed prompt was written, so later narration can isolate the
// output that followed it.
type ComposerInteraction struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	SeqBefore uint64      `json:"seqBefore"`
	Persona   PersonaInfo `json:"persona"`
	Mode      string      `json:"mode"`
	Preview   string      `json:"preview"`
}

// ProviderSnapshot is the full observable state of one CLI provider.
type ProviderSnapshot struct {
	ID              string               `json:"id"`
	Title           string               `json:"title"`
	Binary          string               `json:"binary"`
	Version         string               `json:"version,omitempty"`
	Workspace       string               `json:"workspace"`
	Main            ChannelState         `json:"main"`
	Auth            ChannelState         `json:"auth"`
	AuthStatus      AuthStatus           `json:"authStatus"`
	AuthSupport     AuthSupport          `json:"authSupport"`
	Persona         PersonaPreference    `json:"persona"`
	LastInteraction *ComposerInteraction `json:"lastInteraction,omitempty"`
}

// AuthSupport advertises which auth operations a provider implements.
type AuthSupport struct {
	CanStatus bool `json:"canStatus"`
	CanLogout bool `json:"canLogout"`
}

// ProviderSummary is the list-endpoint row for one provider.
type ProviderSummary struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Running   bool       `json:"running"`
	AuthState string     `json:"authState"`
	Version   string     `json:"version,omitempty"`
	CheckedAt *time.Time `json:"authCheckedAt,omitempty"`
}

// NarrationResult is the response of the narrate endpoints.
type NarrationResult struct {
	SummaryText string         `json:"summaryText"`
	Persona     PersonaInfo    `json:"persona"`
	Source      string         `json:"source"` // llm | local
	Audio       *PlaylistEntry `json:"audio,omitempty"`
}

// PlaylistEntry points a dashboard player at one generated audio file.
type PlaylistEntry struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Type  string `json:"type"`
	Voice string `json:"voice,omitempty"`
}
