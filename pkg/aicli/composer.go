package aicli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cruzjc/pi5-dashboard/pkg/fault"
	"github.com/cruzjc/pi5-dashboard/pkg/models"
	"github.com/cruzjc/pi5-dashboard/pkg/narrate"
	"github.com/cruzjc/pi5-dashboard/pkg/persona"
)

// ComposeResult is the response of a persona send.
type ComposeResult struct {
	Persona models.PersonaInfo `json:"persona"`
	Mode    string             `json:"mode"`
	Preview string             `json:"preview"`
}

// SendPersona wraps the user text in persona framing and writes it into the
// provider's interactive session, recording the output-sequence marker that
// later narration extraction starts from.
func (s *Service) SendPersona(id, text, mode, personaID string) (ComposeResult, error) {
	p, err := s.provider(id)
	if err != nil {
		return ComposeResult{}, err
	}
	if strings.TrimSpace(text) == "" {
		return ComposeResult{}, fmt.Errorf("text is required: %w", fault.ErrInvalidInput)
	}
	if mode != models.PersonaModeSelected && mode != models.PersonaModeRandom {
		return ComposeResult{}, fmt.Errorf("mode %q: %w", mode, fault.ErrInvalidInput)
	}
	if !p.main.Running() {
		return ComposeResult{}, fmt.Errorf("provider %s: %w", id, fault.ErrSessionNotRunning)
	}

	chosen := s.personas.Select(mode, personaID)
	prompt := persona.ComposePrompt(chosen, p.Title, text)

	// The marker captures the sequence counter before the prompt bytes hit
	// the PTY, so everything the child prints afterwards has seq > SeqBefore.
	marker := models.ComposerInteraction{
		ID:        newInteractionID(),
		Timestamp: time.Now().UTC(),
		SeqBefore: p.main.OutputSeq(),
		Persona:   chosen.Info(),
		Mode:      mode,
		Preview:   persona.Preview(text, previewChars),
	}
	p.setLastInteraction(marker, models.PersonaPreference{Mode: mode, PersonaID: personaID})

	if err := p.main.Write(prompt + "\r"); err != nil {
		return ComposeResult{}, err
	}
	p.broadcastState()

	return ComposeResult{Persona: chosen.Info(), Mode: mode, Preview: marker.Preview}, nil
}

// NarrateLast summarizes everything the session printed since the last
// persona send, in the resolved persona voice.
func (s *Service) NarrateLast(ctx context.Context, id, mode, personaID string) (models.NarrationResult, error) {
	p, err := s.provider(id)
	if err != nil {
		return models.NarrationResult{}, err
	}
	marker := p.LastInteraction()
	if marker == nil {
		return models.NarrationResult{}, fmt.Errorf("provider %s: %w", id, fault.ErrNoComposerInteraction)
	}

	var captured strings.Builder
	for _, seg := range p.main.SegmentsSince(marker.SeqBefore) {
		captured.WriteString(seg.Text)
	}
	source := narrate.NormalizeCapture(captured.String())
	if source == "" {
		return models.NarrationResult{}, fmt.Errorf("provider %s: %w", id, fault.ErrNoCapturedOutput)
	}

	chosen := s.resolveNarrationPersona(mode, personaID, marker)
	result := s.narrator.Narrate(ctx, narrate.Request{
		Title:       fmt.Sprintf("%s session update", p.Title),
		Source:      source,
		Persona:     chosen,
		AudioPrefix: "cli-" + p.ID,
	})
	return result, nil
}

// resolveNarrationPersona prefers an explicit override, then the marker's
// persona, then the default.
func (s *Service) resolveNarrationPersona(mode, personaID string, marker *models.ComposerInteraction) persona.Persona {
	if mode == models.PersonaModeRandom || personaID != "" {
		return s.personas.Select(mode, personaID)
	}
	if p, ok := s.personas.Get(marker.Persona.ID); ok {
		return p
	}
	return s.personas.Default()
}
