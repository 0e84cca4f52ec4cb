// Package persona manages the voice profiles used to frame CLI prompts and
// narrate summaries: loading from the personas file, selection by mode, and
// the composer prompt template.
package persona

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cruzjc/pi5-dashboard/pkg/fsutil"
	"github.com/cruzjc/pi5-dashboard/pkg/models"
)

// Persona is one voice profile. ID is derived from Name when absent.
type Persona struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	VoiceID     string `yaml:"voiceId"`
	Personality string `yaml:"personality"`
}

// Info returns the wire-facing identity of the persona.
func (p Persona) Info() models.PersonaInfo {
	return models.PersonaInfo{ID: p.ID, Name: p.Name, VoiceID: p.VoiceID}
}

type personasFile struct {
	Personas []Persona `yaml:"personas"`
}

// Defaults is the compiled-in persona list used when no personas file exists.
func Defaults() []Persona {
	return []Persona{
		{
			ID:      "aria",
			Name:    "Aria",
			VoiceID: "9BWtsMINqrJLrRacOk9x",
			Personality: "Calm, precise and encouraging. Prefers short sentences, " +
				"concrete numbers and explicit next steps.",
		},
		{
			ID:      "marcus",
			Name:    "Marcus",
			VoiceID: "TxGEqnHWrfWFTfGW9XjX",
			Personality: "Dry, skeptical senior engineer. Flags risks early, " +
				"questions assumptions, keeps praise minimal.",
		},
		{
			ID:      "nova",
			Name:    "Nova",
			VoiceID: "pFZP5JQG7iQjIQuC4Bku",
			Personality: "Upbeat and fast-paced. Summarizes aggressively and " +
				"closes with one clear recommendation.",
		},
	}
}

// LoadFile reads personas from a YAML file. A missing file returns the
// default list; a malformed file is an error.
func LoadFile(path string) ([]Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Defaults(), nil
		}
		return nil, fmt.Errorf("read personas %s: %w", path, err)
	}
	var f personasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse personas %s: %w", path, err)
	}
	list := make([]Persona, 0, len(f.Personas))
	for _, p := range f.Personas {
		if p.Name == "" {
			continue
		}
		if p.ID == "" {
			p.ID = fsutil.Slug(p.Name, 40)
		}
		list = append(list, p)
	}
	if len(list) == 0 {
		return Defaults(), nil
	}
	return list, nil
}

// Registry is the fixed persona list loaded at service start.
type Registry struct {
	list []Persona
}

// NewRegistry wraps a persona list; an empty list falls back to Defaults.
func NewRegistry(list []Persona) *Registry {
	if len(list) == 0 {
		list = Defaults()
	}
	return &Registry{list: list}
}

// LoadRegistry loads the personas file into a registry, falling back to the
// defaults on error.
func LoadRegistry(path string) *Registry {
	list, err := LoadFile(path)
	if err != nil {
		slog.Warn("Personas file unusable, using defaults", "path", path, "error", err)
		list = Defaults()
	}
	return NewRegistry(list)
}

// All lists the personas without their personality text.
func (r *Registry) All() []models.PersonaInfo {
	out := make([]models.PersonaInfo, len(r.list))
	for i, p := range r.list {
		out[i] = p.Info()
	}
	return out
}

// Default returns the head of the persona list.
func (r *Registry) Default() Persona {
	return r.list[0]
}

// Get looks up a persona by id.
func (r *Registry) Get(id string) (Persona, bool) {
	for _, p := range r.list {
		if p.ID == id {
			return p, true
		}
	}
	return Persona{}, false
}

// Select resolves a (mode, personaId) pair: random picks uniformly, selected
// looks up the id and falls back to the first persona.
func (r *Registry) Select(mode, personaID string) Persona {
	if mode == models.PersonaModeRandom {
		return r.list[rand.IntN(len(r.list))]
	}
	if p, ok := r.Get(personaID); ok {
		return p
	}
	return r.Default()
}
