package narrate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cruzjc/pi5-dashboard/pkg/llm"
	"github.com/cruzjc/pi5-dashboard/pkg/models"
	"github.com/cruzjc/pi5-dashboard/pkg/persona"
	"github.com/cruzjc/pi5-dashboard/pkg/tts"
)

// minAudioChars is the summary length below which no audio is generated.
const minAudioChars = 20

// Narrator summarizes captured output in a persona voice. LLM and TTS are
// both optional; without them the deterministic local summary is used and
// audio is skipped.
type Narrator struct {
	llm       *llm.Client
	tts       *tts.Client
	audioDir  string
	audioKeep int
	logger    *slog.Logger
}

// NewNarrator wires the optional clients. audioKeep bounds how many audio
// files are retained per prune prefix.
func NewNarrator(llmClient *llm.Client, ttsClient *tts.Client, audioDir string, audioKeep int) *Narrator {
	if audioKeep <= 0 {
		audioKeep = 60
	}
	return &Narrator{
		llm:       llmClient,
		tts:       ttsClient,
		audioDir:  audioDir,
		audioKeep: audioKeep,
		logger:    slog.Default().With("component", "narrator"),
	}
}

// Request is one narration job over already-extracted source text.
type Request struct {
	Title       string // playlist entry title
	Source      string // normalized text to summarize
	Persona     persona.Persona
	AudioPrefix string // file prefix for audio output and pruning; empty disables both
}

// Narrate produces the summary and, when configured, one audio playlist
// entry. Audio failures degrade to a text-only result.
func (n *Narrator) Narrate(ctx context.Context, req Request) models.NarrationResult {
	result := models.NarrationResult{
		Persona: req.Persona.Info(),
		Source:  "local",
	}

	if n.llm.Enabled() {
		if text, err := n.llm.Complete(ctx, summarySystemPrompt(req.Persona), req.Source); err != nil {
			n.logger.Warn("LLM summary failed, using local summary", "error", err)
		} else if text != "" {
			result.SummaryText = text
			result.Source = "llm"
		}
	}
	if result.SummaryText == "" {
		result.SummaryText = LocalSummary(req.Source)
	}

	if n.tts.Enabled() && req.Persona.VoiceID != "" && req.AudioPrefix != "" &&
		len(result.SummaryText) >= minAudioChars {
		name, err := n.tts.Synthesize(ctx, result.SummaryText, req.Persona.VoiceID, req.AudioPrefix)
		if err != nil {
			n.logger.Warn("TTS synthesis failed, returning text only", "error", err)
		} else {
			result.Audio = &models.PlaylistEntry{
				Title: req.Title,
				URL:   "/api/audio/" + name,
				Type:  "audio/mpeg",
				Voice: req.Persona.VoiceID,
			}
			n.pruneAudio(req.AudioPrefix)
		}
	}
	return result
}

func summarySystemPrompt(p persona.Persona) string {
	var b strings.Builder
	b.WriteString("Summarize the terminal output the user provides as a concise bulleted list ")
	b.WriteString("of 4-8 bullets. Only state facts present in the output; never invent results, ")
	b.WriteString("paths or numbers. Keep commands and error messages verbatim where relevant.\n")
	fmt.Fprintf(&b, "Write in this voice. %s\n", persona.StyleGuide(p))
	return b.String()
}

// pruneAudio removes files matching <prefix>-* beyond the newest audioKeep,
// by modification time. Best-effort: stat and remove failures are ignored.
func (n *Narrator) pruneAudio(prefix string) {
	entries, err := os.ReadDir(n.audioDir)
	if err != nil {
		return
	}
	type aged struct {
		name string
		mod  int64
	}
	var matches []aged
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix+"-") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		matches = append(matches, aged{name: e.Name(), mod: info.ModTime().UnixNano()})
	}
	if len(matches) <= n.audioKeep {
		return
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].mod > matches[j].mod })
	for _, m := range matches[n.audioKeep:] {
		if err := os.Remove(filepath.Join(n.audioDir, m.name)); err == nil {
			n.logger.Debug("Pruned audio file", "name", m.name)
		}
	}
}
