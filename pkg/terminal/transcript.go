package terminal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Transcript line sources.
const (
	SourceOut = "out"
	SourceIn  = "in"
	SourceSys = "sys"
)

type transcriptEntry struct {
	TS      time.Time `json:"ts"`
	Target  string    `json:"target"`
	Channel string    `json:"channel"`
	Source  string    `json:"source"`
	Text    string    `json:"text"`
}

// TranscriptWriter appends ANSI-stripped channel activity to per-day JSONL
// files named <target>-<channel>-YYYYMMDD.jsonl, mode 0600. Appends are
// best-effort: failures are logged and swallowed so they can never disturb
// the PTY data path.
type TranscriptWriter struct {
	dir    string
	logger *slog.Logger

	mu     sync.Mutex
	redact func(string) string
}

// NewTranscriptWriter creates a writer rooted at dir.
func NewTranscriptWriter(dir string) *TranscriptWriter {
	return &TranscriptWriter{
		dir:    dir,
		logger: slog.Default().With("component", "transcripts"),
	}
}

// SetRedactor installs a text filter applied to every line before writing.
// Used to keep stored secret values out of transcripts.
func (w *TranscriptWriter) SetRedactor(f func(string) string) {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.redact = f
	w.mu.Unlock()
}

// Append writes one transcript line. Nil-safe and best-effort.
func (w *TranscriptWriter) Append(target, channel, source, text string) {
	if w == nil || text == "" {
		return
	}
	now := time.Now().UTC()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.redact != nil {
		text = w.redact(text)
	}
	entry := transcriptEntry{TS: now, Target: target, Channel: channel, Source: source, Text: text}
	line, err := json.Marshal(entry)
	if err != nil {
		w.logger.Debug("Transcript marshal failed", "error", err)
		return
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		w.logger.Debug("Transcript dir create failed", "dir", w.dir, "error", err)
		return
	}
	name := fmt.Sprintf("%s-%s-%s.jsonl", target, channel, now.Format("20060102"))
	path := filepath.Join(w.dir, name)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		w.logger.Debug("Transcript open failed", "path", path, "error", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		w.logger.Debug("Transcript append failed", "path", path, "error", err)
	}
}
