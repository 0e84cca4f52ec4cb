package terminal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readTranscript(t *testing.T, dir string) []transcriptEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	f, err := os.Open(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	defer f.Close()

	var out []transcriptEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e transcriptEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		out = append(out, e)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestTranscriptWriterAppend(t *testing.T) {
	dir := t.TempDir()
	w := NewTranscriptWriter(dir)

	w.Append("codex", "main", SourceOut, "hello world\n")
	w.Append("codex", "main", SourceIn, "ls -la\r")
	w.Append("codex", "main", SourceSys, "spawned codex (pid 42)")
	w.Append("codex", "main", SourceOut, "")

	lines := readTranscript(t, dir)
	require.Len(t, lines, 3)
	assert.Equal(t, SourceOut, lines[0].Source)
	assert.Equal(t, "hello world\n", lines[0].Text)
	assert.Equal(t, SourceIn, lines[1].Source)
	assert.Equal(t, SourceSys, lines[2].Source)
	for _, l := range lines {
		assert.Equal(t, "codex", l.Target)
		assert.Equal(t, "main", l.Channel)
		assert.WithinDuration(t, time.Now().UTC(), l.TS, time.Minute)
	}

	// File name carries target, channel and day; mode keeps secrets private.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	name := entries[0].Name()
	assert.True(t, strings.HasPrefix(name, "codex-main-"))
	assert.True(t, strings.HasSuffix(name, ".jsonl"))
	info, err := os.Stat(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestTranscriptWriterRedaction(t *testing.T) {
	dir := t.TempDir()
	w := NewTranscriptWriter(dir)
	w.SetRedactor(func(s string) string {
		return strings.ReplaceAll(s, "sk-verysecret", "[redacted]")
	})

	w.Append("codex", "main", SourceOut, "key is sk-verysecret ok\n")

	lines := readTranscript(t, dir)
	require.Len(t, lines, 1)
	assert.Equal(t, "key is [redacted] ok\n", lines[0].Text)
}

func TestTranscriptWriterNilSafe(t *testing.T) {
	var w *TranscriptWriter
	w.Append("codex", "main", SourceOut, "ignored")
	w.SetRedactor(func(s string) string { return s })
}
