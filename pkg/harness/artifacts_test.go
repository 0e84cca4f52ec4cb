package harness

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cruzjc/pi5-dashboard/pkg/fault"
	"github.com/cruzjc/pi5-dashboard/pkg/models"
)

func TestArtifactStoreAdd(t *testing.T) {
	store := NewArtifactStore(t.TempDir())

	first, err := store.AddText("docs/harness/task-spec.md", "task-spec.md", "# Task", "Task spec")
	require.NoError(t, err)
	second, err := store.AddJSON("metadata/config.json", "config.json", map[string]int{"n": 1}, "Run config")
	require.NoError(t, err)

	assert.Equal(t, "a0001", first.ID)
	assert.Equal(t, "a0002", second.ID)
	assert.Equal(t, ArtifactText, first.Type)
	assert.Equal(t, ArtifactJSON, second.Type)
	assert.Equal(t, "docs/harness/task-spec.md", first.RelPath)
	require.NotNil(t, first.Size)
	assert.Equal(t, int64(len("# Task")), *first.Size)

	abs, err := store.Resolve(first)
	require.NoError(t, err)
	data, err := os.ReadFile(abs)
	require.NoError(t, err)
	assert.Equal(t, "# Task", string(data))

	list := store.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a0001", list[0].ID)
}

func TestArtifactStoreRejectsEscape(t *testing.T) {
	store := NewArtifactStore(t.TempDir())
	_, err := store.AddText("../outside.txt", "outside.txt", "x", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, fault.ErrPathEscape))
}

func TestArtifactStoreRestore(t *testing.T) {
	store := NewArtifactStore(t.TempDir())
	store.Restore([]models.ArtifactMeta{
		{ID: "a0001", RelPath: "a.txt"},
		{ID: "a0002", RelPath: "b.txt"},
	})

	// Sequence continues past the restored entries.
	meta, err := store.AddText("c.txt", "c.txt", "c", "")
	require.NoError(t, err)
	assert.Equal(t, "a0003", meta.ID)
	assert.Len(t, store.List(), 3)
}

func TestResolveArtifactPath(t *testing.T) {
	dir := t.TempDir()

	abs, err := ResolveArtifactPath(dir, "run-1", models.ArtifactMeta{ID: "a0001", RelPath: "docs/x.md"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "run-1", "docs", "x.md"), abs)

	_, err = ResolveArtifactPath(dir, "run-1", models.ArtifactMeta{ID: "a0002", RelPath: "../../etc/passwd"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, fault.ErrPathEscape))
}

func TestMimeForPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"docs/readme.md", "text/plain; charset=utf-8"},
		{"cli/parent.log", "text/plain; charset=utf-8"},
		{"verify/attempt-1.json", "application/json"},
		{"browser/shot.png", "image/png"},
		{"audio/summary.mp3", "audio/mpeg"},
		{"blob.bin", "application/octet-stream"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mimeForPath(tt.path), tt.path)
	}
}
