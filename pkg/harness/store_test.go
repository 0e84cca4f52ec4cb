package harness

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cruzjc/pi5-dashboard/pkg/fault"
	"github.com/cruzjc/pi5-dashboard/pkg/models"
)

func TestSnapshotStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewSnapshotStore(dir)

	snap := models.RunSnapshot{
		ID:        "run-1",
		Status:    models.RunCompleted,
		CreatedAt: time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
		Task:      models.TaskInput{Title: "Fix the widget"},
	}
	require.NoError(t, store.Save(snap))

	info, err := os.Stat(filepath.Join(dir, "run-1.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := store.Load("run-1")
	require.NoError(t, err)
	assert.Equal(t, snap.ID, got.ID)
	assert.Equal(t, snap.Status, got.Status)
	assert.Equal(t, snap.Task.Title, got.Task.Title)
	assert.True(t, snap.CreatedAt.Equal(got.CreatedAt))
}

func TestSnapshotStoreLoadMissing(t *testing.T) {
	store := NewSnapshotStore(t.TempDir())
	_, err := store.Load("absent")
	require.Error(t, err)
	assert.True(t, errors.Is(err, fault.ErrUnknownTarget))
}

func TestSnapshotStoreLoadAllSkipsCorrupt(t *testing.T) {
	dir := t.TempDir()
	store := NewSnapshotStore(dir)

	require.NoError(t, store.Save(models.RunSnapshot{ID: "good"}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o600))

	all := store.LoadAll()
	require.Len(t, all, 1)
	assert.Equal(t, "good", all[0].ID)
}
