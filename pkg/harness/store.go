package harness

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cruzjc/pi5-dashboard/pkg/fault"
	"github.com/cruzjc/pi5-dashboard/pkg/fsutil"
	"github.com/cruzjc/pi5-dashboard/pkg/models"
)

// SnapshotStore persists one JSON envelope per run under the runs
// directory. Writes are atomic (tmp-rename) with mode 0600.
type SnapshotStore struct {
	dir    string
	logger *slog.Logger
}

// NewSnapshotStore creates a store over dir.
func NewSnapshotStore(dir string) *SnapshotStore {
	return &SnapshotStore{
		dir:    dir,
		logger: slog.Default().With("component", "harness-store"),
	}
}

// Save writes the run snapshot. Failures are returned but callers on the
// pipeline hot path log and continue; the in-memory run stays authoritative.
func (s *SnapshotStore) Save(snap models.RunSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", snap.ID, err)
	}
	path := filepath.Join(s.dir, snap.ID+".json")
	if err := fsutil.WriteFileAtomic(path, data, 0o600); err != nil {
		return fmt.Errorf("persist run %s: %w", snap.ID, err)
	}
	return nil
}

// Load reads one snapshot. A missing file is fault.ErrUnknownTarget; a
// corrupt file surfaces as a decode error.
func (s *SnapshotStore) Load(id string) (models.RunSnapshot, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return models.RunSnapshot{}, fmt.Errorf("run %q: %w", id, fault.ErrUnknownTarget)
		}
		return models.RunSnapshot{}, fmt.Errorf("read run %s: %w", id, err)
	}
	var snap models.RunSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return models.RunSnapshot{}, fmt.Errorf("decode run %s: %w", id, err)
	}
	return snap, nil
}

// LoadAll reads every snapshot on disk, skipping unreadable files with a
// warning so one corrupt snapshot cannot break the listing.
func (s *SnapshotStore) LoadAll() []models.RunSnapshot {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	var out []models.RunSnapshot
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		snap, err := s.Load(id)
		if err != nil {
			s.logger.Warn("Skipping unreadable run snapshot", "id", id, "error", err)
			continue
		}
		out = append(out, snap)
	}
	return out
}
