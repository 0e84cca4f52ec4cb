package harness

import (
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cruzjc/pi5-dashboard/pkg/fault"
	"github.com/cruzjc/pi5-dashboard/pkg/fsutil"
	"github.com/cruzjc/pi5-dashboard/pkg/models"
)

// Artifact types.
const (
	ArtifactText  = "text"
	ArtifactJSON  = "json"
	ArtifactImage = "image"
	ArtifactFile  = "file"
)

// ArtifactStore owns one run's artifact tree. Every write and read resolves
// its relative path against the per-run root; anything escaping the root is
// rejected with fault.ErrPathEscape. Ids are a0001, a0002, … per run.
type ArtifactStore struct {
	root string

	mu   sync.Mutex
	seq  int
	list []models.ArtifactMeta
}

// NewArtifactStore creates a store rooted at root (created lazily).
func NewArtifactStore(root string) *ArtifactStore {
	return &ArtifactStore{root: root}
}

// Root returns the store's absolute root directory.
func (a *ArtifactStore) Root() string { return a.root }

// Add writes data under relPath and registers it.
func (a *ArtifactStore) Add(relPath, name, typ, description string, data []byte) (models.ArtifactMeta, error) {
	abs, err := fsutil.SecureJoin(a.root, relPath)
	if err != nil {
		return models.ArtifactMeta{}, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return models.ArtifactMeta{}, fmt.Errorf("create artifact dir: %w", err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return models.ArtifactMeta{}, fmt.Errorf("write artifact %s: %w", relPath, err)
	}

	size := int64(len(data))
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	meta := models.ArtifactMeta{
		ID:          fmt.Sprintf("a%04d", a.seq),
		Name:        name,
		RelPath:     filepath.ToSlash(relPath),
		Type:        typ,
		Mime:        mimeForPath(relPath),
		Size:        &size,
		CreatedAt:   time.Now().UTC(),
		Description: description,
	}
	a.list = append(a.list, meta)
	return meta, nil
}

// AddText registers a UTF-8 text artifact.
func (a *ArtifactStore) AddText(relPath, name, content, description string) (models.ArtifactMeta, error) {
	return a.Add(relPath, name, ArtifactText, description, []byte(content))
}

// AddJSON marshals v (indented) and registers it.
func (a *ArtifactStore) AddJSON(relPath, name string, v any, description string) (models.ArtifactMeta, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return models.ArtifactMeta{}, fmt.Errorf("marshal artifact %s: %w", relPath, err)
	}
	return a.Add(relPath, name, ArtifactJSON, description, data)
}

// AddImage registers binary image data.
func (a *ArtifactStore) AddImage(relPath, name string, data []byte, description string) (models.ArtifactMeta, error) {
	return a.Add(relPath, name, ArtifactImage, description, data)
}

// List returns the registered artifacts in creation order.
func (a *ArtifactStore) List() []models.ArtifactMeta {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.ArtifactMeta(nil), a.list...)
}

// Restore seeds the store from a persisted snapshot, keeping the sequence
// counter monotonic.
func (a *ArtifactStore) Restore(list []models.ArtifactMeta) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.list = append([]models.ArtifactMeta(nil), list...)
	a.seq = len(list)
}

// Resolve checks meta's relative path against the root and returns the
// absolute file path.
func (a *ArtifactStore) Resolve(meta models.ArtifactMeta) (string, error) {
	return fsutil.SecureJoin(a.root, filepath.FromSlash(meta.RelPath))
}

// ResolveArtifactPath guards an artifact path for a run that may only exist
// on disk: root is <artifactsDir>/<runID>.
func ResolveArtifactPath(artifactsDir, runID string, meta models.ArtifactMeta) (string, error) {
	root := filepath.Join(artifactsDir, runID)
	abs, err := fsutil.SecureJoin(root, filepath.FromSlash(meta.RelPath))
	if err != nil {
		return "", fmt.Errorf("artifact %s: %w", meta.ID, fault.ErrPathEscape)
	}
	return abs, nil
}

func mimeForPath(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".md", ".txt", ".log":
		return "text/plain; charset=utf-8"
	case ".json":
		return "application/json"
	case ".jsonl":
		return "application/x-ndjson"
	case ".png":
		return "image/png"
	case ".mp3":
		return "audio/mpeg"
	default:
		if t := mime.TypeByExtension(filepath.Ext(p)); t != "" {
			return t
		}
		return "application/octet-stream"
	}
}
