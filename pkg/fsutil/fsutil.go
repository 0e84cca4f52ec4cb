// Package fsutil provides the filesystem helpers shared by the session
// service and the harness: canonical path containment, atomic secret-safe
// writes, and name slugging.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cruzjc/pi5-dashboard/pkg/fault"
)

// ResolveExisting returns the canonical absolute form of p, following
// symlinks. The path must exist.
func ResolveExisting(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}
	return real, nil
}

// WithinRoot reports whether canonical path p is root itself or lies below
// it. Both arguments must already be canonical absolute paths.
func WithinRoot(root, p string) bool {
	root = filepath.Clean(root)
	p = filepath.Clean(p)
	if p == root {
		return true
	}
	return strings.HasPrefix(p, root+string(filepath.Separator))
}

// SecureJoin joins rel onto root and verifies the cleaned result still lies
// inside root. Rejects absolute rel paths and any "../" escape with
// fault.ErrPathEscape.
func SecureJoin(root, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%s: %w", rel, fault.ErrPathEscape)
	}
	joined := filepath.Clean(filepath.Join(root, rel))
	if !WithinRoot(root, joined) {
		return "", fmt.Errorf("%s: %w", rel, fault.ErrPathEscape)
	}
	return joined, nil
}

// WriteFileAtomic writes data to path via a temp file in the same directory
// followed by rename, so readers never observe a partial file. Parent
// directories are created as needed. The final file carries mode.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer func() {
		// Best effort; gone already on the success path.
		_ = os.Remove(tmpName)
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp for %s: %w", path, err)
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

// Slug lowercases s, maps every non-alphanumeric rune to '-', collapses
// repeats, trims leading/trailing dashes and cuts to max bytes. Returns
// "task" when nothing survives.
func Slug(s string, max int) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	out := strings.Trim(b.String(), "-")
	if max > 0 && len(out) > max {
		out = strings.Trim(out[:max], "-")
	}
	if out == "" {
		return "task"
	}
	return out
}
