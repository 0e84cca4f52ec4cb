package persona

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cruzjc/pi5-dashboard/pkg/models"
)

func TestLoadFileMissingUsesDefaults(t *testing.T) {
	list, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), list)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	content := `personas:
  - id: echo
    name: Echo
    voiceId: v1
    personality: Repeats things.
  - name: No Id Given
    voiceId: v2
  - voiceId: ignored-without-name
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	list, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "echo", list[0].ID)
	// ID derived from the name when absent.
	assert.Equal(t, "no-id-given", list[1].ID)
}

func TestLoadFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\n  - not yaml"), 0o644))
	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestRegistrySelect(t *testing.T) {
	r := NewRegistry([]Persona{
		{ID: "a", Name: "A"},
		{ID: "b", Name: "B"},
	})

	assert.Equal(t, "a", r.Select(models.PersonaModeSelected, "a").ID)
	assert.Equal(t, "b", r.Select(models.PersonaModeSelected, "b").ID)
	// Unknown id falls back to the default.
	assert.Equal(t, "a", r.Select(models.PersonaModeSelected, "nope").ID)
	assert.Equal(t, "a", r.Select("", "").ID)

	// Random always lands on a registered persona.
	for i := 0; i < 20; i++ {
		p := r.Select(models.PersonaModeRandom, "")
		assert.Contains(t, []string{"a", "b"}, p.ID)
	}
}

func TestComposePrompt(t *testing.T) {
	p := Persona{ID: "a", Name: "Aria", Personality: "Calm and precise."}
	prompt := ComposePrompt(p, "Codex", "explain this diff")

	assert.Contains(t, prompt, "Aria")
	assert.Contains(t, prompt, "Codex")
	assert.Contains(t, prompt, "Calm and precise.")
	assert.Contains(t, prompt, "explain this diff")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("  short  ", 10))
	assert.Equal(t, "0123456789", Preview("0123456789abc", 10))
}
