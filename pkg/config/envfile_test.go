package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnv(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    map[string]string
		wantErr bool
	}{
		{
			name:    "bare values",
			content: "FOO=bar\nBAZ=qux",
			want:    map[string]string{"FOO": "bar", "BAZ": "qux"},
		},
		{
			name:    "export prefix",
			content: "export OPENAI_API_KEY=sk-test",
			want:    map[string]string{"OPENAI_API_KEY": "sk-test"},
		},
		{
			name:    "comments and blanks skipped",
			content: "# header\n\nFOO=bar\n  # trailing comment line",
			want:    map[string]string{"FOO": "bar"},
		},
		{
			name:    "bare value loses inline comment",
			content: "FOO=bar # not part of the value",
			want:    map[string]string{"FOO": "bar"},
		},
		{
			name:    "single quoted verbatim",
			content: `FOO='bar # baz "quoted"'`,
			want:    map[string]string{"FOO": `bar # baz "quoted"`},
		},
		{
			name:    "single quoted with escaped quote",
			content: `FOO='it'\''s fine'`,
			want:    map[string]string{"FOO": "it's fine"},
		},
		{
			name:    "double quoted with escapes",
			content: `FOO="line1\nline2\t\"x\"\\"`,
			want:    map[string]string{"FOO": "line1\nline2\t\"x\"\\"},
		},
		{
			name:    "lowercase key rejected",
			content: "foo=bar",
			wantErr: true,
		},
		{
			name:    "missing equals rejected",
			content: "FOO",
			wantErr: true,
		},
		{
			name:    "unterminated double quote rejected",
			content: `FOO="bar`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEnv(tt.content)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Every map must survive a render/parse round-trip unchanged.
func TestRenderEnvRoundTrip(t *testing.T) {
	maps := []map[string]string{
		{},
		{"FOO": "bar"},
		{"A": "", "B": "with space", "C": "it's quoted"},
		{"KEY": "multi\nline\nvalue", "OTHER": `back\slash and "quotes"`},
		{"HASH": "value # not a comment", "TAB": "a\tb"},
	}
	for _, m := range maps {
		rendered := RenderEnv(m)
		parsed, err := ParseEnv(rendered)
		require.NoError(t, err, "rendered:\n%s", rendered)
		assert.Equal(t, m, parsed, "rendered:\n%s", rendered)
	}
}

func TestRenderEnvSortedWithHeader(t *testing.T) {
	out := RenderEnv(map[string]string{"ZULU": "1", "ALPHA": "2"})
	assert.Contains(t, out, "Contains secrets")
	assert.Less(t, strings.Index(out, "ALPHA="), strings.Index(out, "ZULU="))
}

func TestEnvStoreLoadSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.env")
	store := NewEnvStore(path)

	// Missing file loads empty.
	got, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, got)

	want := map[string]string{"OPENAI_API_KEY": "sk-test", "NOTE": "hello world"}
	require.NoError(t, store.Save(want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Invalid key is rejected before touching the file.
	err = store.Save(map[string]string{"bad key": "x"})
	require.Error(t, err)
}
