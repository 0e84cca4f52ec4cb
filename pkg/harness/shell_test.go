package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "'plain'"},
		{"two words", "'two words'"},
		{"it's", `'it'\''s'`},
		{`$HOME "x"`, `'$HOME "x"'`},
		{"", "''"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ShellQuote(tt.in))
	}
}

func TestTail(t *testing.T) {
	assert.Equal(t, "cdef", tail("abcdef", 4))
	assert.Equal(t, "abc", tail("abc", 4))
	// Zero or negative max means unbounded.
	assert.Equal(t, "abcdef", tail("abcdef", 0))
	assert.Equal(t, "abcdef", tail("abcdef", -1))
}
