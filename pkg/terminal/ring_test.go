package terminal

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBufferBasics(t *testing.T) {
	b := NewRingBuffer(10)
	assert.Equal(t, 0, b.Size())
	assert.Equal(t, "", b.Dump())

	b.Push("hello")
	assert.Equal(t, 5, b.Size())
	assert.Equal(t, "hello", b.Dump())

	b.Push("")
	assert.Equal(t, 5, b.Size())

	b.Clear()
	assert.Equal(t, 0, b.Size())
	assert.Equal(t, "", b.Dump())
}

func TestRingBufferPrefixTrim(t *testing.T) {
	b := NewRingBuffer(8)
	b.Push("abcd")
	b.Push("efgh")
	assert.Equal(t, "abcdefgh", b.Dump())

	// Two bytes over: the first chunk loses its prefix, not the whole chunk.
	b.Push("ij")
	assert.Equal(t, "cdefghij", b.Dump())
	assert.Equal(t, 8, b.Size())

	// Enough to drop the trimmed first chunk entirely.
	b.Push("klmn")
	assert.Equal(t, "ghijklmn", b.Dump())
}

func TestRingBufferOversizedPush(t *testing.T) {
	b := NewRingBuffer(4)
	b.Push("0123456789")
	assert.Equal(t, "6789", b.Dump())
	assert.Equal(t, 4, b.Size())
}

// Dump must always equal the suffix of the concatenation of all pushes.
func TestRingBufferSuffixProperty(t *testing.T) {
	caps := []int{1, 3, 16, 257}
	for _, max := range caps {
		t.Run(fmt.Sprintf("cap%d", max), func(t *testing.T) {
			b := NewRingBuffer(max)
			var all strings.Builder
			for i := 0; i < 100; i++ {
				chunk := strings.Repeat(string(rune('a'+i%26)), i%17)
				b.Push(chunk)
				all.WriteString(chunk)

				require.LessOrEqual(t, b.Size(), max)
				full := all.String()
				want := full[len(full)-b.Size():]
				require.Equal(t, want, b.Dump())
			}
		})
	}
}
