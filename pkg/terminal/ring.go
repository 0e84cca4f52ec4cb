// Package terminal implements the PTY channel model: a bounded scrollback
// ring, ANSI stripping, segment logs for narration, transcript persistence,
// and a supervisor that ties one child process to a set of attached sinks.
package terminal

import "strings"

// RingBuffer is a bounded character reservoir. Push appends; once the total
// exceeds the cap the oldest bytes are evicted. Eviction trims a byte prefix
// off the first stored chunk, so Dump always returns a contiguous suffix of
// everything pushed.
//
// Not safe for concurrent use; the owning Channel serializes access.
type RingBuffer struct {
	max    int
	chunks [][]byte
	size   int
}

// NewRingBuffer creates a buffer holding at most max bytes.
func NewRingBuffer(max int) *RingBuffer {
	if max < 1 {
		max = 1
	}
	return &RingBuffer{max: max}
}

// Push appends s, evicting the oldest bytes when the cap is exceeded.
func (b *RingBuffer) Push(s string) {
	if s == "" {
		return
	}
	if len(s) >= b.max {
		b.chunks = [][]byte{[]byte(s[len(s)-b.max:])}
		b.size = b.max
		return
	}
	b.chunks = append(b.chunks, []byte(s))
	b.size += len(s)
	for b.size > b.max {
		over := b.size - b.max
		first := b.chunks[0]
		if len(first) <= over {
			b.chunks = b.chunks[1:]
			b.size -= len(first)
		} else {
			b.chunks[0] = first[over:]
			b.size -= over
		}
	}
}

// Dump returns the full current contents as one string.
func (b *RingBuffer) Dump() string {
	if b.size == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(b.size)
	for _, c := range b.chunks {
		sb.Write(c)
	}
	return sb.String()
}

// Size returns the number of buffered bytes.
func (b *RingBuffer) Size() int {
	return b.size
}

// Clear drops all buffered bytes.
func (b *RingBuffer) Clear() {
	b.chunks = nil
	b.size = 0
}
