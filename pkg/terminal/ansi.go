package terminal

import "strings"

// StripANSI removes terminal control sequences from a raw PTY stream:
// OSC/DCS/PM/APC strings (terminated by BEL or ESC \), CSI sequences,
// remaining two-byte ESC sequences, and backspaces. A bare CR (not part of
// CRLF) is mapped to LF. The result feeds transcripts, segment logs and
// narration extraction.
func StripANSI(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == 0x1b:
			if i+1 >= len(s) {
				return b.String()
			}
			switch s[i+1] {
			case '[':
				// CSI: parameter bytes, intermediate bytes, one final byte.
				j := i + 2
				for j < len(s) && s[j] >= 0x30 && s[j] <= 0x3f {
					j++
				}
				for j < len(s) && s[j] >= 0x20 && s[j] <= 0x2f {
					j++
				}
				if j < len(s) {
					j++
				}
				i = j - 1
			case ']', 'P', '^', '_':
				// String sequence: consume until BEL or ESC \. A stray ESC
				// aborts the string and is reprocessed as a new sequence.
				j := i + 2
				terminated := false
				for j < len(s) {
					if s[j] == 0x07 {
						terminated = true
						break
					}
					if s[j] == 0x1b {
						if j+1 < len(s) && s[j+1] == '\\' {
							j++
							terminated = true
						}
						break
					}
					j++
				}
				if terminated {
					i = j
				} else {
					i = j - 1
				}
			default:
				i++
			}
		case c == '\b':
			// dropped
		case c == '\r':
			if i+1 < len(s) && s[i+1] == '\n' {
				b.WriteByte('\n')
				i++
			} else {
				b.WriteByte('\n')
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
