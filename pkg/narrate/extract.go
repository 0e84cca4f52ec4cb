// Package narrate turns captured channel output or run summaries into
// persona-voiced summaries, optionally with generated audio.
package narrate

import (
	"regexp"
	"strings"
)

// NarrationWindow is the maximum number of trailing characters of captured
// output fed into summarization.
const NarrationWindow = 14_000

var multiBlank = regexp.MustCompile(`\n{3,}`)

// NormalizeCapture prepares extracted terminal output for summarization:
// CR and CRLF become LF, runs of three or more newlines collapse to two,
// surrounding whitespace is trimmed and only the last NarrationWindow
// characters are kept.
func NormalizeCapture(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = multiBlank.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)
	if len(s) > NarrationWindow {
		s = s[len(s)-NarrationWindow:]
	}
	return s
}

const (
	localMaxBullets   = 8
	localBulletChars  = 220
	localFallbackChar = 600
)

// decorationChars are the shell/bracket characters that, alone, make a line
// pure decoration.
const decorationChars = "$>#%[](){} \t"

// LocalSummary is the deterministic no-LLM summary: up to eight "- " bullets
// from the informative lines of source, each truncated. When no line
// qualifies, one bullet with the whitespace-collapsed source.
func LocalSummary(source string) string {
	var bullets []string
	for _, line := range strings.Split(source, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 2 || isDecoration(line) {
			continue
		}
		if len(line) > localBulletChars {
			line = line[:localBulletChars]
		}
		bullets = append(bullets, "- "+line)
		if len(bullets) == localMaxBullets {
			break
		}
	}
	if len(bullets) > 0 {
		return strings.Join(bullets, "\n")
	}

	collapsed := strings.Join(strings.Fields(source), " ")
	if len(collapsed) > localFallbackChar {
		collapsed = collapsed[:localFallbackChar]
	}
	return "- " + collapsed
}

func isDecoration(line string) bool {
	for i := 0; i < len(line); i++ {
		if !strings.ContainsRune(decorationChars, rune(line[i])) {
			return false
		}
	}
	return true
}
