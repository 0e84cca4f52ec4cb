package harness

import "strings"

// ShellQuote wraps s in single quotes, escaping embedded quotes with the
// '\'' idiom, so it can be spliced into a bash -lc command line.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// tail returns the last max bytes of s.
func tail(s string, max int) string {
	if max > 0 && len(s) > max {
		return s[len(s)-max:]
	}
	return s
}
