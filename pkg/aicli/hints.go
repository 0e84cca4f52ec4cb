package aicli

import (
	"regexp"

	"github.com/cruzjc/pi5-dashboard/pkg/terminal"
)

// hintTextLimit caps the context text attached to an auth hint.
const hintTextLimit = 500

var (
	// loginURLPattern stops at whitespace and HTML/quote delimiters so URLs
	// survive being embedded in prose or markup.
	loginURLPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

	// deviceCodePattern matches grouped device codes like WDJB-MJHT or
	// ABCD-1234-EFGH.
	deviceCodePattern = regexp.MustCompile(`\b[A-Z0-9]{4}(?:-[A-Z0-9]{4}){1,4}\b`)
)

// ExtractAuthHint scans one ANSI-stripped auth chunk for the first login URL
// and device code. Returns nil when neither is present.
func ExtractAuthHint(chunk string) *terminal.AuthHint {
	url := loginURLPattern.FindString(chunk)
	code := deviceCodePattern.FindString(chunk)
	if url == "" && code == "" {
		return nil
	}
	text := chunk
	if len(text) > hintTextLimit {
		text = text[:hintTextLimit]
	}
	return &terminal.AuthHint{URL: url, Code: code, Text: text}
}
