package aicli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cruzjc/pi5-dashboard/pkg/models"
)

// parseKeywordStatus interprets status output by keyword: "not logged in"
// beats "logged in"; anything else is unknown.
func parseKeywordStatus(output string) models.AuthStatus {
	now := time.Now().UTC()
	lower := strings.ToLower(output)
	st := models.AuthStatus{State: models.AuthUnknown, Method: "cli", CheckedAt: &now}
	switch {
	case strings.Contains(lower, "not logged in"):
		st.State = models.AuthLoggedOut
	case strings.Contains(lower, "logged in"):
		st.State = models.AuthLoggedIn
	}
	if st.State != models.AuthUnknown {
		st.Detail = firstLine(output)
	}
	return st
}

type jsonStatusBody struct {
	LoggedIn *bool  `json:"loggedIn"`
	Email    string `json:"email"`
}

// parseJSONStatus handles status commands that print a JSON object with a
// loggedIn field, falling back to keyword matching on non-JSON output.
func parseJSONStatus(output string) models.AuthStatus {
	raw := strings.TrimSpace(output)
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start >= 0 && end > start {
		var body jsonStatusBody
		if err := json.Unmarshal([]byte(raw[start:end+1]), &body); err == nil && body.LoggedIn != nil {
			now := time.Now().UTC()
			st := models.AuthStatus{Method: "cli", CheckedAt: &now}
			if *body.LoggedIn {
				st.State = models.AuthLoggedIn
				if body.Email != "" {
					st.Detail = fmt.Sprintf("Logged in as %s", body.Email)
				}
			} else {
				st.State = models.AuthLoggedOut
			}
			return st
		}
	}
	return parseKeywordStatus(output)
}

// bestEffortStatus is the answer for providers without a status command.
func bestEffortStatus() models.AuthStatus {
	now := time.Now().UTC()
	return models.AuthStatus{State: models.AuthUnknown, Method: "best-effort", CheckedAt: &now}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
