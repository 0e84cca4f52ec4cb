package api

import (
	"net/http"
	"regexp"
	"sort"
	"strings"

	echo "github.com/labstack/echo/v5"
)

var secretKeyPattern = regexp.MustCompile(`(KEY|TOKEN|SECRET|PASSWORD)$`)

// envEntry is one key in the env editor listing. Secret values are masked;
// Set tells the editor whether a value exists at all.
type envEntry struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Secret bool   `json:"secret"`
	Set    bool   `json:"set"`
}

// envUpdateRequest is the body of PUT /api/config/env.
type envUpdateRequest struct {
	Values map[string]string `json:"values"`
}

// getEnvHandler handles GET /api/config/env.
func (s *Server) getEnvHandler(c *echo.Context) error {
	values, err := s.env.Load()
	if err != nil {
		return mapServiceError(err)
	}

	entries := make([]envEntry, 0, len(values))
	for key, value := range values {
		entry := envEntry{Key: key, Value: value, Set: value != ""}
		if secretKeyPattern.MatchString(key) {
			entry.Secret = true
			entry.Value = maskSecret(value)
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return c.JSON(http.StatusOK, entries)
}

// putEnvHandler handles PUT /api/config/env: merge-update, full rewrite.
func (s *Server) putEnvHandler(c *echo.Context) error {
	var req envUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Values) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "values is required")
	}

	values, err := s.env.Load()
	if err != nil {
		return mapServiceError(err)
	}
	for key, value := range req.Values {
		key = strings.TrimSpace(key)
		if !validEnvKey(key) {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid key: "+key)
		}
		values[key] = value
	}
	if err := s.env.Save(values); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "keys": len(values)})
}

// deleteEnvHandler handles DELETE /api/config/env/:key.
func (s *Server) deleteEnvHandler(c *echo.Context) error {
	key := c.Param("key")
	if !validEnvKey(key) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid key: "+key)
	}

	values, err := s.env.Load()
	if err != nil {
		return mapServiceError(err)
	}
	if _, ok := values[key]; !ok {
		return echo.NewHTTPError(http.StatusNotFound, "key not found: "+key)
	}
	delete(values, key)
	if err := s.env.Save(values); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

var envKeyPattern = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)

func validEnvKey(key string) bool {
	return envKeyPattern.MatchString(key)
}

// maskSecret keeps a short recognizable prefix of long secrets and hides
// short ones entirely.
func maskSecret(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 8 {
		return "••••••••"
	}
	return value[:4] + "…" + strings.Repeat("•", 8)
}
