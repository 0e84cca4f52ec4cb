package api

import (
	"net/http"
	"os"

	echo "github.com/labstack/echo/v5"

	"github.com/cruzjc/pi5-dashboard/pkg/fsutil"
	"github.com/cruzjc/pi5-dashboard/pkg/version"
)

// healthzHandler handles GET /healthz.
func (s *Server) healthzHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"app":     version.AppName,
		"version": version.Full(),
	})
}

// audioHandler handles GET /api/audio/:name, streaming a generated TTS file.
// The name is path-guarded against the audio directory.
func (s *Server) audioHandler(c *echo.Context) error {
	if s.audio == "" {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "audio is not configured")
	}
	name := c.Param("name")
	if name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "file name is required")
	}
	path, err := fsutil.SecureJoin(s.audio, name)
	if err != nil {
		return mapServiceError(err)
	}
	if _, err := os.Stat(path); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "audio file not found")
	}
	return c.File(path)
}
