package api

import (
	"net/http"
	"os"
	"unicode/utf8"

	echo "github.com/labstack/echo/v5"

	"github.com/cruzjc/pi5-dashboard/pkg/models"
)

// harnessConfigHandler handles GET /api/harness/config.
func (s *Server) harnessConfigHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.harness.Config())
}

// listRunsHandler handles GET /api/harness/runs.
func (s *Server) listRunsHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.harness.ListRuns())
}

// createRunHandler handles POST /api/harness/runs.
func (s *Server) createRunHandler(c *echo.Context) error {
	var task models.TaskInput
	if err := c.Bind(&task); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	snap, err := s.harness.CreateRun(task)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, snap)
}

// getRunHandler handles GET /api/harness/runs/:id.
func (s *Server) getRunHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "run id is required")
	}
	snap, err := s.harness.GetRun(id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, snap)
}

// stopRunHandler handles POST /api/harness/runs/:id/stop.
func (s *Server) stopRunHandler(c *echo.Context) error {
	if err := s.harness.StopRun(c.Param("id")); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// listArtifactsHandler handles GET /api/harness/runs/:id/artifacts.
func (s *Server) listArtifactsHandler(c *echo.Context) error {
	artifacts, err := s.harness.Artifacts(c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, artifacts)
}

// artifactEnvelope wraps a UTF-8 artifact body with its metadata.
type artifactEnvelope struct {
	OK       bool                `json:"ok"`
	Artifact models.ArtifactMeta `json:"artifact"`
	Content  string              `json:"content"`
}

// getArtifactHandler handles GET /api/harness/runs/:id/artifacts/:aid.
// ?raw=1 and image artifacts stream the bytes; everything else is returned
// inside a JSON envelope.
func (s *Server) getArtifactHandler(c *echo.Context) error {
	content, err := s.harness.Artifact(c.Param("id"), c.Param("aid"))
	if err != nil {
		return mapServiceError(err)
	}

	raw := c.QueryParam("raw") == "1"
	if raw || content.Meta.Type == "image" {
		return c.File(content.Path)
	}

	data, err := os.ReadFile(content.Path)
	if err != nil {
		return mapServiceError(err)
	}
	if !utf8.Valid(data) {
		// Binary artifact requested without raw mode; stream it instead of
		// corrupting it in a JSON string.
		return c.File(content.Path)
	}
	return c.JSON(http.StatusOK, artifactEnvelope{
		OK:       true,
		Artifact: content.Meta,
		Content:  string(data),
	})
}

// narrateSummaryHandler handles POST /api/harness/runs/:id/narrate-summary.
func (s *Server) narrateSummaryHandler(c *echo.Context) error {
	var req narrateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	result, err := s.harness.NarrateSummary(c.Request().Context(), c.Param("id"), req.Mode, req.PersonaID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, result)
}
