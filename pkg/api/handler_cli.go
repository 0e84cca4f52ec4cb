package api

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"
)

// personaSendRequest is the body of POST /api/ai-cli/session/:provider/persona/send.
type personaSendRequest struct {
	Text      string `json:"text"`
	Mode      string `json:"mode"`
	PersonaID string `json:"personaId"`
}

// narrateRequest is the body of the narrate endpoints.
type narrateRequest struct {
	Mode      string `json:"mode"`
	PersonaID string `json:"personaId"`
}

// authStartRequest is the optional body of POST .../auth/login.
type authStartRequest struct {
	Mode string `json:"mode"`
}

// listProvidersHandler handles GET /api/ai-cli/providers.
func (s *Server) listProvidersHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.cli.Providers())
}

// listPersonasHandler handles GET /api/ai-cli/personas.
func (s *Server) listPersonasHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.cli.Personas())
}

// getSessionHandler handles GET /api/ai-cli/session/:provider.
func (s *Server) getSessionHandler(c *echo.Context) error {
	id := c.Param("provider")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "provider id is required")
	}
	snap, err := s.cli.Snapshot(id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, snap)
}

// startSessionHandler handles POST /api/ai-cli/session/:provider/start.
func (s *Server) startSessionHandler(c *echo.Context) error {
	st, err := s.cli.EnsureMain(c.Param("provider"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, st)
}

// stopSessionHandler handles POST /api/ai-cli/session/:provider/stop.
func (s *Server) stopSessionHandler(c *echo.Context) error {
	if err := s.cli.StopMain(c.Param("provider")); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// restartSessionHandler handles POST /api/ai-cli/session/:provider/restart.
func (s *Server) restartSessionHandler(c *echo.Context) error {
	st, err := s.cli.RestartMain(c.Param("provider"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, st)
}

// personaSendHandler handles POST /api/ai-cli/session/:provider/persona/send.
func (s *Server) personaSendHandler(c *echo.Context) error {
	var req personaSendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}
	result, err := s.cli.SendPersona(c.Param("provider"), req.Text, req.Mode, req.PersonaID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// narrateLastHandler handles POST /api/ai-cli/session/:provider/narrate-last.
func (s *Server) narrateLastHandler(c *echo.Context) error {
	var req narrateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	result, err := s.cli.NarrateLast(c.Request().Context(), c.Param("provider"), req.Mode, req.PersonaID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// authLoginHandler handles POST /api/ai-cli/session/:provider/auth/login.
func (s *Server) authLoginHandler(c *echo.Context) error {
	req := authStartRequest{Mode: "login"}
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		if req.Mode == "" {
			req.Mode = "login"
		}
	}
	st, err := s.cli.StartAuth(c.Param("provider"), req.Mode)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, st)
}

// authStatusHandler handles POST /api/ai-cli/session/:provider/auth/status.
func (s *Server) authStatusHandler(c *echo.Context) error {
	st, err := s.cli.RefreshAuthStatus(c.Request().Context(), c.Param("provider"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, st)
}

// authLogoutHandler handles POST /api/ai-cli/session/:provider/auth/logout.
func (s *Server) authLogoutHandler(c *echo.Context) error {
	st, err := s.cli.Logout(c.Request().Context(), c.Param("provider"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, st)
}

// authStopHandler handles POST /api/ai-cli/session/:provider/auth/stop.
func (s *Server) authStopHandler(c *echo.Context) error {
	if err := s.cli.StopAuth(c.Param("provider")); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}
