// Package api exposes the dashboard HTTP and WebSocket surface: the CLI
// session endpoints, the harness run endpoints, the env-file editor and the
// audio/static routes.
package api

import (
	"context"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/cruzjc/pi5-dashboard/pkg/aicli"
	"github.com/cruzjc/pi5-dashboard/pkg/config"
	"github.com/cruzjc/pi5-dashboard/pkg/harness"
)

// Server wires the service layer into an echo router and owns the HTTP
// listener lifecycle.
type Server struct {
	echo    *echo.Echo
	http    *http.Server
	cli     *aicli.Service
	harness *harness.Service
	env     *config.EnvStore
	audio   string // audio files directory, "" disables /api/audio
	logger  *slog.Logger
}

// NewServer builds the router. audioDir may be empty when TTS is disabled.
func NewServer(cli *aicli.Service, hs *harness.Service, env *config.EnvStore, audioDir string) *Server {
	e := echo.New()
	e.HTTPErrorHandler = jsonErrorHandler

	s := &Server{
		echo:    e,
		cli:     cli,
		harness: hs,
		env:     env,
		audio:   audioDir,
		logger:  slog.Default().With("component", "api"),
	}

	e.Use(noStore())
	s.registerRoutes(e)
	return s
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

func (s *Server) registerRoutes(e *echo.Echo) {
	e.GET("/healthz", s.healthzHandler)

	cli := e.Group("/api/ai-cli")
	cli.GET("/providers", s.listProvidersHandler)
	cli.GET("/personas", s.listPersonasHandler)
	cli.GET("/session/:provider", s.getSessionHandler)
	cli.POST("/session/:provider/start", s.startSessionHandler)
	cli.POST("/session/:provider/stop", s.stopSessionHandler)
	cli.POST("/session/:provider/restart", s.restartSessionHandler)
	cli.POST("/session/:provider/persona/send", s.personaSendHandler)
	cli.POST("/session/:provider/narrate-last", s.narrateLastHandler)
	cli.POST("/session/:provider/auth/login", s.authLoginHandler)
	cli.POST("/session/:provider/auth/status", s.authStatusHandler)
	cli.POST("/session/:provider/auth/logout", s.authLogoutHandler)
	cli.POST("/session/:provider/auth/stop", s.authStopHandler)
	cli.GET("/ws", s.cliWSHandler)

	h := e.Group("/api/harness")
	h.GET("/config", s.harnessConfigHandler)
	h.GET("/runs", s.listRunsHandler)
	h.POST("/runs", s.createRunHandler)
	h.GET("/runs/:id", s.getRunHandler)
	h.POST("/runs/:id/stop", s.stopRunHandler)
	h.GET("/runs/:id/artifacts", s.listArtifactsHandler)
	h.GET("/runs/:id/artifacts/:aid", s.getArtifactHandler)
	h.POST("/runs/:id/narrate-summary", s.narrateSummaryHandler)
	h.GET("/ws", s.harnessWSHandler)

	e.GET("/api/config/env", s.getEnvHandler)
	e.PUT("/api/config/env", s.putEnvHandler)
	e.DELETE("/api/config/env/:key", s.deleteEnvHandler)

	e.GET("/api/audio/:name", s.audioHandler)
}

// Start runs the listener; blocks until shutdown or failure.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:    addr,
		Handler: s.echo,
	}
	s.logger.Info("HTTP server listening", "addr", addr)
	return s.http.ListenAndServe()
}

// Shutdown drains the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
