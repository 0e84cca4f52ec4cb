package api

import (
	"net/http"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/cruzjc/pi5-dashboard/pkg/events"
	"github.com/cruzjc/pi5-dashboard/pkg/terminal"
)

// cliWSHandler handles GET /api/ai-cli/ws?provider=&channel=main|auth.
// Unknown targets fail with 404 before the upgrade.
func (s *Server) cliWSHandler(c *echo.Context) error {
	provider := c.QueryParam("provider")
	channel := c.QueryParam("channel")
	if channel == "" {
		channel = "main"
	}
	ch, err := s.cli.Channel(provider, channel)
	if err != nil {
		return mapServiceError(err)
	}
	return s.serveWS(c, ch)
}

// harnessWSHandler handles GET /api/harness/ws?runId=&channel=.
func (s *Server) harnessWSHandler(c *echo.Context) error {
	runID := c.QueryParam("runId")
	channel := c.QueryParam("channel")
	if runID == "" || channel == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "runId and channel are required")
	}
	ch, err := s.harness.Channel(runID, channel)
	if err != nil {
		return mapServiceError(err)
	}
	return s.serveWS(c, ch)
}

// serveWS upgrades the connection and blocks inside the gateway until the
// client disconnects.
func (s *Server) serveWS(c *echo.Context, ch *terminal.Channel) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		// Local-network dashboard; origin checking is not enforced.
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	gw := events.NewGateway(c.Request().Context(), conn, events.DefaultWriteTimeout)
	gw.Serve(ch)
	return nil
}
