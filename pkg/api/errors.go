package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/cruzjc/pi5-dashboard/pkg/fault"
)

// errorBody is the uniform JSON error envelope.
type errorBody struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// mapServiceError maps fault sentinels to HTTP error responses.
func mapServiceError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, fault.ErrUnavailableDependency):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, fault.ErrUnknownTarget):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, fault.ErrInvalidInput),
		errors.Is(err, fault.ErrUnsupportedAuthMode),
		errors.Is(err, fault.ErrPathEscape),
		errors.Is(err, fault.ErrNoComposerInteraction),
		errors.Is(err, fault.ErrNoCapturedOutput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, fault.ErrSessionNotRunning),
		errors.Is(err, fault.ErrDirtyRepo):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}

// jsonErrorHandler renders every error as the {ok:false, error} envelope.
func jsonErrorHandler(c *echo.Context, err error) {
	code := http.StatusInternalServerError
	message := "internal server error"

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		message = he.Message
		if message == "" {
			message = http.StatusText(code)
		}
	}

	if res, ok := c.Response().(*echo.Response); ok && res.Committed {
		return
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, errorBody{OK: false, Error: message})
}
