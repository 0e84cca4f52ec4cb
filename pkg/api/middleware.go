package api

import (
	echo "github.com/labstack/echo/v5"
)

// noStore returns middleware that disables response caching. Local dashboard
// state changes constantly; stale caches are worse than the extra fetches.
func noStore() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			c.Response().Header().Set("Cache-Control", "no-store")
			return next(c)
		}
	}
}
