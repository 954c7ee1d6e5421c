package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// IsWebSocket reports whether the request is a WebSocket upgrade. It doubles
// as a Skipper for middleware that must not wrap the hijacked connection.
func IsWebSocket(c echo.Context) bool {
	return strings.EqualFold(c.Request().Header.Get(echo.HeaderUpgrade), "websocket")
}

// SecurityHeaders sets conservative response headers. API responses are
// never cached since task state changes between requests.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			h.Set(echo.HeaderXContentTypeOptions, "nosniff")
			h.Set(echo.HeaderXFrameOptions, "DENY")
			h.Set(echo.HeaderReferrerPolicy, "no-referrer")

			if strings.HasPrefix(c.Request().URL.Path, "/api") {
				h.Set(echo.HeaderCacheControl, "no-store")
			}

			return next(c)
		}
	}
}
