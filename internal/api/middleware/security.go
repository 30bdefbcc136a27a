package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// apiContentSecurityPolicy fits an API that only returns JSON and event streams.
const apiContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'"

// NewCORS lets browser clients on origins call the analysis API. With no
// origins configured no CORS headers are sent and cross-origin calls fail.
func NewCORS(origins []string) echo.MiddlewareFunc {
	if len(origins) == 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAccept, echo.HeaderXRequestID},
		// uploads can be large; let browsers cache the preflight for an hour
		MaxAge: 3600,
	})
}

// NewSecureHeaders marks responses as non-embeddable, non-sniffable data.
func NewSecureHeaders() echo.MiddlewareFunc {
	return middleware.SecureWithConfig(middleware.SecureConfig{
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: apiContentSecurityPolicy,
	})
}
