package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HTTPRecorder receives request measurements. *metrics.HTTPMetrics satisfies it.
type HTTPRecorder interface {
	RecordHTTPRequest(method, path string, statusCode int, duration float64)
	RecordHTTPRequestError(method, path, errorType string)
	RequestStarted()
	RequestFinished()
}

// NewMetrics records duration, status and in-flight count per route. The
// route template is used as the path label to keep cardinality bounded.
func NewMetrics(rec HTTPRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rec.RequestStarted()
			defer rec.RequestFinished()

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				status = http.StatusInternalServerError
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				}
			}

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			method := c.Request().Method

			rec.RecordHTTPRequest(method, path, status, time.Since(start).Seconds())
			switch {
			case status >= http.StatusInternalServerError:
				rec.RecordHTTPRequestError(method, path, "server_error")
			case status >= http.StatusBadRequest:
				rec.RecordHTTPRequestError(method, path, "client_error")
			}
			return err
		}
	}
}
