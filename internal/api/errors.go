package api

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tphakala/imagelens/internal/logger"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"` // Unique identifier for tracking this error
}

// NewErrorResponse creates a new API error response
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}

	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: uuid.NewString()[:8],
	}
}

// HandleError logs err and writes the error response.
func (s *Server) HandleError(c echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)

	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("path", c.Path()),
		logger.String("ip", c.RealIP()),
		logger.Int("code", code),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if code >= 500 {
		s.log.Error(message, fields...)
	} else {
		s.log.Warn(message, fields...)
	}

	return c.JSON(code, resp)
}
