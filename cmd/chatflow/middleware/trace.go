package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/lyzr/chatflow/common/trace"
)

const (
	// HeaderTraceID carries the trace id across service boundaries
	HeaderTraceID = "X-Trace-Id"
	// HeaderRequestID carries the per-request id
	HeaderRequestID = "X-Request-Id"
)

// Trace reads or generates the trace id, stores it with a fresh request id
// in the request context, and echoes both back in response headers.
func Trace() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			traceID := c.Request().Header.Get(HeaderTraceID)
			if traceID == "" {
				traceID = trace.NewID()
			}
			requestID := trace.NewID()

			ctx := trace.WithTraceID(c.Request().Context(), traceID)
			ctx = trace.WithRequestID(ctx, requestID)
			c.SetRequest(c.Request().WithContext(ctx))

			c.Response().Header().Set(HeaderTraceID, traceID)
			c.Response().Header().Set(HeaderRequestID, requestID)

			return next(c)
		}
	}
}
