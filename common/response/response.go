package response

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lyzr/chatflow/common/trace"
)

// Response codes mirror HTTP status codes
const (
	CodeSuccess            = 200
	CodeCreated            = 201
	CodeBadRequest         = 400
	CodeUnauthorized       = 401
	CodeForbidden          = 403
	CodeNotFound           = 404
	CodeConflict           = 409
	CodeValidationError    = 422
	CodeInternalError      = 500
	CodeServiceUnavailable = 503
	CodeTimeout            = 504
)

// Envelope is the unified response body for all API endpoints
type Envelope struct {
	Code      int       `json:"code"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	TraceID   string    `json:"trace_id,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// ErrorEnvelope extends Envelope with field-level errors and the request path
type ErrorEnvelope struct {
	Envelope
	Errors []ErrorDetail `json:"errors,omitempty"`
	Path   string        `json:"path,omitempty"`
}

// ErrorDetail describes a single field-level validation error
type ErrorDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func envelope(c echo.Context, code int, message string, data any) Envelope {
	ctx := c.Request().Context()
	return Envelope{
		Code:      code,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
		TraceID:   trace.TraceID(ctx),
		RequestID: trace.RequestID(ctx),
	}
}

// Success writes a 200 envelope
func Success(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, envelope(c, CodeSuccess, "success", data))
}

// Created writes a 201 envelope
func Created(c echo.Context, data any) error {
	return c.JSON(http.StatusCreated, envelope(c, CodeCreated, "created", data))
}

// Error writes an error envelope with the given code
func Error(c echo.Context, code int, message string, details ...ErrorDetail) error {
	body := ErrorEnvelope{
		Envelope: envelope(c, code, message, nil),
		Errors:   details,
		Path:     c.Request().URL.Path,
	}
	return c.JSON(httpStatus(code), body)
}

// NotFound writes a 404 envelope for a missing resource
func NotFound(c echo.Context, resource string) error {
	return Error(c, CodeNotFound, resource+" not found")
}

// BadRequest writes a 400 envelope
func BadRequest(c echo.Context, message string) error {
	return Error(c, CodeBadRequest, message)
}

// ValidationError writes a 422 envelope with field details
func ValidationError(c echo.Context, message string, details ...ErrorDetail) error {
	return Error(c, CodeValidationError, message, details...)
}

// Conflict writes a 409 envelope
func Conflict(c echo.Context, message string) error {
	return Error(c, CodeConflict, message)
}

// Internal writes a 500 envelope
func Internal(c echo.Context, message string) error {
	return Error(c, CodeInternalError, message)
}

func httpStatus(code int) int {
	switch code {
	case CodeSuccess, CodeCreated, CodeBadRequest, CodeUnauthorized, CodeForbidden,
		CodeNotFound, CodeConflict, CodeValidationError, CodeInternalError,
		CodeServiceUnavailable, CodeTimeout:
		return code
	default:
		return http.StatusInternalServerError
	}
}
