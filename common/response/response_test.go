package response

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/lyzr/chatflow/common/trace"
)

func newContext(t *testing.T) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/resource", nil)
	ctx := trace.WithTraceID(context.Background(), "trace-123")
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func TestSuccessEnvelope(t *testing.T) {
	c, rec := newContext(t)

	require.NoError(t, Success(c, map[string]any{"value": 42}))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.Bytes()
	assert.Equal(t, int64(CodeSuccess), gjson.GetBytes(body, "code").Int())
	assert.Equal(t, "success", gjson.GetBytes(body, "message").String())
	assert.Equal(t, int64(42), gjson.GetBytes(body, "data.value").Int())
	assert.Equal(t, "trace-123", gjson.GetBytes(body, "trace_id").String())
	assert.True(t, gjson.GetBytes(body, "timestamp").Exists())
}

func TestErrorEnvelopeIncludesPathAndDetails(t *testing.T) {
	c, rec := newContext(t)

	require.NoError(t, ValidationError(c, "invalid input", ErrorDetail{
		Field:   "name",
		Message: "is required",
	}))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := rec.Body.Bytes()
	assert.Equal(t, int64(CodeValidationError), gjson.GetBytes(body, "code").Int())
	assert.Equal(t, "/resource", gjson.GetBytes(body, "path").String())
	assert.Equal(t, "name", gjson.GetBytes(body, "errors.0.field").String())
}

func TestStatusMapping(t *testing.T) {
	cases := map[int]int{
		CodeSuccess:            http.StatusOK,
		CodeCreated:            http.StatusCreated,
		CodeBadRequest:         http.StatusBadRequest,
		CodeNotFound:           http.StatusNotFound,
		CodeConflict:           http.StatusConflict,
		CodeValidationError:    http.StatusUnprocessableEntity,
		CodeInternalError:      http.StatusInternalServerError,
		CodeServiceUnavailable: http.StatusServiceUnavailable,
		CodeTimeout:            http.StatusGatewayTimeout,
		999:                    http.StatusInternalServerError,
	}
	for code, expected := range cases {
		assert.Equal(t, expected, httpStatus(code), "code %d", code)
	}
}

func TestNotFoundMessage(t *testing.T) {
	c, rec := newContext(t)

	require.NoError(t, NotFound(c, "workflow"))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "workflow not found", gjson.GetBytes(rec.Body.Bytes(), "message").String())
}
