package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	applogger "SignalFusion/pkg/logger"
)

type echoRequest struct {
	Pair string `json:"pair" validate:"required"`
	Bars int    `json:"bars" default:"200" validate:"gte=20"`
}

type routes struct{}

func (routes) RegisterRoutes(e *echo.Echo) {
	e.POST("/echo", func(c echo.Context) error {
		req := &echoRequest{}
		if verr := ReadAndValidateRequest(c, req); verr != nil {
			return BadRequestResponse(c, verr)
		}
		return SuccessResponse(c, req)
	})
	e.GET("/missing", func(echo.Context) error { return NotFoundErrorf("no decision for %s", "EURUSD") })
}

func newTestServer() *Server {
	return NewServer(Handlers{routes{}}, applogger.NewNop(), WithMetrics("/metrics", prometheus.NewRegistry()))
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestValidationEnvelope(t *testing.T) {
	s := newTestServer()

	rec := do(s, http.MethodPost, "/echo", `{"bars": 5}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp struct {
		Status int               `json:"status"`
		Data   []ValidationError `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	fields := map[string]string{}
	for _, v := range resp.Data {
		fields[v.Field] = v.Code
	}
	assert.Equal(t, "ERR_REQUIRED", fields["pair"])
	assert.Equal(t, "ERR_GTE", fields["bars"])

	rec = do(s, http.MethodPost, "/echo", `{"pair":"EURUSD"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"bars":200`)
}

func TestAppErrorsKeepStatus(t *testing.T) {
	s := newTestServer()
	rec := do(s, http.MethodGet, "/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_NOT_FOUND")

	assert.Equal(t, http.StatusNoContent, do(s, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/metrics", "").Code)
}

func TestReadinessReportsFailedDependencies(t *testing.T) {
	var chErr error
	s := NewServer(nil, applogger.NewNop(),
		WithMetrics("/metrics", prometheus.NewRegistry()),
		WithReadiness("clickhouse", func(context.Context) error { return chErr }),
	)

	rec := do(s, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ok struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ok))
	assert.Equal(t, "ok", ok.Data["clickhouse"])

	chErr = errors.New("dial tcp: connection refused")
	rec = do(s, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var failed struct {
		Data []AppError `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &failed))
	require.Len(t, failed.Data, 1)
	assert.Equal(t, "ERR_UNAVAILABLE", failed.Data[0].Code)
	assert.Equal(t, "dial tcp: connection refused", failed.Data[0].Params["clickhouse"])
}

func TestReadinessWithoutChecksIsReady(t *testing.T) {
	assert.Equal(t, http.StatusOK, do(newTestServer(), http.MethodGet, "/readyz", "").Code)
}

func TestCORSCanBeDisabled(t *testing.T) {
	fromDesk := func(s *Server) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set(echo.HeaderOrigin, "https://desk.example")
		rec := httptest.NewRecorder()
		s.Echo().ServeHTTP(rec, req)
		return rec
	}

	on := fromDesk(newTestServer())
	assert.Equal(t, "https://desk.example", on.Header().Get(echo.HeaderAccessControlAllowOrigin))

	off := fromDesk(NewServer(nil, applogger.NewNop(), WithCORS(false), WithMetrics("/metrics", prometheus.NewRegistry())))
	assert.Empty(t, off.Header().Get(echo.HeaderAccessControlAllowOrigin))
}
