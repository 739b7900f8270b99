package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalFusion/internal/domain/models"
	domrepo "SignalFusion/internal/domain/repository"
	"SignalFusion/internal/usecase"
	xhttp "SignalFusion/pkg/http"
	"SignalFusion/pkg/http/middleware"
	xlogger "SignalFusion/pkg/logger"
)

type fakeEngine struct {
	decideErr  error
	decided    []string
	latest     map[string]models.FusedDecision
	degraded   bool
	reliab     map[string]models.ModuleReliability
	reliabErr  error
	recordErr  error
	savedFirst int
	recorded   []models.TradeOutcome
	lastModule string
}

func (f *fakeEngine) Decide(_ context.Context, pair, tf string, bars int) (models.FusedDecision, error) {
	f.decided = append(f.decided, pair+"/"+tf)
	if f.decideErr != nil {
		return models.FusedDecision{}, f.decideErr
	}
	return models.FusedDecision{ID: "d-1", Pair: pair, Timeframe: tf, Direction: models.DirectionBuy, FusedProbability: 0.7}, nil
}

func (f *fakeEngine) Latest(pair string) (models.FusedDecision, bool) {
	d, ok := f.latest[pair]
	return d, ok
}

func (f *fakeEngine) CurrentThresholds(context.Context) (models.AdaptiveThresholds, bool) {
	t := models.DefaultThresholds()
	t.Version = 3
	return t, f.degraded
}

func (f *fakeEngine) Reliability(_ context.Context, moduleID string) (map[string]models.ModuleReliability, error) {
	f.lastModule = moduleID
	return f.reliab, f.reliabErr
}

func (f *fakeEngine) RecordBatch(_ context.Context, outs []models.TradeOutcome) ([]models.ModuleReliability, error) {
	if f.recordErr != nil {
		saved := make([]models.ModuleReliability, 0, f.savedFirst)
		for _, o := range outs[:f.savedFirst] {
			f.recorded = append(f.recorded, o)
			saved = append(saved, models.ModuleReliability{ModuleID: o.ModuleID})
		}
		return saved, f.recordErr
	}
	f.recorded = append(f.recorded, outs...)
	return []models.ModuleReliability{{ModuleID: outs[0].ModuleID, TotalObservations: len(outs)}}, nil
}

func newServer(f *fakeEngine, guard echo.MiddlewareFunc) *xhttp.Server {
	h := NewDecisionsHandler(xlogger.NewNop(), f, f, nil, guard)
	return xhttp.NewServer(h, xlogger.NewNop(), xhttp.WithMetrics("/metrics", prometheus.NewRegistry()))
}

func call(s *xhttp.Server, method, path, body string, hdr ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	env := struct {
		Data json.RawMessage `json:"data"`
	}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, into))
}

func TestDecideEndpoint(t *testing.T) {
	f := &fakeEngine{}
	s := newServer(f, nil)

	rec := call(s, http.MethodPost, "/api/decisions", `{"pair":"EURUSD","timeframe":"4h"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var d models.FusedDecision
	decode(t, rec, &d)
	assert.Equal(t, models.DirectionBuy, d.Direction)
	assert.Equal(t, []string{"EURUSD/4h"}, f.decided)

	rec = call(s, http.MethodPost, "/api/decisions", `{"timeframe":"2h"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_REQUIRED")
	assert.Contains(t, rec.Body.String(), "ERR_ONEOF")

	f.decideErr = errors.New("clickhouse down")
	rec = call(s, http.MethodPost, "/api/decisions", `{"pair":"EURUSD"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLatestAndExplain(t *testing.T) {
	f := &fakeEngine{latest: map[string]models.FusedDecision{
		"GBPUSD": {
			ID:        "d-9",
			Pair:      "GBPUSD",
			Direction: models.DirectionSell,
			Reasoning: "Rejected: high entropy",
			Rejection: &models.RejectionInfo{Category: models.RejectHighEntropy, Variant: models.VariantEntropy, RequiredThreshold: 0.75, ActualValue: 0.97},
			Warnings:  []string{"threshold store unavailable: using default thresholds"},
		},
	}}
	s := newServer(f, nil)

	assert.Equal(t, http.StatusBadRequest, call(s, http.MethodGet, "/api/decisions/explain", "").Code)
	assert.Equal(t, http.StatusNotFound, call(s, http.MethodGet, "/api/decisions/latest?pair=EURUSD", "").Code)

	rec := call(s, http.MethodGet, "/api/decisions/explain?pair=GBPUSD", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ex ExplainResponse
	decode(t, rec, &ex)
	assert.False(t, ex.Accepted)
	assert.Equal(t, "d-9", ex.DecisionID)
	require.NotNil(t, ex.Rejection)
	assert.Equal(t, models.RejectHighEntropy, ex.Rejection.Category)
	assert.Len(t, ex.Warnings, 1)
}

func TestThresholdsAndReliability(t *testing.T) {
	f := &fakeEngine{degraded: true, reliab: map[string]models.ModuleReliability{
		"technical": {ModuleID: "technical", WinRate: 0.6, Reliability: 0.12},
	}}
	s := newServer(f, nil)

	rec := call(s, http.MethodGet, "/api/thresholds", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var th struct {
		Version  int64   `json:"version"`
		Entropy  float64 `json:"entropy_current"`
		Degraded bool    `json:"degraded"`
	}
	decode(t, rec, &th)
	assert.Equal(t, int64(3), th.Version)
	assert.Equal(t, 0.75, th.Entropy)
	assert.True(t, th.Degraded)

	rec = call(s, http.MethodGet, "/api/reliability?module_id=technical", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "technical", f.lastModule)
	assert.Contains(t, rec.Body.String(), `"total":1`)

	f.reliabErr = domrepo.ErrNotFound
	assert.Equal(t, http.StatusNotFound, call(s, http.MethodGet, "/api/reliability?module_id=ghost", "").Code)
	f.reliabErr = errors.New("redis: connection refused")
	assert.Equal(t, http.StatusServiceUnavailable, call(s, http.MethodGet, "/api/reliability", "").Code)
}

func TestOutcomesRequireTokenWhenGuarded(t *testing.T) {
	f := &fakeEngine{}
	auth := middleware.NewTokenAuth("s3cret", "signalfusion")
	s := newServer(f, middleware.RequireToken(auth))
	body := `{"outcomes":[{"module_id":"technical","success":true,"return":0.01,"closed_at":"2025-06-01T12:00:00Z"}]}`

	assert.Equal(t, http.StatusUnauthorized, call(s, http.MethodPost, "/api/outcomes", body).Code)
	assert.Empty(t, f.recorded)

	tok, err := auth.Issue("desk", time.Minute)
	require.NoError(t, err)
	rec := call(s, http.MethodPost, "/api/outcomes", body, echo.HeaderAuthorization, "Bearer "+tok)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Len(t, f.recorded, 1)
	assert.Equal(t, "technical", f.recorded[0].ModuleID)

	rec = call(s, http.MethodPost, "/api/outcomes", `{"outcomes":[]}`, echo.HeaderAuthorization, "Bearer "+tok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusOK, call(s, http.MethodGet, "/api/thresholds", "").Code, "reads stay open")
}

func TestOutcomesPartialFailureReportsAppliedCount(t *testing.T) {
	f := &fakeEngine{recordErr: errors.New("redis: i/o timeout"), savedFirst: 1}
	s := newServer(f, nil)
	body := `{"outcomes":[
		{"decision_id":"d-1","module_id":"technical","success":true,"return":0.01},
		{"decision_id":"d-1","module_id":"pattern","success":false,"return":-0.01},
		{"decision_id":"d-1","module_id":"news","success":true,"return":0.02}]}`

	rec := call(s, http.MethodPost, "/api/outcomes", body)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp struct {
		Data []struct {
			Code   string         `json:"code"`
			Params map[string]int `json:"params"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "ERR_UNAVAILABLE", resp.Data[0].Code)
	assert.Equal(t, 1, resp.Data[0].Params["applied"])
	assert.Equal(t, 3, resp.Data[0].Params["total"])
	assert.Len(t, f.recorded, 1)
}

type barStore struct{ bars []models.Candle }

func (s barStore) GetLatestNCandles(context.Context, string, int, domrepo.Timeframe) ([]models.Candle, error) {
	return s.bars, nil
}

func TestCandlesSinceFiltersOlderBars(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	store := barStore{}
	for i := 0; i < 4; i++ {
		store.bars = append(store.bars, models.Candle{Bucket: t0.Add(time.Duration(i) * time.Hour), Symbol: "EURUSD", Close: 1.1})
	}
	h := NewDecisionsHandler(xlogger.NewNop(), &fakeEngine{}, &fakeEngine{}, usecase.NewCandlesUseCase(store), nil)
	s := xhttp.NewServer(h, xlogger.NewNop(), xhttp.WithMetrics("/metrics", prometheus.NewRegistry()))

	rec := call(s, http.MethodGet, "/api/candles?pair=EURUSD&since=2025-06-01T02:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res usecase.GetCandlesResult
	decode(t, rec, &res)
	require.Equal(t, 2, res.Count)
	assert.True(t, res.Candles[0].Bucket.Equal(t0.Add(2*time.Hour)))

	rec = call(s, http.MethodGet, "/api/candles?pair=EURUSD&since="+strconv.FormatInt(t0.Add(3*time.Hour).Unix(), 10), "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &res)
	assert.Equal(t, 1, res.Count)

	rec = call(s, http.MethodGet, "/api/candles?pair=EURUSD", "")
	decode(t, rec, &res)
	assert.Equal(t, 4, res.Count)

	rec = call(s, http.MethodGet, "/api/candles?pair=EURUSD&since=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"since"`)
}
