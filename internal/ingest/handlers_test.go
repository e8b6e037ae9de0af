package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/holdings-ingest/internal/types"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func setupRouter(h *GinHandlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/healthz", h.HealthHandler())
	r.GET("/api/v1/filings/:accession", h.GetFilingHandler())
	r.POST("/api/v1/internal/watchlist/reload", h.ReloadWatchListHandler())
	r.GET("/api/v1/internal/status", h.StatusHandler())
	return r
}

func serve(t *testing.T, r *gin.Engine, method, path string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)

	var body envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestGetFilingHandler(t *testing.T) {
	f := setupIngestTest(t, "1067983")
	desc := filingDesc("0001067983-24-000001", "1067983")
	f.feed.add(desc, attachment("infotable.xml", infoTableDoc("Acme Corp", "000000000", "SH")))
	require.NoError(t, f.processor.RunCycle(context.Background()))

	r := setupRouter(NewGinHandlers(f.processor, f.store))

	w, body := serve(t, r, http.MethodGet, "/api/v1/filings/0001067983-24-000001")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, body.Success)

	var filing types.FilingResponse
	require.NoError(t, json.Unmarshal(body.Data, &filing))
	assert.Equal(t, "0001067983", filing.CIK)
	require.Len(t, filing.Holdings, 1)
	assert.Equal(t, "000000000", filing.Holdings[0].IssuerCUSIP)

	w, body = serve(t, r, http.MethodGet, "/api/v1/filings/0000000000-24-000000")
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
}

func TestHealthHandler(t *testing.T) {
	f := setupIngestTest(t, "1067983")
	r := setupRouter(NewGinHandlers(f.processor, f.store))

	w, body := serve(t, r, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, body.Success)
}

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }
func (downStore) GetFilingResponse(context.Context, string) (*types.FilingResponse, error) {
	return nil, errors.New("connection refused")
}

func TestHealthHandler_StoreDown(t *testing.T) {
	f := setupIngestTest(t, "1067983")
	r := setupRouter(NewGinHandlers(f.processor, downStore{}))

	w, body := serve(t, r, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.False(t, body.Success)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(body.Data, &health))
	assert.Equal(t, "degraded", health.Status)

	w, _ = serve(t, r, http.MethodGet, "/api/v1/filings/0001067983-24-000001")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestReloadAndStatusHandlers(t *testing.T) {
	f := setupIngestTest(t, "1067983")
	r := setupRouter(NewGinHandlers(f.processor, f.store))

	f.watch.set("1067983", "1364742", "102909")
	w, body := serve(t, r, http.MethodPost, "/api/v1/internal/watchlist/reload")
	require.Equal(t, http.StatusCreated, w.Code)

	var reload ReloadResponse
	require.NoError(t, json.Unmarshal(body.Data, &reload))
	assert.True(t, reload.Changed)
	assert.Equal(t, 3, reload.WatchListSize)

	f.watch.err = errors.New("parse watch list: line 2: invalid cik")
	w, _ = serve(t, r, http.MethodPost, "/api/v1/internal/watchlist/reload")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = serve(t, r, http.MethodGet, "/api/v1/internal/status")
	require.Equal(t, http.StatusOK, w.Code)
	var status types.StatusResponse
	require.NoError(t, json.Unmarshal(body.Data, &status))
	assert.Equal(t, 3, status.WatchListSize)
	assert.Zero(t, status.Cycles)
}
