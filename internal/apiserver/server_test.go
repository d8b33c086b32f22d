package apiserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellar-fee-tracker/insights-service/internal/config"
	"github.com/stellar-fee-tracker/insights-service/internal/history"
	"github.com/stellar-fee-tracker/insights-service/internal/horizon"
	"github.com/stellar-fee-tracker/insights-service/internal/insights"
	"github.com/stellar-fee-tracker/insights-service/internal/realtime"
	"github.com/stellar-fee-tracker/insights-service/internal/repository"
)

type stubFeeStatsFetcher struct {
	stats horizon.FeeStats
	err   error
	calls int
}

func (f *stubFeeStatsFetcher) FetchFeeStats(context.Context) (horizon.FeeStats, error) {
	f.calls++
	return f.stats, f.err
}

func newTestServer(t *testing.T, now time.Time) (*Server, *repository.MemoryStore, *stubFeeStatsFetcher) {
	t.Helper()
	cfg := &config.Config{
		Port:           "0",
		CacheTTL:       5 * time.Second,
		AllowedOrigins: []string{"*"},
		RequestTimeout: 5 * time.Second,
	}
	store := history.New(100)
	engine := insights.NewEngine(insights.DefaultEngineConfig())
	repo := repository.NewMemoryStore()
	fetcher := &stubFeeStatsFetcher{stats: horizon.FeeStats{LastLedgerBaseFee: 100, Min: 100, Max: 500, Avg: 200}}
	hub := realtime.NewHub(slog.Default())

	srv := New(cfg, store, engine, repo, fetcher, hub, nil, slog.Default(), WithNow(func() time.Time { return now }))
	return srv, repo, fetcher
}

func TestFeesCurrent_ReturnsUpstreamSnapshot(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	srv, _, fetcher := newTestServer(t, now)

	req := httptest.NewRequest("GET", "/fees/current", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `"base_fee":100`)
	assert.Equal(t, 1, fetcher.calls)
	assert.NotEmpty(t, rec.Header().Get("ETag"))
}

func TestFeesCurrent_CachesWithinTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	srv, _, fetcher := newTestServer(t, now)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/fees/current", nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		require.Equal(t, 200, rec.Code)
	}
	assert.Equal(t, 1, fetcher.calls)
}

func TestFeesCurrent_NotModifiedOnMatchingETag(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	srv, _, _ := newTestServer(t, now)

	req := httptest.NewRequest("GET", "/fees/current", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	etag := rec.Header().Get("ETag")

	req2 := httptest.NewRequest("GET", "/fees/current", nil)
	req2.Header.Set("If-None-Match", etag)
	rec2 := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec2, req2)

	assert.Equal(t, 304, rec2.Code)
}

func TestFeesHistory_UnknownWindowReturns400(t *testing.T) {
	srv, _, _ := newTestServer(t, time.Now())

	req := httptest.NewRequest("GET", "/fees/history?window=9d", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, 400, rec.Code)
}

func TestFeesHistory_WideWindowReportsAllRetainedSamples(t *testing.T) {
	// 20 samples over the last 20 minutes, window=24h should report
	// data_points=20 and a summary matching the full set.
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	srv, _, _ := newTestServer(t, now)

	for i := 0; i < 20; i++ {
		srv.store.Push(feesampleAt(int64(100+i), now.Add(-time.Duration(20-i)*time.Minute)))
	}

	req := httptest.NewRequest("GET", "/fees/history?window=24h", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `"window":"24h"`)
	assert.Contains(t, rec.Body.String(), `"data_points":20`)
	assert.Contains(t, rec.Body.String(), `"summary":{"min":100,"max":119,"avg":109.5,"p50":109.5`)
}

func TestAlertsConfig_CreateListUpdateDelete(t *testing.T) {
	srv, _, _ := newTestServer(t, time.Now())

	createReq := httptest.NewRequest("POST", "/alerts/config", jsonBody(`{"webhook_url":"https://example.com/hook","threshold":"Critical"}`))
	createReq.Header.Set("Content-Type", "application/json")
	createRec := httptest.NewRecorder()
	srv.Router().ServeHTTP(createRec, createReq)
	require.Equal(t, 201, createRec.Code)

	listReq := httptest.NewRequest("GET", "/alerts/config", nil)
	listRec := httptest.NewRecorder()
	srv.Router().ServeHTTP(listRec, listReq)
	assert.Equal(t, 200, listRec.Code)
	assert.Contains(t, listRec.Body.String(), "example.com/hook")

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))

	updateReq := httptest.NewRequest("PATCH", "/alerts/config/"+created.ID, jsonBody(`{"enabled":false}`))
	updateReq.Header.Set("Content-Type", "application/json")
	updateRec := httptest.NewRecorder()
	srv.Router().ServeHTTP(updateRec, updateReq)
	assert.Equal(t, 204, updateRec.Code)

	deleteReq := httptest.NewRequest("DELETE", "/alerts/config/"+created.ID, nil)
	deleteRec := httptest.NewRecorder()
	srv.Router().ServeHTTP(deleteRec, deleteReq)
	assert.Equal(t, 204, deleteRec.Code)
}

func TestAlertsConfig_RejectsSSRFWebhook(t *testing.T) {
	srv, _, _ := newTestServer(t, time.Now())

	req := httptest.NewRequest("POST", "/alerts/config", jsonBody(`{"webhook_url":"http://169.254.169.254/latest/meta-data"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, 400, rec.Code)
}

func TestAlertsConfig_RejectsBadThreshold(t *testing.T) {
	srv, _, _ := newTestServer(t, time.Now())

	req := httptest.NewRequest("POST", "/alerts/config", jsonBody(`{"webhook_url":"https://example.com/hook","threshold":"Severe"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, 400, rec.Code)
}

func TestAlertsConfig_DeleteMissingReturns404(t *testing.T) {
	srv, _, _ := newTestServer(t, time.Now())

	req := httptest.NewRequest("DELETE", "/alerts/config/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, 404, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t, time.Now())

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		assert.Equal(t, 200, rec.Code, path)
	}
}
