package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.TileFetched(time.Second)
	m.TileFailed()
	m.TileSkipped()
	m.FetchRetried()
	m.MosaicRun("success")
}

func TestMetricsExposed(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.TileFetched(120 * time.Millisecond)
	m.TileFetched(80 * time.Millisecond)
	m.TileSkipped()
	m.FetchRetried()
	m.MosaicRun("success")

	srv := NewServer("127.0.0.1:0", reg, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "tilemosaic_tiles_fetched_total 2")
	assert.Contains(t, body, "tilemosaic_tiles_skipped_total 1")
	assert.Contains(t, body, "tilemosaic_fetch_retries_total 1")
	assert.Contains(t, body, `tilemosaic_mosaic_runs_total{outcome="success"} 1`)
}

func TestHealthz(t *testing.T) {
	srv := NewServer("127.0.0.1:0", prometheus.NewRegistry(), nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"status":"ok"`))
}
