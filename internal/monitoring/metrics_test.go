package monitoring

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geobeat/gdi-cli/internal/geoerr"
)

func TestMetrics_ObserveAnalysis(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	m.ObserveAnalysis("ethereum", 1500*time.Millisecond, nil)
	m.ObserveAnalysis("ethereum", time.Second, geoerr.InsufficientDataf("morans_i", "no neighbours"))
	m.ObserveAnalysis("celo", time.Second, errors.New("boom"))

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Analyses.WithLabelValues("ethereum", OutcomeSuccess)), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Analyses.WithLabelValues("ethereum", "insufficient_data")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Analyses.WithLabelValues("celo", "unknown")), 1e-9)
	assert.Equal(t, 2, testutil.CollectAndCount(m.AnalysisDuration, "gdi_analysis_duration_seconds"))
}

func TestMetrics_SetScoresAndHTTP(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	m.SetScores("ethereum", 61.2, 66.5, 55.6, 42.0)
	m.ObserveHTTP("/v1/runs", http.StatusOK)
	m.ObserveHTTP("", http.StatusNotFound)

	assert.InDelta(t, 55.6, testutil.ToFloat64(m.LastScore.WithLabelValues("ethereum", "jdi")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/v1/runs", "200")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("unmatched", "404")), 1e-9)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `gdi_last_score{index="gdi",network="ethereum"} 61.2`)
}

func TestMetrics_RegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewMetrics(reg)
	require.NoError(t, err)
	second, err := NewMetrics(reg)
	require.NoError(t, err)

	first.ObserveHTTP("/health", http.StatusOK)
	assert.InDelta(t, 1.0, testutil.ToFloat64(second.HTTPRequests.WithLabelValues("/health", "200")), 1e-9)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAnalysis("ethereum", time.Second, nil)
		m.SetScores("ethereum", 1, 2, 3, 4)
		m.ObserveHTTP("/health", http.StatusOK)
		m.ObserveAlerts([]Alert{{Type: AlertGDIBelowFloor}})
	})
	assert.NotNil(t, m.Handler())
}
