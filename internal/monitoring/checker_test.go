package monitoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geobeat/gdi-cli/internal/config"
	"github.com/geobeat/gdi-cli/internal/store"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	checker := NewChecker(&mockStore{}, nil, config.MonitoringConfig{
		CheckIntervalSecs:   1,
		LookbackWindowHours: 24,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	checker := NewChecker(&mockStore{}, nil, config.MonitoringConfig{})
	assert.Equal(t, defaultCheckInterval, checker.interval)
}

func TestChecker_CheckUpdatesMetrics(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	st := &mockStore{scores: []store.NetworkScore{
		{Network: "celo", GDI: 30, PDI: 35, JDI: 25, IHI: 20},
		{Network: "ethereum", GDI: 62, PDI: 66, JDI: 55, IHI: 42},
	}}
	cfg := config.MonitoringConfig{LookbackWindowHours: 24, FailureRateThreshold: 0.25, GDIFloor: 40}

	alerts, err := NewChecker(st, m, cfg).Check(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertGDIBelowFloor, alerts[0].Type)

	assert.InDelta(t, 62.0, testutil.ToFloat64(m.LastScore.WithLabelValues("ethereum", "gdi")), 1e-9)
	assert.InDelta(t, 20.0, testutil.ToFloat64(m.LastScore.WithLabelValues("celo", "ihi")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Alerts.WithLabelValues(string(AlertGDIBelowFloor))), 1e-9)
}

func TestChecker_CheckDeliversOnce(t *testing.T) {
	var posts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		posts.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	st := &mockStore{scores: []store.NetworkScore{{Network: "celo", GDI: 30}}}
	checker := NewChecker(st, nil, config.MonitoringConfig{GDIFloor: 40, WebhookURL: ts.URL})

	for range 3 {
		alerts, err := checker.Check(context.Background())
		require.NoError(t, err)
		assert.Len(t, alerts, 1)
	}
	assert.Equal(t, int32(1), posts.Load())
}

func TestChecker_CheckCollectError(t *testing.T) {
	checker := NewChecker(&mockStore{listErr: errors.New("db down")}, nil, config.MonitoringConfig{})

	_, err := checker.Check(context.Background())
	require.Error(t, err)
}
