package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"

	"github.com/geobeat/gdi-cli/internal/geoerr"
	"github.com/geobeat/gdi-cli/internal/model"
)

// OutcomeSuccess labels analyses that produced a report. Failed analyses are
// labelled with their error kind.
const OutcomeSuccess = "success"

// Metrics bundles the Prometheus instruments of the engine and its API. All
// methods are safe on a nil receiver so callers may run without metrics.
type Metrics struct {
	gatherer prometheus.Gatherer

	Analyses         *prometheus.CounterVec
	AnalysisDuration *prometheus.HistogramVec
	LastScore        *prometheus.GaugeVec
	HTTPRequests     *prometheus.CounterVec
	Alerts           *prometheus.CounterVec
}

// NewMetrics registers the instruments against reg, defaulting to the global
// registry when nil. Registering twice against the same registry returns the
// already registered collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	analyses, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gdi_analyses_total",
		Help: "Analyses run, labelled by network and outcome (success or error kind).",
	}, []string{"network", "outcome"}), "gdi_analyses_total")
	if err != nil {
		return nil, err
	}

	duration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gdi_analysis_duration_seconds",
		Help:    "Wall time of one analysis in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"network"}), "gdi_analysis_duration_seconds")
	if err != nil {
		return nil, err
	}

	lastScore, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gdi_last_score",
		Help: "Most recent composite score per network and index (gdi, pdi, jdi, ihi).",
	}, []string{"network", "index"}), "gdi_last_score")
	if err != nil {
		return nil, err
	}

	requests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gdi_http_requests_total",
		Help: "HTTP requests handled, labelled by route pattern and status code.",
	}, []string{"route", "code"}), "gdi_http_requests_total")
	if err != nil {
		return nil, err
	}

	alerts, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gdi_alerts_total",
		Help: "Alerts raised by the background checker, labelled by type.",
	}, []string{"type"}), "gdi_alerts_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		gatherer:         gatherer,
		Analyses:         analyses,
		AnalysisDuration: duration,
		LastScore:        lastScore,
		HTTPRequests:     requests,
		Alerts:           alerts,
	}, nil
}

// ObserveAnalysis records one finished analysis. A nil err counts as success.
func (m *Metrics) ObserveAnalysis(network string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = geoerr.KindOf(err).String()
	}
	m.Analyses.WithLabelValues(network, outcome).Inc()
	m.AnalysisDuration.WithLabelValues(network).Observe(d.Seconds())
}

// SetScores publishes the composite scores of a network.
func (m *Metrics) SetScores(network string, gdi, pdi, jdi, ihi float64) {
	if m == nil {
		return
	}
	m.LastScore.WithLabelValues(network, model.IndexGDI).Set(gdi)
	m.LastScore.WithLabelValues(network, model.IndexPDI).Set(pdi)
	m.LastScore.WithLabelValues(network, model.IndexJDI).Set(jdi)
	m.LastScore.WithLabelValues(network, model.IndexIHI).Set(ihi)
}

// ObserveHTTP counts one handled request.
func (m *Metrics) ObserveHTTP(route string, code int) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// ObserveAlerts counts raised alerts by type.
func (m *Metrics) ObserveAlerts(alerts []Alert) {
	if m == nil {
		return
	}
	for _, a := range alerts {
		m.Alerts.WithLabelValues(string(a.Type)).Inc()
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if eris.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			return c, eris.Errorf("monitoring: collector %s already registered with incompatible type", name)
		}
		return c, eris.Wrapf(err, "monitoring: register %s", name)
	}
	return c, nil
}
