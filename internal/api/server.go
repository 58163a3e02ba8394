// Package api serves analyses and the run archive over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/geobeat/gdi-cli/internal/analysis"
	"github.com/geobeat/gdi-cli/internal/config"
	"github.com/geobeat/gdi-cli/internal/monitoring"
	"github.com/geobeat/gdi-cli/internal/store"
)

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	store    store.Store
	metrics  *monitoring.Metrics
	cfg      config.ServerConfig
	defaults analysis.Options
	limiter  *rate.Limiter
}

// Request ceilings applied when the configuration leaves a limit at zero.
const (
	defaultMaxPermutations  = 9999
	defaultMaxThresholdKm   = 5000
	defaultMaxNeighborLinks = 10_000_000
)

// NewServer creates a Server. st and metrics may be nil: without a store runs
// are not archived and the archive routes answer 503.
func NewServer(st store.Store, metrics *monitoring.Metrics, cfg config.ServerConfig, defaults analysis.Options) *Server {
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	defaults.Limits = requestLimits(cfg)
	return &Server{
		store:    st,
		metrics:  metrics,
		cfg:      cfg,
		defaults: defaults,
		limiter:  limiter,
	}
}

func requestLimits(cfg config.ServerConfig) analysis.Limits {
	l := analysis.Limits{
		MaxPermutations:  cfg.MaxPermutations,
		MaxThresholdKm:   cfg.MaxThresholdKm,
		MaxNeighborLinks: cfg.MaxNeighborLinks,
	}
	if l.MaxPermutations <= 0 {
		l.MaxPermutations = defaultMaxPermutations
	}
	if l.MaxThresholdKm <= 0 {
		l.MaxThresholdKm = defaultMaxThresholdKm
	}
	if l.MaxNeighborLinks <= 0 {
		l.MaxNeighborLinks = defaultMaxNeighborLinks
	}
	return l
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
	r.Use(s.instrument)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/networks", s.handleNetworks)
		r.Get("/networks/{network}/history", s.handleHistory)
	})
	return r
}

// rateLimit rejects requests beyond the configured token bucket with 429.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// instrument counts requests by route pattern and status code.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := ""
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		s.metrics.ObserveHTTP(route, code)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
