package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/geobeat/gdi-cli/internal/analysis"
	"github.com/geobeat/gdi-cli/internal/geoerr"
	"github.com/geobeat/gdi-cli/internal/model"
	"github.com/geobeat/gdi-cli/internal/report"
	"github.com/geobeat/gdi-cli/internal/store"
)

const maxBodyBytes = 64 << 20

type analyzeRequest struct {
	Network string        `json:"network"`
	Points  []model.Point `json:"points"`
	Options *optionsInput `json:"options,omitempty"`
}

// optionsInput overrides individual analysis defaults.
type optionsInput struct {
	ThresholdKm   *float64 `json:"threshold_km"`
	Resolution    *int     `json:"resolution"`
	Permutations  *int     `json:"permutations"`
	Seed          *uint64  `json:"seed"`
	SkipComposite *bool    `json:"skip_composite"`
}

func (in *optionsInput) apply(opts analysis.Options) analysis.Options {
	if in == nil {
		return opts
	}
	if in.ThresholdKm != nil {
		opts.ThresholdKm = *in.ThresholdKm
	}
	if in.Resolution != nil {
		opts.Resolution = *in.Resolution
	}
	if in.Permutations != nil {
		opts.Permutations = *in.Permutations
	}
	if in.Seed != nil {
		opts.Seed = *in.Seed
	}
	if in.SkipComposite != nil {
		opts.SkipComposite = *in.SkipComposite
	}
	return opts
}

type analyzeResponse struct {
	RunID  string           `json:"run_id,omitempty"`
	Label  string           `json:"label"`
	Report *analysis.Report `json:"report"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	RunID string `json:"run_id,omitempty"`
}

// handleHealth reports liveness and, when a store is configured, whether it
// answers.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		zap.L().Warn("api: store ping failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "store": "unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "store": "ok"})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	network := strings.ToLower(strings.TrimSpace(req.Network))
	if network == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "network is required")
		return
	}
	if s.cfg.MaxPoints > 0 && len(req.Points) > s.cfg.MaxPoints {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large",
			"at most "+strconv.Itoa(s.cfg.MaxPoints)+" points per request")
		return
	}

	opts := req.Options.apply(s.defaults)
	if err := opts.Validate(); err != nil {
		writeAnalysisError(w, err, "")
		return
	}
	ps, err := model.NewPointSet(network, req.Points)
	if err != nil {
		writeAnalysisError(w, err, "")
		return
	}

	start := time.Now()
	rep, err := analysis.Analyze(r.Context(), ps, opts)
	s.metrics.ObserveAnalysis(network, time.Since(start), err)
	if errors.Is(err, context.Canceled) {
		return
	}

	runID, label := s.archive(r.Context(), ps, opts, rep, err)
	if err != nil {
		writeAnalysisError(w, err, runID)
		return
	}
	if c := rep.Composite; c != nil {
		s.metrics.SetScores(network, c.GDI, c.PDI.Score, c.JDI.Score, c.IHI.Score)
	}
	writeJSON(w, http.StatusOK, analyzeResponse{RunID: runID, Label: label, Report: rep})
}

// archive stores the run when a store is configured. Archive failures are
// logged and do not fail the request.
func (s *Server) archive(ctx context.Context, ps model.PointSet, opts analysis.Options, rep *analysis.Report, runErr error) (string, string) {
	run, err := report.NewRun(ps, opts, rep, runErr)
	if err != nil {
		zap.L().Error("api: build run record", zap.Error(err))
		return "", ""
	}
	if s.store == nil {
		return "", run.Label
	}
	saved, err := s.store.CreateRun(ctx, run)
	if err != nil {
		zap.L().Error("api: archive run", zap.String("network", ps.Network), zap.Error(err))
		return "", run.Label
	}
	return saved.ID, saved.Label
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	q := r.URL.Query()
	filter := store.RunFilter{
		Network: strings.ToLower(q.Get("network")),
		Status:  model.RunStatus(q.Get("status")),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "offset must be a non-negative integer")
		return
	}
	if since := q.Get("since"); since != "" {
		if filter.CreatedAfter, err = time.Parse(time.RFC3339, since); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "since must be an RFC 3339 timestamp")
			return
		}
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		writeInternal(w, "list runs", err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", "run not found")
			return
		}
		writeInternal(w, "get run", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleNetworks returns the dashboard record of every network's latest
// scored run, with the trend against the run before it.
func (s *Server) handleNetworks(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	ctx := r.Context()
	scores, err := s.store.LatestScores(ctx)
	if err != nil {
		writeInternal(w, "latest scores", err)
		return
	}

	records := make([]report.NetworkRecord, 0, len(scores))
	for _, sc := range scores {
		run, err := s.store.GetRun(ctx, sc.RunID)
		if err != nil {
			writeInternal(w, "get run", err)
			return
		}
		rep, err := report.DecodeReport(run)
		if err != nil {
			writeInternal(w, "decode report", err)
			return
		}
		hist, err := s.store.ListMetricHistory(ctx, sc.Network, model.IndexGDI, 2)
		if err != nil {
			writeInternal(w, "metric history", err)
			return
		}
		var previous *float64
		if len(hist) == 2 && hist[1].RunID == sc.RunID {
			previous = &hist[0].Value
		}
		rec, err := report.NewNetworkRecord(rep, previous)
		if err != nil {
			writeInternal(w, "network record", err)
			return
		}
		records = append(records, rec)
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	metric := r.URL.Query().Get("metric")
	if metric == "" {
		metric = model.IndexGDI
	}
	limit, err := intParam(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "limit must be a non-negative integer")
		return
	}

	points, err := s.store.ListMetricHistory(r.Context(), strings.ToLower(chi.URLParam(r, "network")), metric, limit)
	if err != nil {
		writeInternal(w, "metric history", err)
		return
	}
	if points == nil {
		points = []store.MetricPoint{}
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "run archive is not configured")
		return false
	}
	return true
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid integer")
	}
	return n, nil
}

// statusFor maps an engine error to an HTTP status. Input-driven failures are
// 422; projection and unclassified failures are 500.
func statusFor(err error) int {
	switch geoerr.KindOf(err) {
	case geoerr.KindValidation, geoerr.KindInsufficientData, geoerr.KindDegenerateGeometry:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeAnalysisError(w http.ResponseWriter, err error, runID string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: analysis failed", zap.Error(err))
	}
	writeJSON(w, status, errorResponse{
		Error: err.Error(),
		Kind:  geoerr.KindOf(err).String(),
		RunID: runID,
	})
}

func writeInternal(w http.ResponseWriter, action string, err error) {
	zap.L().Error("api: "+action, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal", action+" failed")
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}
