package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"

	"taxitrend/internal/config"
	"taxitrend/internal/domain"
	"taxitrend/internal/pipeline"
	"taxitrend/internal/store"
)

// Runner runs the full pipeline once.
type Runner interface {
	Run(ctx context.Context) (pipeline.Summary, error)
}

// History reads the run ledger.
type History interface {
	ListStages(ctx context.Context, limit int) ([]store.StageRecord, error)
	ListFetches(ctx context.Context, period string) ([]store.FetchRecord, error)
}

// Server serves the pipeline trigger and summary API.
type Server struct {
	runner  Runner
	history History // nil disables /api/runs and /api/fetches
	layout  store.Layout
	agg     config.Aggregation
	log     *slog.Logger

	running atomic.Bool

	// OnRunState, when set, is called with true before a triggered run and
	// with false after it.
	OnRunState func(running bool)

	// MetricsHandler, when set, is served at /metrics.
	MetricsHandler http.Handler
}

// NewServer creates a new API server. history may be nil.
func NewServer(runner Runner, history History, layout store.Layout, agg config.Aggregation, log *slog.Logger) *Server {
	return &Server{
		runner:  runner,
		history: history,
		layout:  layout,
		agg:     agg,
		log:     log,
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /analysis", s.handleAnalysis)
	mux.HandleFunc("GET /api/summary/{type}", s.handleSummary)
	mux.HandleFunc("GET /api/runs", s.handleRuns)
	mux.HandleFunc("GET /api/fetches", s.handleFetches)
	if s.MetricsHandler != nil {
		mux.Handle("GET /metrics", s.MetricsHandler)
	}
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

// Running reports whether a triggered run is in progress.
func (s *Server) Running() bool {
	return s.running.Load()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/api/summary/"+string(domain.MonthlyAverage), http.StatusFound)
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	if !s.running.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "analysis already running")
		return
	}
	defer s.running.Store(false)

	if s.OnRunState != nil {
		s.OnRunState(true)
		defer s.OnRunState(false)
	}

	s.log.Info("analysis triggered", "remote", r.RemoteAddr)
	sum, err := s.runner.Run(r.Context())
	if err != nil {
		s.log.Error("analysis failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, toAnalysisJSON(sum))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	t, err := domain.ParseAnalysisType(r.PathValue("type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	path := s.layout.SummaryPath(s.agg.SummaryFileName(t))
	if !store.Exists(path) {
		writeError(w, http.StatusNotFound, "summary not computed yet")
		return
	}

	rows, err := store.ReadSummary(path)
	if err != nil {
		s.log.Error("reading summary", "path", path, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read summary")
		return
	}
	writeJSON(w, toSummaryJSON(t, rows))
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "run ledger not configured")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	recs, err := s.history.ListStages(r.Context(), limit)
	if err != nil {
		s.log.Error("listing stages", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	out := make([]StageJSON, len(recs))
	for i, rec := range recs {
		out[i] = toStageJSON(rec)
	}
	writeJSON(w, out)
}

func (s *Server) handleFetches(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "run ledger not configured")
		return
	}

	p, err := domain.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "period must be YYYY-MM")
		return
	}

	recs, err := s.history.ListFetches(r.Context(), p.String())
	if err != nil {
		s.log.Error("listing fetches", "period", p.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list fetches")
		return
	}
	out := make([]FetchJSON, len(recs))
	for i, rec := range recs {
		out[i] = toFetchJSON(rec)
	}
	writeJSON(w, out)
}
