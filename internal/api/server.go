package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MikeSquared-Agency/galaxy/internal/galaxy"
	"github.com/MikeSquared-Agency/galaxy/internal/processor"
	"github.com/MikeSquared-Agency/galaxy/internal/profile"
	"github.com/MikeSquared-Agency/galaxy/internal/reply"
	"github.com/MikeSquared-Agency/galaxy/internal/store"
	"github.com/MikeSquared-Agency/galaxy/internal/tracker"
)

// Pipelines is the set of operations served over HTTP.
type Pipelines interface {
	GenerateReply(ctx context.Context, req processor.ReplyRequest) (*reply.Result, error)
	SummarizeUser(ctx context.Context, req processor.SummaryRequest) (profile.Profile, error)
	GenerateEmbedding(ctx context.Context, req processor.EmbeddingRequest) (profile.Embedding, error)
	AnalyzeTrending(ctx context.Context, req processor.TrendingRequest) (*galaxy.Result, error)
	TopicMap(ctx context.Context, req processor.TopicMapRequest) (*galaxy.TopicMapResult, error)
}

// RunHistory is the persisted run log, covering runs that have left the
// in-memory tracker.
type RunHistory interface {
	GetRun(ctx context.Context, id uuid.UUID) (tracker.Run, error)
	RecentRuns(ctx context.Context, workflow string, limit int) ([]store.RunSummary, error)
	Ping(ctx context.Context) error
}

const maxBodyBytes = 4 << 20

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
)

type Server struct {
	router  *chi.Mux
	port    int
	http    *http.Server
	proc    Pipelines
	tracker *tracker.Tracker
	history RunHistory
	logger  *slog.Logger
}

// NewServer wires the pipeline routes at the root and again under /api.
// Pipeline routes require apiToken when it is set.
func NewServer(port int, apiToken string, proc Pipelines, tr *tracker.Tracker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:  router,
		port:    port,
		proc:    proc,
		tracker: tr,
		logger:  logger,
	}

	router.Get("/health", s.health)
	router.Handle("/metrics", promhttp.Handler())
	router.Group(func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		s.pipelineRoutes(r)
	})

	router.Route("/api", func(r chi.Router) {
		r.Get("/v1/galaxy/status", s.status)
		r.Group(func(r chi.Router) {
			r.Use(BearerAuthMiddleware(apiToken))
			r.Get("/v1/runs", s.listRuns)
			r.Get("/v1/runs/{id}", s.getRun)
			s.pipelineRoutes(r)
		})
	})

	return s
}

// SetHistory enables run lookups beyond the tracker's retention window.
func (s *Server) SetHistory(h RunHistory) {
	s.history = h
}

func (s *Server) pipelineRoutes(r chi.Router) {
	r.Post("/user-summary", s.userSummary)
	r.Post("/generate-reply", s.generateReply)
	r.Post("/generate-embedding", s.generateEmbedding)
	r.Post("/galaxy-trending", s.galaxyTrending)
	r.Post("/galaxy-topics", s.galaxyTopics)
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("API server starting", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	tracked := 0
	if s.tracker != nil {
		tracked = s.tracker.Len()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agent": "galaxy",
		"workflows": []string{
			reply.Workflow,
			profile.WorkflowSummary,
			profile.WorkflowEmbeddings,
			galaxy.WorkflowTrending,
			galaxy.WorkflowTopicMap,
		},
		"tracked_runs": tracked,
		"history":      s.historyStatus(r.Context()),
	})
}

func (s *Server) historyStatus(ctx context.Context) string {
	if s.history == nil {
		return "disabled"
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.history.Ping(ctx); err != nil {
		s.logger.Warn("run history unreachable", "error", err)
		return "unreachable"
	}
	return "ok"
}

// listRuns serves recent runs from the history, newest first.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "run history not configured"})
		return
	}

	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxRunLimit {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("limit must be between 1 and %d", maxRunLimit)})
			return
		}
		limit = n
	}

	runs, err := s.history.RecentRuns(r.Context(), r.URL.Query().Get("workflow"), limit)
	if err != nil {
		s.logger.Error("run history listing failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "run listing failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid run id"})
		return
	}

	if s.tracker != nil {
		if run, ok := s.tracker.Get(id); ok {
			writeJSON(w, http.StatusOK, run)
			return
		}
	}
	if s.history != nil {
		run, err := s.history.GetRun(r.Context(), id)
		if err == nil {
			writeJSON(w, http.StatusOK, run)
			return
		}
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("run history lookup failed", "run_id", id, "error", err)
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "run lookup failed"})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, errorBody{Error: "run not found"})
}

func (s *Server) userSummary(w http.ResponseWriter, r *http.Request) {
	var req processor.SummaryRequest
	if !s.decode(w, r, &req) {
		return
	}
	prof, err := s.proc.SummarizeUser(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prof)
}

func (s *Server) generateReply(w http.ResponseWriter, r *http.Request) {
	var req processor.ReplyRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.proc.GenerateReply(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) generateEmbedding(w http.ResponseWriter, r *http.Request) {
	var req processor.EmbeddingRequest
	if !s.decode(w, r, &req) {
		return
	}
	emb, err := s.proc.GenerateEmbedding(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, emb)
}

func (s *Server) galaxyTrending(w http.ResponseWriter, r *http.Request) {
	var req processor.TrendingRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.proc.AnalyzeTrending(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) galaxyTopics(w http.ResponseWriter, r *http.Request) {
	var req processor.TopicMapRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.proc.TopicMap(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("invalid JSON: %v", err)})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
