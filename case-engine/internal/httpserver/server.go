package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ILLUVRSE/Venture/case-engine/internal/config"
	"github.com/ILLUVRSE/Venture/case-engine/internal/pipeline"
	"github.com/ILLUVRSE/Venture/case-engine/internal/review"
	"github.com/ILLUVRSE/Venture/case-engine/internal/spi"
	"github.com/ILLUVRSE/Venture/case-engine/internal/store"
)

type Server struct {
	cfg     config.Config
	worker  *pipeline.Worker
	reviews *review.Service
	store   store.Store
	logger  *zap.SugaredLogger
}

func New(cfg config.Config, worker *pipeline.Worker, reviews *review.Service, st store.Store, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Server{cfg: cfg, worker: worker, reviews: reviews, store: st, logger: logger}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/cases", func(r chi.Router) {
		r.Post("/", s.handleCreateCase)
		r.Get("/", s.handleListCases)
		r.Get("/{id}", s.handleGetCase)
		r.Post("/{id}/review", s.handleReview)
	})
	r.Post("/spi/compute", s.handleComputeSPI)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := map[string]interface{}{
		"ok":      true,
		"time":    time.Now().UTC(),
		"store":   s.cfg.Store,
		"pending": s.worker.Pending(),
	}
	if err := s.store.Ping(ctx); err != nil {
		status["ok"] = false
		status["db"] = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleCreateCase(w http.ResponseWriter, r *http.Request) {
	var payload json.RawMessage
	if err := s.decodeJSON(w, r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := s.worker.Submit(r.Context(), payload)
	if err != nil {
		s.logger.Errorw("create case", "error", err)
		respondError(w, http.StatusInternalServerError, "could not create case")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"caseId": c.ID,
		"status": c.Status,
	})
}

func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	cases, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Errorw("list cases", "error", err)
		respondError(w, http.StatusInternalServerError, "could not list cases")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"cases": cases})
}

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	id, ok := caseID(w, r)
	if !ok {
		return
	}
	c, err := s.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "case not found")
		return
	}
	if err != nil {
		s.logger.Errorw("get case", "caseId", id, "error", err)
		respondError(w, http.StatusInternalServerError, "could not load case")
		return
	}
	respondJSON(w, http.StatusOK, c)
}

type reviewRequest struct {
	Decision string `json:"decision"`
	Notes    string `json:"notes"`
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	id, ok := caseID(w, r)
	if !ok {
		return
	}
	var req reviewRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := s.reviews.ReviewCase(r.Context(), id, req.Decision, req.Notes)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, c)
	case errors.Is(err, review.ErrInvalidDecision):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "case not found")
	case errors.Is(err, review.ErrNotTerminal):
		respondError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Errorw("review case", "caseId", id, "error", err)
		respondError(w, http.StatusInternalServerError, "could not record review")
	}
}

type spiRequest struct {
	Scores  map[string]interface{} `json:"scores"`
	Weights map[string]interface{} `json:"weights"`
}

func (s *Server) handleComputeSPI(w http.ResponseWriter, r *http.Request) {
	var req spiRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, spi.Compute(spi.Inputs{Scores: req.Scores, Weights: req.Weights}))
}

func caseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid case id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debugw("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"requestId", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if s.cfg.MaxPayloadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, int64(s.cfg.MaxPayloadBytes))
	}
	return json.NewDecoder(r.Body).Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
