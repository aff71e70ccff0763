// Package api is the operational HTTP surface of the digest service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/usecase"
)

// Service is the part of the pipeline exposed over HTTP.
type Service interface {
	Health(ctx context.Context) domain.Health
	Statistics(ctx context.Context) domain.Statistics
	Run(ctx context.Context, limit int, groupID string) ([]domain.DigestResult, error)
	CleanupOldArticles(ctx context.Context, days int) (int64, error)
}

// Handler serves health, statistics, manual runs and cleanup.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// NewRouter builds the chi router. metrics may be nil.
func NewRouter(service Service, metrics http.Handler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{service: service, logger: logger.With("component", "api")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)
	r.Post("/runs", h.Run)
	r.Post("/cleanup", h.Cleanup)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

type runResponse struct {
	Count   int                   `json:"count"`
	Results []domain.DigestResult `json:"results"`
}

type cleanupResponse struct {
	Deleted int64 `json:"deleted"`
}

// Health answers 200 when every collaborator is ready and 503 otherwise.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	health := h.service.Health(r.Context())
	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

// Stats returns process and store counters.
// GET /stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Statistics(r.Context()))
}

// Run triggers a pipeline pass, optionally scoped by ?group= and bounded by ?limit=.
// POST /runs
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r, "limit")
	if !ok {
		return
	}
	group := r.URL.Query().Get("group")

	results, err := h.service.Run(r.Context(), limit, group)
	if err != nil {
		h.fail(w, "manual run", err)
		return
	}
	if results == nil {
		results = []domain.DigestResult{}
	}
	writeJSON(w, http.StatusOK, runResponse{Count: len(results), Results: results})
}

// Cleanup deletes rows older than ?days= (retention window when absent).
// POST /cleanup
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	days, ok := intParam(w, r, "days")
	if !ok {
		return
	}
	deleted, err := h.service.CleanupOldArticles(r.Context(), days)
	if err != nil {
		h.fail(w, "cleanup", err)
		return
	}
	writeJSON(w, http.StatusOK, cleanupResponse{Deleted: deleted})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, usecase.ErrNotInitialized) {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	h.logger.Error(op+" failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid " + name})
		return 0, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
