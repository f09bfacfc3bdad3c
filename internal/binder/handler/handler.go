package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder/events"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder/service"
	apperrors "github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/logger"
)

const (
	defaultReportLimit = 20
	maxReportLimit     = 100
)

type Handler struct {
	svc        *service.Service
	aggregator *events.Aggregator
	maxBatch   int
	logger     *slog.Logger
}

// New creates a Handler. aggregator may be nil when event streaming is off.
func New(svc *service.Service, aggregator *events.Aggregator, maxBatch int) *Handler {
	return &Handler{
		svc:        svc,
		aggregator: aggregator,
		maxBatch:   maxBatch,
		logger:     slog.Default().With("component", "binder-handler"),
	}
}

// Routes registers every endpoint on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/binder/resolve", h.Resolve)
	mux.HandleFunc("POST /api/v1/binder/resolve", h.ResolveBatch)
	mux.HandleFunc("GET /api/v1/binder/reports", h.Reports)
	mux.HandleFunc("GET /api/v1/binder/reports/latest", h.LatestReport)
	mux.HandleFunc("GET /api/v1/binder/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	pidStr := r.URL.Query().Get("pid")
	if pidStr == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'pid' is required")
		return
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "pid must be an integer")
		return
	}

	res, cacheHit, err := h.svc.Resolve(ctx, pid, events.OriginHTTP)
	if err != nil {
		log.Warn("resolve rejected", "pid", pid, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	if cacheHit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	h.writeJSON(w, http.StatusOK, res)
}

type batchRequest struct {
	PIDs []int `json:"pids"`
}

func (h *Handler) ResolveBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req batchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.PIDs) == 0 {
		h.writeError(w, http.StatusBadRequest, "pids must not be empty")
		return
	}
	if h.maxBatch > 0 && len(req.PIDs) > h.maxBatch {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d pids per request", h.maxBatch))
		return
	}

	results, err := h.svc.ResolveMany(ctx, req.PIDs, events.OriginHTTP)
	if err != nil {
		logger.FromContext(ctx).Warn("batch resolve rejected", "pids", req.PIDs, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, results)
}

func (h *Handler) Reports(w http.ResponseWriter, r *http.Request) {
	reports := h.svc.Reports()
	if reports == nil {
		h.writeError(w, http.StatusServiceUnavailable, apperrors.ErrStoreUnavailable.Error())
		return
	}

	q := r.URL.Query()
	pid := 0
	if s := q.Get("pid"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "pid must be a positive integer")
			return
		}
		pid = parsed
	}
	limit := defaultReportLimit
	if s := q.Get("limit"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxReportLimit)
	}

	list, err := reports.List(r.Context(), pid, limit)
	if err != nil {
		h.logger.Error("listing reports failed", "pid", pid, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "listing reports failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"pid":     pid,
		"count":   len(list),
		"reports": list,
	})
}

// LatestReport serves the newest stored report targeting the pid query
// parameter.
func (h *Handler) LatestReport(w http.ResponseWriter, r *http.Request) {
	reports := h.svc.Reports()
	if reports == nil {
		h.writeError(w, http.StatusServiceUnavailable, apperrors.ErrStoreUnavailable.Error())
		return
	}
	pid, err := strconv.Atoi(r.URL.Query().Get("pid"))
	if err != nil || pid < 1 {
		h.writeError(w, http.StatusBadRequest, "pid must be a positive integer")
		return
	}

	res, err := reports.Latest(r.Context(), pid)
	if err != nil {
		h.logger.Error("loading latest report failed", "pid", pid, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "loading latest report failed")
		return
	}
	if res == nil {
		h.writeError(w, http.StatusNotFound, fmt.Sprintf("no report for pid %d", pid))
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.aggregator == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.aggregator.Stats())
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	c := h.svc.Cache()
	if c == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := c.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	c := h.svc.Cache()
	if c == nil {
		h.writeError(w, http.StatusServiceUnavailable, apperrors.ErrCacheDisabled.Error())
		return
	}

	if err := c.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
