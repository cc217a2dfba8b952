package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/snapfulfil/order-router/internal/core/domain"
	"github.com/snapfulfil/order-router/internal/core/service"
	"github.com/snapfulfil/order-router/internal/port"
)

type HTTPHandler struct {
	processor *service.QueueProcessor
	routing   *service.RoutingService
	partners  []domain.Partner
	pingStore func(ctx context.Context) error
	logger    *zap.Logger
}

type enqueueResponse struct {
	JobID string `json:"job_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHTTPHandler(
	processor *service.QueueProcessor,
	routing *service.RoutingService,
	partners []domain.Partner,
	pingStore func(ctx context.Context) error,
	logger *zap.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		processor: processor,
		routing:   routing,
		partners:  partners,
		pingStore: pingStore,
		logger:    logger,
	}
}

// Register wires the handler's routes onto the mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orders", h.AddOrder)
	mux.HandleFunc("GET /api/jobs/{id}", h.JobDetails)
	mux.HandleFunc("DELETE /api/jobs/{id}", h.RemoveJob)
	mux.HandleFunc("GET /api/queue/stats", h.QueueStats)
	mux.HandleFunc("GET /api/volumes", h.Volumes)
	mux.HandleFunc("GET /health", h.HealthCheck)
}

func (h *HTTPHandler) AddOrder(w http.ResponseWriter, r *http.Request) {
	var order domain.Order
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	jobID, err := h.processor.AddOrder(r.Context(), order)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNoLineItems), errors.Is(err, domain.ErrEmptySKU):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		case errors.Is(err, service.ErrQueueFull), errors.Is(err, service.ErrClosed):
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		default:
			h.logger.Error("enqueue failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		return
	}

	writeJSON(w, http.StatusAccepted, enqueueResponse{JobID: jobID})
}

func (h *HTTPHandler) JobDetails(w http.ResponseWriter, r *http.Request) {
	details, err := h.processor.GetJobDetails(r.Context(), r.PathValue("id"))
	if errors.Is(err, port.ErrJobNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "job not found"})
		return
	}
	if err != nil {
		h.logger.Error("job lookup failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (h *HTTPHandler) RemoveJob(w http.ResponseWriter, r *http.Request) {
	err := h.processor.RemoveJob(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, port.ErrJobNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "job not found"})
	case errors.Is(err, port.ErrJobNotIdle):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case err != nil:
		h.logger.Error("job removal failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *HTTPHandler) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.processor.GetQueueStats(r.Context())
	if err != nil {
		// Monitoring callers get a structured error body, never a bare
		// failure.
		h.logger.Error("queue stats failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *HTTPHandler) Volumes(w http.ResponseWriter, r *http.Request) {
	volumes := make(map[string]int64, len(h.partners))
	for _, partner := range h.partners {
		v, err := h.routing.CurrentVolume(r.Context(), partner)
		if err != nil {
			h.logger.Error("volume read failed", zap.String("partner", string(partner)), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
		volumes[string(partner)] = v
	}
	writeJSON(w, http.StatusOK, volumes)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.pingStore(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"redis":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"redis":  "connected",
		"queue":  "operational",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
