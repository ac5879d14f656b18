// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "astro-backend-llm/internal/common/errors"
	"astro-backend-llm/internal/common/logger"
	"astro-backend-llm/internal/common/metrics"
	"astro-backend-llm/internal/common/observability"
	"astro-backend-llm/internal/models"
)

const maxBodyBytes = 1 << 20

// ProjectGenerator produces validated project details for a prompt.
type ProjectGenerator interface {
	Generate(ctx context.Context, prompt string) (*models.ProjectDetails, error)
}

type Handlers struct {
	generator      ProjectGenerator
	errors         *apperrors.ErrorHandler
	obs            *observability.Observability
	requestTimeout time.Duration
	logger         logger.Logger
}

func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.DefaultResponse{Message: "service is running..."})
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.DefaultResponse{Message: "success"})
}

func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.errors.WriteError(w, r, apperrors.NewNotFoundError(r.URL.Path))
}

func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request) {
	metrics.RequestsInFlight.Inc()
	defer metrics.RequestsInFlight.Dec()
	start := time.Now()

	req, err := decodeGenerateRequest(w, r)
	if err != nil {
		h.fail(w, r, err, start)
		return
	}

	ctx := r.Context()
	if h.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.requestTimeout)
		defer cancel()
	}

	details, err := h.generator.Generate(ctx, req.Prompt)
	if err != nil {
		h.fail(w, r, err, start)
		return
	}

	metrics.GenerateRequests.WithLabelValues("success").Inc()
	if h.obs != nil {
		h.obs.RecordGeneration(ctx, "success", time.Since(start))
	}
	h.logger.Info("project details generated", map[string]interface{}{
		"requestId":  RequestIDFromContext(r.Context()),
		"talents":    len(details.TalentsRequired),
		"durationMs": time.Since(start).Milliseconds(),
	})
	writeJSON(w, http.StatusOK, details)
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error, start time.Time) {
	stdErr := apperrors.Normalize(err)
	metrics.GenerateRequests.WithLabelValues("error").Inc()
	metrics.GenerateErrors.WithLabelValues(string(stdErr.Code)).Inc()
	if h.obs != nil {
		h.obs.RecordGeneration(r.Context(), string(stdErr.Code), time.Since(start))
	}
	h.errors.WriteError(w, r, stdErr.WithMetadata("requestId", RequestIDFromContext(r.Context())))
}

func decodeGenerateRequest(w http.ResponseWriter, r *http.Request) (*models.GenerateRequest, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperrors.NewInvalidRequestError("request body too large")
		}
		return nil, apperrors.NewInvalidRequestError("request body could not be read")
	}

	result := models.GenerateRequestSchema.ValidateJSON(body)
	if !result.Valid {
		return nil, apperrors.NewInvalidRequestError(strings.Join(result.GetErrorMessages(), "; ")).
			WithMetadata("fields", result.Errors)
	}

	var req models.GenerateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, apperrors.NewInvalidRequestError(err.Error())
	}
	return &req, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
