package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/sony/gobreaker/v2"

	service "github.com/okian/restwell/internal/app"
	"github.com/okian/restwell/internal/domain/dispatch"
	"github.com/okian/restwell/internal/domain/model"
	"github.com/okian/restwell/pkg/logger"
)

// RecommendationDependencies defines the interface for recommendation requests.
type RecommendationDependencies interface {
	Recommend(ctx context.Context, current model.ParameterReading) (dispatch.Result, error)
}

// RecommendationHandler handles recommendation requests.
type RecommendationHandler struct {
	deps   RecommendationDependencies
	logger logger.Logger
}

// NewRecommendationHandler creates a new recommendation handler.
func NewRecommendationHandler(deps RecommendationDependencies, l logger.Logger) *RecommendationHandler {
	return &RecommendationHandler{deps: deps, logger: l}
}

// recommendationRequest mirrors the OpenAPI schema for POST /recommendation.
type recommendationRequest struct {
	UserID string `json:"user_id" validate:"required"`
	readingFields
}

type recommendationResponse struct {
	// Recommendations is a list of advisories for cold-start and a single
	// technique for content-based results.
	Recommendations any      `json:"recommendations"`
	Strategy        string   `json:"strategy"`
	Score           *float64 `json:"score,omitempty"`
	FallbackReason  string   `json:"fallback_reason,omitempty"`
	RequestID       string   `json:"request_id"`
}

// HandleRecommend handles POST /recommendation requests.
func (h *RecommendationHandler) HandleRecommend(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_recommendation"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req recommendationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, op, err)
		return
	}

	res, err := h.deps.Recommend(r.Context(), model.ParameterReading{
		UserID: req.UserID,
		Values: req.values(),
	})
	if err != nil {
		h.writeRecommendError(w, r, op, err)
		return
	}

	out := recommendationResponse{
		Recommendations: res.Payload(),
		Strategy:        string(res.Strategy),
		FallbackReason:  res.FallbackReason,
		RequestID:       RequestIDFromContext(r.Context()),
	}
	if res.Strategy == dispatch.StrategyContentBased {
		out.Score = &res.Score
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *RecommendationHandler) writeRecommendError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, dispatch.ErrMissingField):
		writeError(w, r, http.StatusBadRequest, "missing_field", WrapKind(op, ErrMissingField, err))
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		writeError(w, r, http.StatusServiceUnavailable, "history_unavailable", WrapKind(op, ErrUnavailable, err))
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, r, http.StatusServiceUnavailable, "not_ready", WrapKind(op, ErrUnavailable, err))
	default:
		h.logger.Error(r.Context(), "recommendation failed", logger.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal_error", nil)
	}
}
