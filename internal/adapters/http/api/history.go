package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/okian/restwell/internal/adapters/repository"
	service "github.com/okian/restwell/internal/app"
	"github.com/okian/restwell/internal/domain/model"
	"github.com/okian/restwell/pkg/logger"
)

// HistoryDependencies defines the interface for history writes.
type HistoryDependencies interface {
	SubmitReading(ctx context.Context, r model.ParameterReading) (service.Ack, error)
	SubmitRecommendation(ctx context.Context, r model.RecommendationRecord) (service.Ack, error)
	ImportHistory(ctx context.Context, h model.UserHistory) (repository.ImportResult, error)
}

// HistoryHandler handles history ingestion requests.
type HistoryHandler struct {
	deps   HistoryDependencies
	logger logger.Logger
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(deps HistoryDependencies, l logger.Logger) *HistoryHandler {
	return &HistoryHandler{deps: deps, logger: l}
}

// readingRequest mirrors the OpenAPI schema for POST /history/readings.
type readingRequest struct {
	ReadingID  string `json:"reading_id"`
	UserID     string `json:"user_id" validate:"required"`
	RecordedAt string `json:"recorded_at"`
	readingFields
}

// recommendationRecordRequest mirrors the OpenAPI schema for
// POST /history/recommendations.
type recommendationRecordRequest struct {
	RecommendationID   string `json:"recommendation_id"`
	UserID             string `json:"user_id" validate:"required"`
	Technique          string `json:"technique" validate:"required"`
	RecommendationDate string `json:"recommendation_date"`
	readingFields
}

type ackResponse struct {
	Status    string `json:"status"`
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate"`
}

type importResponse struct {
	UserID          string `json:"user_id"`
	Readings        int    `json:"readings"`
	Recommendations int    `json:"recommendations"`
}

// HandlePostReading handles POST /history/readings requests.
func (h *HistoryHandler) HandlePostReading(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_reading"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req readingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, op, err)
		return
	}
	at, err := parseTime(req.RecordedAt)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	ack, err := h.deps.SubmitReading(r.Context(), model.ParameterReading{
		ID:         req.ReadingID,
		UserID:     req.UserID,
		Values:     req.values(),
		RecordedAt: at,
	})
	h.writeAck(w, r, op, ack, err)
}

// HandlePostRecommendation handles POST /history/recommendations requests.
func (h *HistoryHandler) HandlePostRecommendation(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_recommendation_record"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req recommendationRecordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, op, err)
		return
	}
	at, err := parseTime(req.RecommendationDate)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	ack, err := h.deps.SubmitRecommendation(r.Context(), model.RecommendationRecord{
		ID:                 req.RecommendationID,
		UserID:             req.UserID,
		Technique:          req.Technique,
		RecommendationDate: at,
		Values:             req.values(),
	})
	h.writeAck(w, r, op, ack, err)
}

func (h *HistoryHandler) writeAck(w http.ResponseWriter, r *http.Request, op string, ack service.Ack, err error) {
	switch {
	case err == nil && ack.Duplicate:
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", ID: ack.ID, Duplicate: true})
	case err == nil:
		writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", ID: ack.ID})
	case errors.Is(err, service.ErrBackpressure):
		writeError(w, r, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
	case errors.Is(err, service.ErrInvalidEvent):
		writeError(w, r, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, r, http.StatusServiceUnavailable, "not_ready", WrapKind(op, ErrUnavailable, err))
	default:
		h.logger.Error(r.Context(), "history submission failed", logger.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal_error", nil)
	}
}

// HandleImport handles POST /history/import?user_id=... requests. The body is
// either a canonical history document or the legacy row-array shape; rows
// without an owner are attributed to user_id.
func (h *HistoryHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	const op = "api.import_history"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, defaultMaxBodyBytes))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	hist, err := repository.DecodeHistory(body, r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	res, err := h.deps.ImportHistory(r.Context(), hist)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, importResponse{
			UserID:          hist.UserID,
			Readings:        res.Readings,
			Recommendations: res.Recommendations,
		})
	case errors.Is(err, repository.ErrInvalidRecord), errors.Is(err, repository.ErrInvalidHistory):
		writeError(w, r, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, r, http.StatusServiceUnavailable, "not_ready", WrapKind(op, ErrUnavailable, err))
	default:
		h.logger.Error(r.Context(), "history import failed",
			logger.String("user_id", hist.UserID),
			logger.Error(err),
		)
		writeError(w, r, http.StatusInternalServerError, "internal_error", nil)
	}
}
