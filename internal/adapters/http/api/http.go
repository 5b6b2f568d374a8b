// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/okian/restwell/internal/adapters/repository"
	service "github.com/okian/restwell/internal/app"
	"github.com/okian/restwell/internal/domain/dispatch"
	"github.com/okian/restwell/internal/domain/model"
	"github.com/okian/restwell/pkg/logger"
)

const defaultMaxBodyBytes = 4 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Recommend(ctx context.Context, current model.ParameterReading) (dispatch.Result, error)
	SubmitReading(ctx context.Context, r model.ParameterReading) (service.Ack, error)
	SubmitRecommendation(ctx context.Context, r model.RecommendationRecord) (service.Ack, error)
	ImportHistory(ctx context.Context, h model.UserHistory) (repository.ImportResult, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler         *HealthHandler
	statsHandler          *StatsHandler
	recommendationHandler *RecommendationHandler
	historyHandler        *HistoryHandler

	corsOrigins  []string
	rateRequests int
	rateWindow   time.Duration
	logger       logger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithCORSOrigins sets the origins allowed by CORS. Empty disables CORS.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithRateLimit limits each client IP to requests per window. Zero disables it.
func WithRateLimit(requests int, window time.Duration) Option {
	return func(s *Server) {
		s.rateRequests = requests
		s.rateWindow = window
	}
}

// WithLogger sets the logger used for server-side failures.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{logger: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.recommendationHandler = NewRecommendationHandler(deps, s.logger)
	s.historyHandler = NewHistoryHandler(deps, s.logger)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/", MetricsMiddleware(HandleIndex, "index"))
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/recommendation", MetricsMiddleware(s.recommendationHandler.HandleRecommend, "recommendation"))
	mux.HandleFunc("/history/readings", MetricsMiddleware(s.historyHandler.HandlePostReading, "history_readings"))
	mux.HandleFunc("/history/recommendations", MetricsMiddleware(s.historyHandler.HandlePostRecommendation, "history_recommendations"))
	mux.HandleFunc("/history/import", MetricsMiddleware(s.historyHandler.HandleImport, "history_import"))
}

// Handler wraps mux with the server-wide middleware chain.
func (s *Server) Handler(mux http.Handler) http.Handler {
	var h http.Handler = mux
	if s.rateRequests > 0 {
		h = RateLimit(s.rateRequests, s.rateWindow)(h)
	}
	if len(s.corsOrigins) > 0 {
		h = CORS(s.corsOrigins)(h)
	}
	return RequestID(h)
}

// readingFields are the physiological keys accepted by every write.
type readingFields struct {
	SnoringRange    *float64 `json:"snoring_range"`
	RespirationRate *float64 `json:"respiration_rate"`
	BodyTemperature *float64 `json:"body_temperature"`
	LimbMovement    *float64 `json:"limb_movement"`
	BloodOxygen     *float64 `json:"blood_oxygen"`
	HeartRate       *float64 `json:"heart_rate"`
	SleepDuration   *float64 `json:"sleep_duration"`
	Age             *float64 `json:"age"`
	Weight          *float64 `json:"weight"`
}

// values keeps only the supplied keys.
func (f *readingFields) values() model.Values {
	out := make(model.Values)
	for p, v := range map[model.Parameter]*float64{
		model.SnoringRange:    f.SnoringRange,
		model.RespirationRate: f.RespirationRate,
		model.BodyTemperature: f.BodyTemperature,
		model.LimbMovement:    f.LimbMovement,
		model.BloodOxygen:     f.BloodOxygen,
		model.HeartRate:       f.HeartRate,
		model.SleepDuration:   f.SleepDuration,
		model.Age:             f.Age,
		model.Weight:          f.Weight,
	} {
		if v != nil {
			out[p] = *v
		}
	}
	return out
}

type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// decodeJSON reads a bounded JSON body into v and validates it.
func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, defaultMaxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return getValidator().Struct(v)
}

// missingField returns the JSON name of the first required field that
// failed validation.
func missingField(err error) (string, bool) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "", false
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return fieldNames[fe.Field()], true
		}
	}
	return "", false
}

var fieldNames = map[string]string{
	"UserID":    "user_id",
	"Technique": "technique",
}

// writeBadRequest reports a decode or validation failure.
func writeBadRequest(w http.ResponseWriter, r *http.Request, op string, err error) {
	if name, ok := missingField(err); ok {
		writeError(w, r, http.StatusBadRequest, "missing_field",
			NewKind(op, fmt.Errorf("%w: %s", ErrMissingField, name)))
		return
	}
	writeError(w, r, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg, RequestID: RequestIDFromContext(r.Context())})
}

// parseTime accepts RFC3339 timestamps; empty means unset.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.New("invalid timestamp; must be RFC3339")
	}
	return t.UTC(), nil
}
