package gymstats

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/2beens/gymstats-predictor/internal/gymstats/constraints"
	"github.com/2beens/gymstats-predictor/internal/gymstats/features"
	"github.com/2beens/gymstats-predictor/internal/gymstats/learning"
	"github.com/2beens/gymstats-predictor/internal/gymstats/pipeline"
	"github.com/2beens/gymstats-predictor/internal/gymstats/workouts"
	"github.com/2beens/gymstats-predictor/internal/middleware"
	"github.com/2beens/gymstats-predictor/internal/telemetry/tracing"
	"github.com/2beens/gymstats-predictor/pkg"
)

//go:generate mockgen -source=$GOFILE -destination=handler_mocks_test.go -package=gymstats_test

type sessionsRepo interface {
	ListSessions(ctx context.Context, params workouts.ListParams) ([]workouts.Session, error)
}

type predictor interface {
	Initialize(ctx context.Context, sessions []workouts.Session, user pipeline.User) (pipeline.InitResult, error)
	Predict(ctx context.Context, exerciseName string, sessions []workouts.Session, opts pipeline.Options) (pipeline.Result, error)
	AnalyzeAllExercises(ctx context.Context, sessions []workouts.Session) (map[string]pipeline.Result, error)
	Metrics() pipeline.PipelineMetrics
	SaveSnapshot(ctx context.Context) error
	TrackPrediction(exerciseName string, prediction learning.Tracked, fv features.Vector, level constraints.Level) string
	TrackResult(res pipeline.Result) string
	ProvideFeedback(ctx context.Context, predictionID string, feedbackType learning.FeedbackType, data learning.FeedbackData) bool
	ValidatePrediction(candidate learning.Tracked, fv features.Vector, history []workouts.HistoryPoint) learning.ValidationReport
	MetricsReport() learning.Report
}

type InitializeRequest struct {
	UserID string            `json:"userId"`
	Level  constraints.Level `json:"level"`
	From   *time.Time        `json:"from"`
	To     *time.Time        `json:"to"`
}

type PredictionResponse struct {
	pipeline.Result
	PredictionID string `json:"predictionId,omitempty"`
}

type ValidateRequest struct {
	ExerciseName string            `json:"exerciseName"`
	Prediction   learning.Tracked  `json:"prediction"`
	Level        constraints.Level `json:"level"`
}

type TrackRequest struct {
	ExerciseName string            `json:"exerciseName"`
	Prediction   learning.Tracked  `json:"prediction"`
	Level        constraints.Level `json:"level"`
	Features     *features.Vector  `json:"features"`
}

type TrackResponse struct {
	PredictionID string `json:"predictionId"`
}

type FeedbackRequest struct {
	Type learning.FeedbackType `json:"type"`
	Data learning.FeedbackData `json:"data"`
}

type Handler struct {
	repo      sessionsRepo
	predictor predictor
	engineer  *features.Engineer
}

func NewHandler(repo sessionsRepo, predictor predictor) *Handler {
	return &Handler{
		repo:      repo,
		predictor: predictor,
		engineer:  features.NewEngineer(),
	}
}

// SetupRoutes registers the prediction and feedback routes. The static
// prediction routes go before the {exercise} one so they are not shadowed.
// Training is expensive, so initialize gets its own rate limit when a limiter is given.
func (handler *Handler) SetupRoutes(
	r *mux.Router,
	rateLimiter middleware.RequestRateLimiter,
	initializePerMin int,
) {
	var initialize http.Handler = http.HandlerFunc(handler.HandleInitialize)
	if rateLimiter != nil {
		initialize = middleware.RateLimit(rateLimiter, "predictions-initialize", initializePerMin)(initialize)
	}

	r.Handle("/predictions/initialize", initialize).Methods("POST", "OPTIONS").Name("predictions-initialize")
	r.HandleFunc("/predictions/metrics", handler.HandleMetrics).Methods("GET").Name("predictions-metrics")
	r.HandleFunc("/predictions/validate", handler.HandleValidate).Methods("POST", "OPTIONS").Name("predictions-validate")
	r.HandleFunc("/predictions/{exercise}", handler.HandlePredict).Methods("GET").Name("predictions-exercise")
	r.HandleFunc("/predictions", handler.HandleAnalyzeAll).Methods("GET").Name("predictions-all")
	r.HandleFunc("/feedback/track", handler.HandleTrack).Methods("POST", "OPTIONS").Name("feedback-track")
	r.HandleFunc("/feedback/report", handler.HandleReport).Methods("GET").Name("feedback-report")
	r.HandleFunc("/feedback/{id}", handler.HandleFeedback).Methods("POST", "OPTIONS").Name("feedback")
}

func (handler *Handler) sessions(ctx context.Context, from, to *time.Time) ([]workouts.Session, error) {
	return handler.repo.ListSessions(ctx, workouts.ListParams{
		From:               from,
		To:                 to,
		OnlyProd:           true,
		ExcludeTestingData: true,
	})
}

func (handler *Handler) HandleInitialize(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.initialize")
	defer span.End()

	var req InitializeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Tracef("initialize, unmarshal json params: %s", err)
			http.Error(w, "invalid initialize request", http.StatusBadRequest)
			return
		}
	}
	span.SetAttributes(attribute.String("user_id", req.UserID))

	sessions, err := handler.sessions(ctx, req.From, req.To)
	if err != nil {
		log.Errorf("initialize, list sessions: %s", err)
		http.Error(w, "failed to get workouts", http.StatusInternalServerError)
		return
	}

	res, err := handler.predictor.Initialize(ctx, sessions, pipeline.User{
		ID:    req.UserID,
		Level: req.Level,
	})
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrInitializing):
			http.Error(w, "initialization already in progress", http.StatusConflict)
		case errors.Is(err, pipeline.ErrClosed):
			http.Error(w, "predictor closed", http.StatusServiceUnavailable)
		default:
			log.Errorf("initialize predictor: %s", err)
			http.Error(w, "failed to initialize predictor", http.StatusInternalServerError)
		}
		return
	}

	if res.ModelsInitialized {
		if err := handler.predictor.SaveSnapshot(ctx); err != nil && !errors.Is(err, pipeline.ErrSnapshotsMissing) {
			// the trained ensemble is live, only the restart path loses it
			log.Errorf("initialize, save snapshot: %s", err)
		}
	}

	log.Debugf("predictor initialized: status [%s], level [%s], samples [%d]", res.Status, res.Level, res.TrainingSamples)
	handler.writeJSON(w, res, http.StatusOK)
}

func (handler *Handler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.predict")
	defer span.End()

	exerciseName := mux.Vars(r)["exercise"]
	if exerciseName == "" {
		http.Error(w, "error, exercise empty", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("exercise", exerciseName))

	sessions, err := handler.sessions(ctx, nil, nil)
	if err != nil {
		log.Errorf("predict [%s], list sessions: %s", exerciseName, err)
		http.Error(w, "failed to get workouts", http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	res, err := handler.predictor.Predict(ctx, exerciseName, sessions, pipeline.Options{
		BypassCache: query.Get("nocache") == "true",
		Level:       constraints.Level(query.Get("level")),
	})
	if err != nil {
		handler.writePipelineError(w, err)
		return
	}

	resp := PredictionResponse{Result: res}
	if query.Get("track") == "true" && res.Source != pipeline.SourceError {
		resp.PredictionID = handler.predictor.TrackResult(res)
	}

	handler.writeJSON(w, resp, http.StatusOK)
}

func (handler *Handler) HandleAnalyzeAll(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.analyzeAll")
	defer span.End()

	sessions, err := handler.sessions(ctx, nil, nil)
	if err != nil {
		log.Errorf("analyze all, list sessions: %s", err)
		http.Error(w, "failed to get workouts", http.StatusInternalServerError)
		return
	}

	results, err := handler.predictor.AnalyzeAllExercises(ctx, sessions)
	if err != nil {
		handler.writePipelineError(w, err)
		return
	}
	span.SetAttributes(attribute.Int("exercises", len(results)))

	handler.writeJSON(w, results, http.StatusOK)
}

func (handler *Handler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.metrics")
	defer span.End()

	handler.writeJSON(w, handler.predictor.Metrics(), http.StatusOK)
}

func (handler *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.validate")
	defer span.End()

	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("validate, unmarshal json params: %s", err)
		http.Error(w, "invalid validate request", http.StatusBadRequest)
		return
	}
	if req.ExerciseName == "" {
		http.Error(w, "error, exercise name empty", http.StatusBadRequest)
		return
	}

	sessions, err := handler.sessions(ctx, nil, nil)
	if err != nil {
		log.Errorf("validate [%s], list sessions: %s", req.ExerciseName, err)
		http.Error(w, "failed to get workouts", http.StatusInternalServerError)
		return
	}

	level := handler.level(req.Level, sessions)
	history := workouts.ExtractHistory(req.ExerciseName, sessions)
	fv := handler.engineer.FromHistory(req.ExerciseName, history, level)
	report := handler.predictor.ValidatePrediction(req.Prediction, fv, history)

	handler.writeJSON(w, report, http.StatusOK)
}

func (handler *Handler) HandleTrack(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.track")
	defer span.End()

	var req TrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("track, unmarshal json params: %s", err)
		http.Error(w, "invalid track request", http.StatusBadRequest)
		return
	}
	if req.ExerciseName == "" {
		http.Error(w, "error, exercise name empty", http.StatusBadRequest)
		return
	}

	var fv features.Vector
	if req.Features != nil {
		fv = *req.Features
	} else {
		sessions, err := handler.sessions(ctx, nil, nil)
		if err != nil {
			log.Errorf("track [%s], list sessions: %s", req.ExerciseName, err)
			http.Error(w, "failed to get workouts", http.StatusInternalServerError)
			return
		}
		fv = handler.engineer.Extract(req.ExerciseName, sessions, handler.level(req.Level, sessions))
	}

	level := req.Level
	if level == "" {
		level = fv.UserLevel
	}
	id := handler.predictor.TrackPrediction(req.ExerciseName, req.Prediction, fv, constraints.ParseLevel(string(level)))

	handler.writeJSON(w, TrackResponse{PredictionID: id}, http.StatusCreated)
}

func (handler *Handler) HandleFeedback(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.feedback")
	defer span.End()

	predictionID := mux.Vars(r)["id"]
	if predictionID == "" {
		http.Error(w, "error, prediction id empty", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("prediction_id", predictionID))

	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("feedback, unmarshal json params: %s", err)
		http.Error(w, "invalid feedback request", http.StatusBadRequest)
		return
	}
	if !req.Type.Valid() {
		http.Error(w, "error, unknown feedback type", http.StatusBadRequest)
		return
	}

	if !handler.predictor.ProvideFeedback(ctx, predictionID, req.Type, req.Data) {
		http.Error(w, "prediction not found", http.StatusNotFound)
		return
	}

	pkg.WriteJSONResponseOK(w, `{"accepted":true}`)
}

func (handler *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.report")
	defer span.End()

	handler.writeJSON(w, handler.predictor.MetricsReport(), http.StatusOK)
}

func (handler *Handler) level(requested constraints.Level, sessions []workouts.Session) constraints.Level {
	if requested != "" {
		return constraints.ParseLevel(string(requested))
	}
	return features.DetermineLevel(sessions)
}

func (handler *Handler) writePipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrNotInitialized):
		http.Error(w, "predictor not initialized", http.StatusConflict)
	case errors.Is(err, pipeline.ErrClosed):
		http.Error(w, "predictor closed", http.StatusServiceUnavailable)
	default:
		log.Errorf("predictor: %s", err)
		http.Error(w, "prediction failed", http.StatusInternalServerError)
	}
}

func (handler *Handler) writeJSON(w http.ResponseWriter, v any, status int) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Errorf("failed to marshal response: %s", err)
		http.Error(w, "failed to marshal response", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, b, status)
}
