package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/2beens/gymstats-predictor/internal/gymstats/constraints"
	"github.com/2beens/gymstats-predictor/internal/gymstats/learning"
	"github.com/2beens/gymstats-predictor/internal/gymstats/pipeline"
	"github.com/2beens/gymstats-predictor/internal/gymstats/workouts"
)

// SessionsRepo provides recorded workout sessions (for dependency injection and testing).
type SessionsRepo interface {
	ListSessions(ctx context.Context, params workouts.ListParams) ([]workouts.Session, error)
}

// Predictor is the part of the prediction pipeline the MCP tools read from.
type Predictor interface {
	Predict(ctx context.Context, exerciseName string, sessions []workouts.Session, opts pipeline.Options) (pipeline.Result, error)
	AnalyzeAllExercises(ctx context.Context, sessions []workouts.Session) (map[string]pipeline.Result, error)
	Metrics() pipeline.PipelineMetrics
	MetricsReport() learning.Report
}

// predictionService provides predictions and history for the tools.
// Used by Handler for testability.
type predictionService interface {
	PredictNextWeight(ctx context.Context, exerciseName string, level constraints.Level) (pipeline.Result, error)
	AnalyzeAll(ctx context.Context) (map[string]pipeline.Result, error)
	ExerciseHistory(ctx context.Context, exerciseName string, from, to time.Time) ([]workouts.HistoryPoint, error)
	Status() Status
}

// Status combines the pipeline metrics with the feedback report.
type Status struct {
	Pipeline pipeline.PipelineMetrics `json:"pipeline"`
	Feedback learning.Summary         `json:"feedback"`
}

// PredictionService holds dependencies and implements the tool business logic.
type PredictionService struct {
	sessions  SessionsRepo
	predictor Predictor
}

// NewPredictionService builds a PredictionService with the given dependencies.
func NewPredictionService(sessions SessionsRepo, predictor Predictor) *PredictionService {
	return &PredictionService{
		sessions:  sessions,
		predictor: predictor,
	}
}

func (s *PredictionService) prodSessions(ctx context.Context, params workouts.ListParams) ([]workouts.Session, error) {
	params.OnlyProd = true
	params.ExcludeTestingData = true
	sessions, err := s.sessions.ListSessions(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// PredictNextWeight returns the next-session prediction for the exercise, over all recorded sessions.
func (s *PredictionService) PredictNextWeight(ctx context.Context, exerciseName string, level constraints.Level) (pipeline.Result, error) {
	sessions, err := s.prodSessions(ctx, workouts.ListParams{})
	if err != nil {
		return pipeline.Result{}, err
	}
	return s.predictor.Predict(ctx, exerciseName, sessions, pipeline.Options{Level: level})
}

// AnalyzeAll returns a prediction for every recorded exercise.
func (s *PredictionService) AnalyzeAll(ctx context.Context) (map[string]pipeline.Result, error) {
	sessions, err := s.prodSessions(ctx, workouts.ListParams{})
	if err != nil {
		return nil, err
	}
	return s.predictor.AnalyzeAllExercises(ctx, sessions)
}

// ExerciseHistory returns the per-session history (heaviest set, volume) of the exercise in the period.
func (s *PredictionService) ExerciseHistory(ctx context.Context, exerciseName string, from, to time.Time) ([]workouts.HistoryPoint, error) {
	sessions, err := s.prodSessions(ctx, workouts.ListParams{
		From: &from,
		To:   &to,
	})
	if err != nil {
		return nil, err
	}
	return workouts.ExtractHistory(exerciseName, sessions), nil
}

func (s *PredictionService) Status() Status {
	return Status{
		Pipeline: s.predictor.Metrics(),
		Feedback: s.predictor.MetricsReport().Summary,
	}
}
