package learning

import (
	"time"

	"github.com/2beens/gymstats-predictor/internal/gymstats/constraints"
	"github.com/2beens/gymstats-predictor/internal/gymstats/ensemble"
	"github.com/2beens/gymstats-predictor/internal/gymstats/features"
)

type FeedbackType string

const (
	FeedbackPredictionAccuracy FeedbackType = "prediction_accuracy"
	FeedbackDifficultyRating   FeedbackType = "difficulty_rating"
	FeedbackActualPerformance  FeedbackType = "actual_performance"
	FeedbackUserSatisfaction   FeedbackType = "user_satisfaction"
)

func (t FeedbackType) Valid() bool {
	switch t {
	case FeedbackPredictionAccuracy, FeedbackDifficultyRating, FeedbackActualPerformance, FeedbackUserSatisfaction:
		return true
	default:
		return false
	}
}

// Tracked is the part of a served prediction that feedback is compared against.
type Tracked struct {
	NextWeight float64 `json:"nextWeight"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source,omitempty"`
}

// FeedbackData carries the user's answer. Rating is on a 1 to 5 scale.
type FeedbackData struct {
	ActualWeight float64 `json:"actualWeight,omitempty"`
	ActualReps   int     `json:"actualReps,omitempty"`
	Rating       float64 `json:"rating,omitempty"`
	Comment      string  `json:"comment,omitempty"`
}

type TrackingRecord struct {
	ID               string            `json:"id"`
	Timestamp        time.Time         `json:"timestamp"`
	ExerciseName     string            `json:"exerciseName"`
	Prediction       Tracked           `json:"prediction"`
	Features         features.Vector   `json:"features"`
	UserLevel        constraints.Level `json:"userLevel"`
	FeedbackReceived bool              `json:"feedbackReceived"`
	AccuracyScore    *float64          `json:"accuracyScore"`
	ActualOutcome    *FeedbackData     `json:"actualOutcome"`
}

type FeedbackRecord struct {
	ID           string       `json:"id"`
	Timestamp    time.Time    `json:"timestamp"`
	PredictionID string       `json:"predictionId"`
	Type         FeedbackType `json:"type"`
	Data         FeedbackData `json:"data"`
	Processed    bool         `json:"processed"`
}

type AccuracyScore struct {
	Timestamp     time.Time         `json:"timestamp"`
	ExerciseName  string            `json:"exerciseName"`
	UserLevel     constraints.Level `json:"userLevel"`
	Score         float64           `json:"accuracyScore"`
	RelativeError float64           `json:"relativeError"`
	Predicted     float64           `json:"predicted"`
	Actual        float64           `json:"actual"`
}

type ExercisePerformance struct {
	TotalPredictions int       `json:"totalPredictions"`
	AccurateCount    int       `json:"accurateCount"`
	AverageAccuracy  float64   `json:"averageAccuracy"`
	LastUpdate       time.Time `json:"lastUpdate"`
	history          []float64
}

type CalibrationStatus string

const (
	CalibrationCompleted           CalibrationStatus = "completed"
	CalibrationFailed              CalibrationStatus = "failed"
	CalibrationSkippedInsufficient CalibrationStatus = "skipped_insufficient_data"
)

type TriggerReasons struct {
	TimeInterval       bool `json:"timeInterval"`
	AccuracyDrop       bool `json:"accuracyDrop"`
	SufficientFeedback bool `json:"sufficientFeedback"`
	UserComplaint      bool `json:"userComplaint"`
	Manual             bool `json:"manual,omitempty"`
}

func (r TriggerReasons) fire() bool {
	return r.Manual || r.TimeInterval || (r.AccuracyDrop && r.SufficientFeedback) || r.UserComplaint
}

type FoldScore struct {
	MSE float64 `json:"mse"`
	R2  float64 `json:"r2"`
}

type Calibration struct {
	Timestamp      time.Time            `json:"timestamp"`
	Reasons        TriggerReasons       `json:"reasons"`
	FeedbackCount  int                  `json:"feedbackCount"`
	Samples        int                  `json:"samples"`
	AccuracyBefore float64              `json:"accuracyBefore"`
	AccuracyAfter  float64              `json:"accuracyAfter,omitempty"`
	Status         CalibrationStatus    `json:"status"`
	Validation     map[string]FoldScore `json:"validationResults,omitempty"`
	Weights        *ensemble.Weights    `json:"weights,omitempty"`
	Error          string               `json:"error,omitempty"`
}

type Summary struct {
	TotalPredictions  int       `json:"totalPredictions"`
	FeedbackRate      float64   `json:"feedbackRate"`
	AverageAccuracy   float64   `json:"averageAccuracy"`
	LastRecalibration time.Time `json:"lastRecalibration"`
	CalibrationCount  int       `json:"calibrationCount"`
}

type Report struct {
	Summary            Summary                        `json:"summary"`
	ModelPerformance   map[string]ExercisePerformance `json:"modelPerformance"`
	RecentCalibrations []Calibration                  `json:"recentCalibrations"`
}
