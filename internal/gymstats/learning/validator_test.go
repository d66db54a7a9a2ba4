package learning_test

import (
	"testing"
	"time"

	"github.com/2beens/gymstats-predictor/internal/gymstats/constraints"
	"github.com/2beens/gymstats-predictor/internal/gymstats/features"
	"github.com/2beens/gymstats-predictor/internal/gymstats/learning"
	"github.com/2beens/gymstats-predictor/internal/gymstats/workouts"

	"github.com/stretchr/testify/assert"
)

func historyOf(weights ...float64) []workouts.HistoryPoint {
	start := time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)
	history := make([]workouts.HistoryPoint, len(weights))
	for i, w := range weights {
		history[i] = workouts.HistoryPoint{
			Timestamp: start.AddDate(0, 0, 7*i),
			Weight:    w,
			Reps:      8,
			Sets:      1,
			Volume:    8 * w,
		}
	}
	return history
}

func vectorAt(current float64, level constraints.Level) features.Vector {
	fv := features.Default("bench press", level)
	fv.CurrentWeight = current
	return fv
}

func TestValidator_Regression(t *testing.T) {
	report := learning.NewValidator().Validate(
		learning.Tracked{NextWeight: 78},
		vectorAt(80, constraints.LevelIntermediate),
		nil,
	)

	assert.False(t, report.IsValid)
	assert.Equal(t, []string{"Prediction suggests a weight regression"}, report.Warnings)
	assert.Equal(t, []string{"Keep the current weight"}, report.Adjustments)
	// default confidence of 70, one warning
	assert.InDelta(t, 63, report.Confidence, 1e-9)
	assert.InDelta(t, (0.2+0.975+1+0.6)/4, report.QualityScore, 1e-9)
}

func TestValidator_SmallIncreaseIsValidWithWarning(t *testing.T) {
	report := learning.NewValidator().Validate(
		learning.Tracked{NextWeight: 80.25, Confidence: 80},
		vectorAt(80, constraints.LevelIntermediate),
		nil,
	)

	assert.True(t, report.IsValid)
	assert.Equal(t, []string{"Very small weight increase"}, report.Warnings)
	assert.Empty(t, report.Adjustments)
	assert.InDelta(t, 72, report.Confidence, 1e-9)
	assert.InDelta(t, (0.7+(1-0.25/80)+1+0.6)/4, report.QualityScore, 1e-9)
}

func TestValidator_TooLargeForBeginner(t *testing.T) {
	report := learning.NewValidator().Validate(
		learning.Tracked{NextWeight: 45, Confidence: 70},
		vectorAt(40, constraints.LevelBeginner),
		historyOf(40, 40, 40),
	)

	assert.False(t, report.IsValid)
	assert.Len(t, report.Warnings, 3)
	assert.Len(t, report.Adjustments, 3)
	assert.Contains(t, report.Warnings, "Unrealistic progression rate")
	assert.Contains(t, report.Warnings, "Progression too fast for beginner level")
	assert.Contains(t, report.Adjustments, "Reduce to 8.0% max")
	assert.InDelta(t, 49, report.Confidence, 1e-9)
	assert.InDelta(t, (0.3+0.4+0.5+0.9)/4, report.QualityScore, 1e-9)
}

func TestValidator_InconsistentWithRecentVariability(t *testing.T) {
	report := learning.NewValidator().Validate(
		learning.Tracked{NextWeight: 62.5, Confidence: 90},
		vectorAt(60, constraints.LevelIntermediate),
		historyOf(60, 64, 60, 64, 60),
	)

	assert.False(t, report.IsValid)
	assert.Equal(t, []string{"Prediction inconsistent with the recent variability"}, report.Warnings)
	assert.InDelta(t, 81, report.Confidence, 1e-9)
	assert.InDelta(t, (1+(1-2.5/60)+1+0.4)/4, report.QualityScore, 1e-9)
}

func TestValidator_CleanPrediction(t *testing.T) {
	report := learning.NewValidator().Validate(
		learning.Tracked{NextWeight: 102.5, Confidence: 85},
		vectorAt(100, constraints.LevelIntermediate),
		historyOf(99, 99.5, 100),
	)

	assert.True(t, report.IsValid)
	assert.Empty(t, report.Warnings)
	assert.Equal(t, 85.0, report.Confidence)
	assert.InDelta(t, (1+0.975+1+0.9)/4, report.QualityScore, 1e-9)
}
