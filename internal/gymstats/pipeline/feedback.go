package pipeline

import (
	"context"

	"github.com/2beens/gymstats-predictor/internal/gymstats/constraints"
	"github.com/2beens/gymstats-predictor/internal/gymstats/features"
	"github.com/2beens/gymstats-predictor/internal/gymstats/learning"
	"github.com/2beens/gymstats-predictor/internal/gymstats/workouts"
)

func (p *Pipeline) TrackPrediction(exerciseName string, prediction learning.Tracked, fv features.Vector, level constraints.Level) string {
	return p.collector.TrackPrediction(exerciseName, prediction, fv, level)
}

// TrackResult tracks a served prediction result.
func (p *Pipeline) TrackResult(res Result) string {
	return p.collector.TrackPrediction(res.ExerciseName, res.Tracked(), res.Features, res.Features.UserLevel)
}

// ProvideFeedback reports whether the prediction id was known.
func (p *Pipeline) ProvideFeedback(ctx context.Context, predictionID string, feedbackType learning.FeedbackType, data learning.FeedbackData) bool {
	return p.collector.CollectFeedback(ctx, predictionID, feedbackType, data)
}

func (p *Pipeline) ValidatePrediction(candidate learning.Tracked, fv features.Vector, history []workouts.HistoryPoint) learning.ValidationReport {
	return p.validator.Validate(candidate, fv, history)
}

func (p *Pipeline) MetricsReport() learning.Report {
	return p.collector.MetricsReport()
}

// Recalibrate forces a recalibration of the ensemble weights from the collected feedback.
func (p *Pipeline) Recalibrate(ctx context.Context) learning.Calibration {
	return p.collector.Recalibrate(ctx)
}
