// Package learning closes the loop between served predictions and what the
// user actually lifted: it tracks predictions, collects feedback, scores
// accuracy and recalibrates the ensemble weights when quality drifts.
package learning

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/2beens/gymstats-predictor/internal/gymstats/constraints"
	"github.com/2beens/gymstats-predictor/internal/gymstats/ensemble"
	"github.com/2beens/gymstats-predictor/internal/gymstats/features"
	"github.com/2beens/gymstats-predictor/internal/gymstats/stats"
	"github.com/2beens/gymstats-predictor/internal/telemetry/metrics"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	accurateThreshold      = 0.8
	exerciseHistoryLen     = 20
	averageAccuracyWindow  = 50
	accuracyDropWindow     = 10
	accuracyDropThreshold  = 0.1
	sufficientFeedback     = 10
	complaintWindow        = 10
	complaintRating        = 3
	complaintCount         = 3
	maxCalibrationHistory  = 100
	recentCalibrationsSize = 5
)

type Params struct {
	// Weights persists recalibrated weights, nil skips persistence.
	Weights *WeightsStore

	// OnRecalibrated receives the weights of every completed recalibration.
	OnRecalibrated func(ensemble.Weights)

	Metrics *metrics.Manager

	Clock                 func() time.Time
	Folds                 int
	MinSamples            int
	RecalibrationInterval time.Duration
	Retention             time.Duration
}

func (p Params) withDefaults() Params {
	if p.Clock == nil {
		p.Clock = time.Now
	}
	if p.Folds < 2 {
		p.Folds = 5
	}
	if p.MinSamples <= 0 {
		p.MinSamples = 5
	}
	if p.RecalibrationInterval <= 0 {
		p.RecalibrationInterval = 7 * 24 * time.Hour
	}
	if p.Retention <= 0 {
		p.Retention = 90 * 24 * time.Hour
	}
	return p
}

// Collector keeps the tracked predictions and their feedback in memory.
type Collector struct {
	params Params

	mu                sync.Mutex
	records           map[string]*TrackingRecord
	order             []string
	accuracy          []AccuracyScore
	feedback          []*FeedbackRecord
	buffer            []*FeedbackRecord
	performance       map[string]*ExercisePerformance
	calibrations      []Calibration
	lastRecalibration time.Time
	recalibrating     bool
}

func NewCollector(params Params) *Collector {
	params = params.withDefaults()
	return &Collector{
		params:            params,
		records:           make(map[string]*TrackingRecord),
		performance:       make(map[string]*ExercisePerformance),
		lastRecalibration: params.Clock(),
	}
}

// TrackPrediction stores a served prediction and returns its id.
func (c *Collector) TrackPrediction(exerciseName string, prediction Tracked, fv features.Vector, level constraints.Level) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.params.Clock()
	record := &TrackingRecord{
		ID:           uuid.NewString(),
		Timestamp:    now,
		ExerciseName: exerciseName,
		Prediction:   prediction,
		Features:     fv,
		UserLevel:    level,
	}
	c.records[record.ID] = record
	c.order = append(c.order, record.ID)

	c.cleanOld(now)
	return record.ID
}

// cleanOld drops everything older than the retention window. Callers hold mu.
func (c *Collector) cleanOld(now time.Time) {
	cutoff := now.Add(-c.params.Retention)

	drop := 0
	for drop < len(c.order) && !c.records[c.order[drop]].Timestamp.After(cutoff) {
		delete(c.records, c.order[drop])
		drop++
	}
	c.order = c.order[drop:]

	drop = 0
	for drop < len(c.accuracy) && !c.accuracy[drop].Timestamp.After(cutoff) {
		drop++
	}
	c.accuracy = c.accuracy[drop:]

	drop = 0
	for drop < len(c.feedback) && !c.feedback[drop].Timestamp.After(cutoff) {
		drop++
	}
	c.feedback = c.feedback[drop:]
}

// CollectFeedback attaches user feedback to a tracked prediction. Unknown ids
// are rejected and nothing is stored.
func (c *Collector) CollectFeedback(ctx context.Context, predictionID string, feedbackType FeedbackType, data FeedbackData) bool {
	c.mu.Lock()
	record, ok := c.records[predictionID]
	if !ok {
		c.mu.Unlock()
		return false
	}

	fb := &FeedbackRecord{
		ID:           uuid.NewString(),
		Timestamp:    c.params.Clock(),
		PredictionID: predictionID,
		Type:         feedbackType,
		Data:         data,
	}
	c.feedback = append(c.feedback, fb)
	c.buffer = append(c.buffer, fb)

	if feedbackType == FeedbackActualPerformance {
		c.scoreAccuracy(record, data)
	}
	reasons := c.triggerReasons()
	c.mu.Unlock()

	if c.params.Metrics != nil {
		c.params.Metrics.CounterFeedback.WithLabelValues(string(feedbackType)).Inc()
	}

	if reasons.fire() {
		c.recalibrate(ctx, reasons)
	}
	return true
}

// scoreAccuracy resolves a tracked prediction once, against the weight the
// user actually lifted. Callers hold mu.
func (c *Collector) scoreAccuracy(record *TrackingRecord, data FeedbackData) {
	predicted, actual := record.Prediction.NextWeight, data.ActualWeight
	if record.FeedbackReceived || predicted <= 0 || actual <= 0 {
		return
	}

	relativeError := math.Abs(predicted-actual) / math.Max(predicted, actual)
	score := math.Max(0, 1-relativeError)

	outcome := data
	record.ActualOutcome = &outcome
	record.AccuracyScore = &score
	record.FeedbackReceived = true

	now := c.params.Clock()
	c.accuracy = append(c.accuracy, AccuracyScore{
		Timestamp:     now,
		ExerciseName:  record.ExerciseName,
		UserLevel:     record.UserLevel,
		Score:         score,
		RelativeError: relativeError,
		Predicted:     predicted,
		Actual:        actual,
	})

	perf, ok := c.performance[record.ExerciseName]
	if !ok {
		perf = &ExercisePerformance{}
		c.performance[record.ExerciseName] = perf
	}
	perf.TotalPredictions++
	if score >= accurateThreshold {
		perf.AccurateCount++
	}
	perf.history = append(perf.history, score)
	if len(perf.history) > exerciseHistoryLen {
		perf.history = perf.history[len(perf.history)-exerciseHistoryLen:]
	}
	perf.AverageAccuracy = stats.Mean(perf.history)
	perf.LastUpdate = now
}

// triggerReasons evaluates the recalibration triggers. Callers hold mu.
func (c *Collector) triggerReasons() TriggerReasons {
	return TriggerReasons{
		TimeInterval:       c.params.Clock().Sub(c.lastRecalibration) > c.params.RecalibrationInterval,
		AccuracyDrop:       c.accuracyDropped(),
		SufficientFeedback: len(c.buffer) >= sufficientFeedback,
		UserComplaint:      c.userComplained(),
	}
}

func (c *Collector) accuracyDropped() bool {
	if len(c.accuracy) <= accuracyDropWindow {
		return false
	}
	scores := make([]float64, len(c.accuracy))
	for i, a := range c.accuracy {
		scores[i] = a.Score
	}
	recent := scores[len(scores)-accuracyDropWindow:]
	previous := scores[max(0, len(scores)-2*accuracyDropWindow) : len(scores)-accuracyDropWindow]
	return stats.Mean(recent) < stats.Mean(previous)-accuracyDropThreshold
}

func (c *Collector) userComplained() bool {
	recent := c.feedback[max(0, len(c.feedback)-complaintWindow):]
	complaints := 0
	for _, fb := range recent {
		if fb.Type == FeedbackUserSatisfaction && fb.Data.Rating < complaintRating {
			complaints++
		}
	}
	return complaints >= complaintCount
}

// AverageAccuracy is the mean of the latest accuracy scores, in [0, 1].
func (c *Collector) AverageAccuracy() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.averageAccuracy()
}

func (c *Collector) averageAccuracy() float64 {
	recent := c.accuracy[max(0, len(c.accuracy)-averageAccuracyWindow):]
	var sum float64
	for _, a := range recent {
		sum += a.Score
	}
	if len(recent) == 0 {
		return 0
	}
	return sum / float64(len(recent))
}

func (c *Collector) Record(id string) (TrackingRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.records[id]
	if !ok {
		return TrackingRecord{}, false
	}
	return *r, true
}

func (c *Collector) Feedback() []FeedbackRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]FeedbackRecord, len(c.feedback))
	for i, fb := range c.feedback {
		out[i] = *fb
	}
	return out
}

func (c *Collector) PendingFeedback() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

func (c *Collector) Calibrations() []Calibration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Calibration(nil), c.calibrations...)
}

func (c *Collector) MetricsReport() Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := len(c.order)
	withFeedback := 0
	for _, id := range c.order {
		if c.records[id].FeedbackReceived {
			withFeedback++
		}
	}
	feedbackRate := 0.0
	if total > 0 {
		feedbackRate = float64(withFeedback) / float64(total)
	}

	perf := make(map[string]ExercisePerformance, len(c.performance))
	for name, p := range c.performance {
		perf[name] = *p
	}

	recent := c.calibrations[max(0, len(c.calibrations)-recentCalibrationsSize):]
	return Report{
		Summary: Summary{
			TotalPredictions:  total,
			FeedbackRate:      math.Round(feedbackRate * 100),
			AverageAccuracy:   math.Round(c.averageAccuracy() * 100),
			LastRecalibration: c.lastRecalibration,
			CalibrationCount:  len(c.calibrations),
		},
		ModelPerformance:   perf,
		RecentCalibrations: append([]Calibration{}, recent...),
	}
}

func (c *Collector) logger() *log.Entry {
	return log.WithField("component", "learning")
}
