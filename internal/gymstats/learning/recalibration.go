package learning

import (
	"context"
	"fmt"
	"math"

	"github.com/2beens/gymstats-predictor/internal/gymstats/ensemble"
	"github.com/2beens/gymstats-predictor/internal/gymstats/features"
	"github.com/2beens/gymstats-predictor/internal/gymstats/models"
	"github.com/2beens/gymstats-predictor/internal/gymstats/stats"
	"github.com/2beens/gymstats-predictor/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

const inverseErrorOffset = 0.01

// CalibrationSkippedBusy is returned, never recorded, when another
// recalibration is still running.
const CalibrationSkippedBusy CalibrationStatus = "skipped_in_progress"

// Recalibrate runs a recalibration regardless of the triggers.
func (c *Collector) Recalibrate(ctx context.Context) Calibration {
	c.mu.Lock()
	reasons := c.triggerReasons()
	c.mu.Unlock()

	reasons.Manual = true
	return c.recalibrate(ctx, reasons)
}

func (c *Collector) recalibrate(ctx context.Context, reasons TriggerReasons) Calibration {
	var err error
	ctx, span := tracing.GlobalTracer.Start(ctx, "learning.recalibrate")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	c.mu.Lock()
	if c.recalibrating {
		c.mu.Unlock()
		return Calibration{
			Timestamp: c.params.Clock(),
			Reasons:   reasons,
			Status:    CalibrationSkippedBusy,
		}
	}
	c.recalibrating = true
	X, y := c.trainingData()
	pending := c.buffer
	cal := Calibration{
		Timestamp:      c.params.Clock(),
		Reasons:        reasons,
		FeedbackCount:  len(pending),
		Samples:        len(X),
		AccuracyBefore: c.averageAccuracy(),
	}
	c.mu.Unlock()

	span.SetAttributes(attribute.Int("samples", len(X)))
	span.SetAttributes(attribute.Int("feedback", len(pending)))

	var weights ensemble.Weights
	if len(X) < c.params.MinSamples {
		cal.Status = CalibrationSkippedInsufficient
	} else {
		weights, err = c.retrain(ctx, X, y, &cal)
		if err != nil {
			cal.Status = CalibrationFailed
			cal.Error = err.Error()
		} else {
			cal.Status = CalibrationCompleted
			cal.Weights = &weights
		}
	}

	c.mu.Lock()
	if cal.Status == CalibrationCompleted {
		for _, fb := range pending {
			fb.Processed = true
		}
		// feedback that arrived meanwhile stays buffered
		c.buffer = c.buffer[len(pending):]
		c.lastRecalibration = c.params.Clock()
	}
	c.calibrations = append(c.calibrations, cal)
	if len(c.calibrations) > maxCalibrationHistory {
		c.calibrations = c.calibrations[len(c.calibrations)-maxCalibrationHistory:]
	}
	c.recalibrating = false
	c.mu.Unlock()

	if c.params.Metrics != nil {
		c.params.Metrics.CounterRecalibrations.WithLabelValues(string(cal.Status)).Inc()
	}
	c.logger().
		WithField("status", cal.Status).
		WithField("samples", cal.Samples).
		WithField("feedback", cal.FeedbackCount).
		Infof("recalibration finished")

	// the callback runs without mu held, it may call back into the collector
	if cal.Status == CalibrationCompleted && c.params.OnRecalibrated != nil {
		c.params.OnRecalibrated(weights)
	}
	return cal
}

// retrain cross-validates fresh learners on the feedback samples and persists
// the derived weights.
func (c *Collector) retrain(ctx context.Context, X [][]float64, y []float64, cal *Calibration) (ensemble.Weights, error) {
	cv, err := crossValidate(X, y, c.params.Folds, modelConfigFor(len(X)))
	if err != nil {
		return ensemble.Weights{}, err
	}

	weights, err := weightsFromValidation(cv.scores)
	if err != nil {
		return ensemble.Weights{}, err
	}
	cal.Validation = cv.scores
	cal.AccuracyAfter = cv.blendedAccuracy(weights)

	if c.params.Weights != nil {
		now := c.params.Clock()
		state := ModelState{
			Timestamp:  now,
			Weights:    weights,
			Validation: cv.scores,
			Version:    modelVersion(now),
		}
		if err := c.params.Weights.Save(ctx, state); err != nil {
			return ensemble.Weights{}, fmt.Errorf("save model state: %w", err)
		}
	}
	return weights, nil
}

// trainingData turns resolved predictions into samples. Callers hold mu.
func (c *Collector) trainingData() ([][]float64, []float64) {
	var X [][]float64
	var y []float64
	for _, id := range c.order {
		r := c.records[id]
		if !r.FeedbackReceived || r.ActualOutcome == nil {
			continue
		}
		X = append(X, r.Features.ToArray())
		y = append(y, r.ActualOutcome.ActualWeight)
	}
	return X, y
}

type modelConfig struct {
	Linear models.LinearOptions
	Forest models.ForestOptions
	Neural models.NeuralOptions
}

// modelConfigFor sizes the learners to the amount of feedback data.
func modelConfigFor(n int) modelConfig {
	linear := models.DefaultLinearOptions()
	linear.LearningRate = 0.01
	linear.RegularizationType = models.RegularizationL1
	if n > 50 {
		linear.LearningRate = 0.005
	}
	if n > 100 {
		linear.RegularizationType = models.RegularizationL2
	}
	linear.MaxIterations = min(1000, n*10)

	forest := models.DefaultForestOptions()
	forest.Trees = max(5, min(20, n/5))
	forest.MaxDepth = 6
	if n > 50 {
		forest.MaxDepth = 8
	}
	forest.Bootstrap = true

	neural := models.DefaultNeuralOptions()
	neural.Epochs = min(300, n*2)
	neural.Layers = []int{features.Size, 15, 10, 1}
	neural.Dropout = 0.2
	if n > 100 {
		neural.Layers = []int{features.Size, 20, 15, 10, 1}
	}
	if n > 50 {
		neural.Dropout = 0.3
	}

	return modelConfig{Linear: linear, Forest: forest, Neural: neural}
}

func (cfg modelConfig) learners() []models.Learner {
	return []models.Learner{
		models.NewLinear(cfg.Linear),
		models.NewForest(cfg.Forest),
		models.NewNeural(cfg.Neural),
	}
}

type crossValidation struct {
	scores map[string]FoldScore
	// held-out predictions per learner, aligned with targets
	predictions map[string][]float64
	targets     []float64
}

// crossValidate trains every learner type on k-1 folds and scores it on the
// held-out one, averaging MSE and R2 over the folds.
func crossValidate(X [][]float64, y []float64, folds int, cfg modelConfig) (crossValidation, error) {
	folds = min(folds, len(X))
	cv := crossValidation{
		scores:      make(map[string]FoldScore),
		predictions: make(map[string][]float64),
	}

	for fold := 0; fold < folds; fold++ {
		start, end := fold*len(X)/folds, (fold+1)*len(X)/folds
		if start == end {
			continue
		}
		trainX := append(append([][]float64{}, X[:start]...), X[end:]...)
		trainY := append(append([]float64{}, y[:start]...), y[end:]...)
		testX, testY := X[start:end], y[start:end]
		cv.targets = append(cv.targets, testY...)

		for _, l := range cfg.learners() {
			if _, err := l.Train(trainX, trainY); err != nil {
				return crossValidation{}, fmt.Errorf("fold %d: train %s: %w", fold, l.Name(), err)
			}
			predicted := make([]float64, len(testX))
			for i, x := range testX {
				p, err := l.Predict(features.FromArray(x))
				if err != nil {
					return crossValidation{}, fmt.Errorf("fold %d: predict %s: %w", fold, l.Name(), err)
				}
				predicted[i] = p.RawPrediction
			}
			cv.predictions[l.Name()] = append(cv.predictions[l.Name()], predicted...)

			reg := stats.Evaluate(predicted, testY)
			s := cv.scores[l.Name()]
			s.MSE += reg.MSE / float64(folds)
			s.R2 += reg.R2 / float64(folds)
			cv.scores[l.Name()] = s
		}
	}
	return cv, nil
}

// blendedAccuracy scores the weighted held-out predictions the way user
// feedback is scored.
func (cv crossValidation) blendedAccuracy(w ensemble.Weights) float64 {
	if len(cv.targets) == 0 {
		return 0
	}
	var sum float64
	for i, actual := range cv.targets {
		var blended float64
		for name, predicted := range cv.predictions {
			blended += w.Get(name) * predicted[i]
		}
		denominator := math.Max(math.Abs(blended), math.Abs(actual))
		if denominator == 0 {
			sum++
			continue
		}
		sum += math.Max(0, 1-math.Abs(blended-actual)/denominator)
	}
	return sum / float64(len(cv.targets))
}

func weightsFromValidation(scores map[string]FoldScore) (ensemble.Weights, error) {
	var w ensemble.Weights
	for _, name := range []string{models.NameLinear, models.NameForest, models.NameNeural} {
		s, ok := scores[name]
		if !ok {
			return ensemble.Weights{}, fmt.Errorf("no validation score for %s", name)
		}
		inverse := 1 / (s.MSE + inverseErrorOffset)
		switch name {
		case models.NameLinear:
			w.Linear = inverse
		case models.NameForest:
			w.Forest = inverse
		case models.NameNeural:
			w.Neural = inverse
		}
	}
	return w.Normalized()
}
