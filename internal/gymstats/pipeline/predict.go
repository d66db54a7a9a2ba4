package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/2beens/gymstats-predictor/internal/gymstats/constraints"
	"github.com/2beens/gymstats-predictor/internal/gymstats/ensemble"
	"github.com/2beens/gymstats-predictor/internal/gymstats/features"
	"github.com/2beens/gymstats-predictor/internal/gymstats/learning"
	"github.com/2beens/gymstats-predictor/internal/gymstats/plateau"
	"github.com/2beens/gymstats-predictor/internal/gymstats/workouts"
	"github.com/2beens/gymstats-predictor/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	fallbackIncrement  = 0.5
	fallbackConfidence = 60
	analyzeConcurrency = 4
)

var severityPenalty = map[plateau.Severity]float64{
	plateau.SeverityMild:     0.8,
	plateau.SeverityModerate: 0.6,
	plateau.SeveritySevere:   0.4,
	plateau.SeverityCritical: 0.2,
}

type Source string

const (
	SourceEnsemble Source = "ensemble"
	SourceFallback Source = "fallback"
	SourceError    Source = "error"
)

type Options struct {
	BypassCache bool
	// Level overrides the level the pipeline was initialized with.
	Level constraints.Level
}

type InsightLevel string

const (
	InsightPositive InsightLevel = "positive"
	InsightNeutral  InsightLevel = "neutral"
	InsightWarning  InsightLevel = "warning"
	InsightCritical InsightLevel = "critical"
)

type Insight struct {
	Type    string       `json:"type"`
	Level   InsightLevel `json:"level"`
	Message string       `json:"message"`
}

type KeyFeatures struct {
	CurrentWeight      float64                  `json:"currentWeight"`
	Progression2Weeks  float64                  `json:"progression2Weeks"`
	Frequency2Weeks    float64                  `json:"frequency2Weeks"`
	ConsistencyScore   float64                  `json:"consistencyScore"`
	ExerciseExperience int                      `json:"exerciseExperience"`
	ExerciseType       constraints.ExerciseType `json:"exerciseType"`
	UserLevel          constraints.Level        `json:"userLevel"`
}

type PredictionQuality struct {
	Score float64 `json:"score"`
	Level string  `json:"level"`
}

type ModelInfo struct {
	Mode            Mode              `json:"mode"`
	TrainingSamples int               `json:"trainingSamples,omitempty"`
	Weights         *ensemble.Weights `json:"weights,omitempty"`
	Diversity       string            `json:"diversity,omitempty"`
	DominantModel   string            `json:"dominantModel,omitempty"`
}

type Result struct {
	ExerciseName    string                     `json:"exerciseName"`
	PredictedWeight float64                    `json:"predictedWeight"`
	CurrentWeight   float64                    `json:"currentWeight"`
	Increment       float64                    `json:"increment"`
	Confidence      float64                    `json:"confidence"`
	Source          Source                     `json:"source"`
	Reasoning       string                     `json:"reasoning"`
	Constraints     []string                   `json:"constraints"`
	Recommendations []string                   `json:"recommendations"`
	Insights        []Insight                  `json:"insights"`
	Explainability  []string                   `json:"explainability"`
	KeyFeatures     KeyFeatures                `json:"keyFeatures"`
	Plateau         *plateau.Analysis          `json:"plateauAnalysis,omitempty"`
	Safety          *constraints.Safety        `json:"safety,omitempty"`
	Validation      *learning.ValidationReport `json:"validation,omitempty"`
	DataQuality     PredictionQuality          `json:"dataQuality"`
	ModelInfo       ModelInfo                  `json:"modelInfo"`
	Features        features.Vector            `json:"features"`
	Timestamp       time.Time                  `json:"timestamp"`
	FromCache       bool                       `json:"fromCache"`
	Error           string                     `json:"error,omitempty"`
}

// Tracked is the part of the result the feedback collector scores.
func (r Result) Tracked() learning.Tracked {
	return learning.Tracked{
		NextWeight: r.PredictedWeight,
		Confidence: r.Confidence,
		Source:     string(r.Source),
	}
}

type candidate struct {
	weight          float64
	confidence      float64
	source          Source
	constraints     []string
	recommendations []string
	info            ModelInfo
}

// Predict serves the next session weight of one exercise. It only fails before
// Initialize or after Close, every other problem degrades into a fallback or
// error result.
func (p *Pipeline) Predict(ctx context.Context, exerciseName string, sessions []workouts.Session, opts Options) (res Result, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "pipeline.predict")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	p.mu.RLock()
	state, mode, e, level, gen := p.state, p.mode, p.ensemble, p.level, p.generation
	p.mu.RUnlock()
	if err := servable(state); err != nil {
		return Result{}, err
	}

	if opts.Level != "" {
		level = constraints.ParseLevel(string(opts.Level))
	}
	if level == "" {
		level = features.DetermineLevel(sessions)
	}

	key := cacheKey(exerciseName, sessions, level)
	if !opts.BypassCache {
		var cached Result
		if p.cache.Get(key, &cached) {
			cached.FromCache = true
			p.record(cached)
			return cached, nil
		}
	}

	res = p.predict(ctx, exerciseName, sessions, level, mode, e)
	if res.Source != SourceError {
		p.cacheResult(key, res, gen)
	}
	p.record(res)

	return res, nil
}

func servable(state State) error {
	switch state {
	case StateReady:
		return nil
	case StateClosed:
		return ErrClosed
	default:
		return ErrNotInitialized
	}
}

// cacheResult stores res unless the model that computed it was replaced, or
// the cache cleared, after the prediction started.
func (p *Pipeline) cacheResult(key string, res Result, gen uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.generation != gen {
		log.Debugf("pipeline: prediction for [%s] is stale, not cached", res.ExerciseName)
		return
	}
	if err := p.cache.Set(key, res); err != nil {
		log.Warnf("pipeline: cache prediction for [%s]: %s", res.ExerciseName, err)
	}
}

func cacheKey(exerciseName string, sessions []workouts.Session, level constraints.Level) string {
	return fmt.Sprintf("%s|%s|%d|%s",
		exerciseName,
		workouts.LastDate(sessions).Format(time.RFC3339),
		len(sessions),
		level,
	)
}

func (p *Pipeline) record(res Result) {
	p.mu.Lock()
	p.totalPredictions++
	p.confidenceSum += res.Confidence
	p.mu.Unlock()

	if m := p.params.Metrics; m != nil {
		m.CounterPredictions.WithLabelValues(string(res.Source)).Inc()
		m.GaugeCacheEntries.Set(float64(p.cache.EntryCount()))
	}
}

func (p *Pipeline) predict(ctx context.Context, exerciseName string, sessions []workouts.Session, level constraints.Level, mode Mode, e *ensemble.Ensemble) Result {
	_, span := tracing.GlobalTracer.Start(ctx, "pipeline.predict.compute")
	defer span.End()

	now := p.params.Clock()
	history := workouts.ExtractHistory(exerciseName, sessions)
	fv := p.params.Engineer.FromHistory(exerciseName, history, level)
	if len(history) == 0 {
		return noDataResult(exerciseName, fv, now)
	}

	analysis := p.params.Detector.Analyze(exerciseName, history, fv.UserLevel)

	var c candidate
	if mode == ModeEnsemble && e != nil && fv.DataPoints >= p.params.MinDataPoints {
		pred, err := e.Predict(fv)
		if err != nil {
			log.Errorf("pipeline: ensemble prediction for [%s]: %s", exerciseName, err)
			return errorResult(exerciseName, fv, err, now)
		}
		c = fromEnsemble(pred, mode)
	} else {
		c = ruleBased(fv, mode)
	}

	c.applyPlateauPenalty(fv, analysis)
	c.applyLevelCap(fv)

	safety := constraints.CheckSafety(c.weight, fv.CurrentWeight, workouts.Weights(history))
	validation := p.validator.Validate(learning.Tracked{
		NextWeight: c.weight,
		Confidence: c.confidence,
		Source:     string(c.source),
	}, fv, history)

	res := Result{
		ExerciseName:    exerciseName,
		PredictedWeight: c.weight,
		CurrentWeight:   fv.CurrentWeight,
		Increment:       roundKilos(c.weight - fv.CurrentWeight),
		Confidence:      math.Round(validation.Confidence*10) / 10,
		Source:          c.source,
		Constraints:     c.constraints,
		KeyFeatures:     keyFeatures(fv),
		Plateau:         &analysis,
		Safety:          &safety,
		Validation:      &validation,
		DataQuality:     predictionQuality(fv),
		ModelInfo:       c.info,
		Features:        fv,
		Timestamp:       now,
	}
	res.Insights = insights(res, fv, analysis, c.info)
	res.Recommendations = recommendations(c.recommendations, res.Insights, fv, analysis, safety)
	res.Explainability = explain(res, fv)
	res.Reasoning = reasoning(res, fv)

	return res
}

func fromEnsemble(pred ensemble.Prediction, mode Mode) candidate {
	dominant, _ := pred.Weights.Dominant()
	weights := pred.Weights
	return candidate{
		weight:          pred.ValidatedPrediction,
		confidence:      pred.Confidence,
		source:          SourceEnsemble,
		constraints:     append([]string{}, pred.Constraints...),
		recommendations: append([]string{}, pred.Recommendations...),
		info: ModelInfo{
			Mode:            mode,
			TrainingSamples: pred.ModelInfo.TrainingSamples,
			Weights:         &weights,
			Diversity:       pred.Diversity.Level,
			DominantModel:   dominant,
		},
	}
}

// ruleBased progresses by half a kilo, or by half the recent progression when
// the exercise is trained regularly.
func ruleBased(fv features.Vector, mode Mode) candidate {
	increment := fallbackIncrement
	if fv.Progression2Weeks > 0 && fv.Frequency2Weeks >= 2 {
		increment = math.Min(1, fv.Progression2Weeks*0.5)
	}

	validated := constraints.Validate(fv.CurrentWeight+increment, fv.CurrentWeight, fv.UserLevel, fv.ExerciseType)
	return candidate{
		weight:          validated.ValidatedWeight,
		confidence:      fallbackConfidence,
		source:          SourceFallback,
		constraints:     append([]string{"rule based progression"}, validated.AppliedConstraints...),
		recommendations: validated.Recommendations,
		info: ModelInfo{
			Mode: mode,
		},
	}
}

func (c *candidate) applyPlateauPenalty(fv features.Vector, analysis plateau.Analysis) {
	factor, ok := severityPenalty[analysis.OverallSeverity]
	if !analysis.HasPlateaus || !ok || c.weight <= fv.CurrentWeight {
		return
	}

	increment := floorToPlate((c.weight - fv.CurrentWeight) * factor)
	c.weight = fv.CurrentWeight + increment
	c.constraints = append(c.constraints, fmt.Sprintf(
		"plateau adjustment (%s): progression reduced by %.0f%%",
		analysis.OverallSeverity, (1-factor)*100,
	))
}

func (c *candidate) applyLevelCap(fv features.Vector) {
	limit := constraints.ProgressionRange(fv.UserLevel).Max * constraints.Multiplier(fv.ExerciseType)
	if c.weight-fv.CurrentWeight <= limit {
		return
	}
	c.weight = fv.CurrentWeight + floorToPlate(limit)
	c.constraints = append(c.constraints, fmt.Sprintf("level cap (%s): max +%gkg", fv.UserLevel, limit))
}

// roundKilos drops the float noise of weight arithmetic, 63.9+1.25-63.9 is 1.25.
func roundKilos(w float64) float64 {
	return math.Round(w*1e9) / 1e9
}

// floorToPlate returns the largest plate increment not above increment, or 0.
func floorToPlate(increment float64) float64 {
	best := 0.0
	for _, plate := range constraints.PlateIncrements {
		if plate <= increment+1e-9 && plate > best {
			best = plate
		}
	}
	return best
}

func keyFeatures(fv features.Vector) KeyFeatures {
	return KeyFeatures{
		CurrentWeight:      fv.CurrentWeight,
		Progression2Weeks:  fv.Progression2Weeks,
		Frequency2Weeks:    fv.Frequency2Weeks,
		ConsistencyScore:   fv.ConsistencyScore,
		ExerciseExperience: fv.ExerciseExperience,
		ExerciseType:       fv.ExerciseType,
		UserLevel:          fv.UserLevel,
	}
}

func predictionQuality(fv features.Vector) PredictionQuality {
	score := 100.0
	if fv.DataPoints < 5 {
		score -= 30
	}
	if fv.ConsistencyScore < 50 {
		score -= 20
	}
	if fv.ExerciseExperience < 3 {
		score -= 10
	}
	return PredictionQuality{
		Score: score,
		Level: qualityLevel(score),
	}
}

func insights(res Result, fv features.Vector, analysis plateau.Analysis, info ModelInfo) []Insight {
	var out []Insight

	switch {
	case res.Increment >= 1:
		out = append(out, Insight{Type: "progression", Level: InsightPositive, Message: fmt.Sprintf("Strong progression predicted: +%.1fkg", res.Increment)})
	case res.Increment > 0:
		out = append(out, Insight{Type: "progression", Level: InsightPositive, Message: fmt.Sprintf("Moderate progression predicted: +%.1fkg", res.Increment)})
	default:
		out = append(out, Insight{Type: "progression", Level: InsightNeutral, Message: "Keep the current weight"})
	}

	if fv.DataPoints < 5 {
		out = append(out, Insight{Type: "data", Level: InsightWarning, Message: fmt.Sprintf("Little data available (%d sessions)", fv.DataPoints)})
	} else if fv.ConsistencyScore > 70 {
		out = append(out, Insight{Type: "data", Level: InsightPositive, Message: "Very consistent training data"})
	}

	if analysis.HasPlateaus {
		weeks := 0
		for _, pl := range analysis.DetectedPlateaus {
			weeks = max(weeks, pl.WeeksStuck)
		}
		level := InsightWarning
		if analysis.OverallSeverity == plateau.SeveritySevere || analysis.OverallSeverity == plateau.SeverityCritical {
			level = InsightCritical
		}
		out = append(out, Insight{Type: "plateau", Level: level, Message: fmt.Sprintf("%s plateau for %d weeks", analysis.OverallSeverity, weeks)})
	}

	switch info.Diversity {
	case ensemble.DiversityLow:
		out = append(out, Insight{Type: "model", Level: InsightPositive, Message: "The models agree, the prediction is reliable"})
	case ensemble.DiversityVeryHigh:
		out = append(out, Insight{Type: "model", Level: InsightWarning, Message: "The models disagree, the prediction is uncertain"})
	}

	return out
}

func recommendations(base []string, in []Insight, fv features.Vector, analysis plateau.Analysis, safety constraints.Safety) []string {
	out := appendUnique(nil, base...)

	for _, i := range in {
		switch {
		case i.Type == "plateau" && i.Level == InsightCritical:
			out = appendUnique(out, "Change the training program", "Deload for two weeks at -20% intensity")
		case i.Type == "data" && i.Level == InsightWarning:
			out = appendUnique(out, "Log more sessions of this exercise to improve the predictions")
		case i.Type == "progression" && i.Level == InsightPositive:
			out = appendUnique(out, "Good progression, keep it up")
		}
	}

	switch {
	case fv.Frequency2Weeks < 2:
		out = appendUnique(out, "Train this exercise more often")
	case fv.Frequency2Weeks > 6:
		out = appendUnique(out, "Possible overtraining, consider more rest")
	}

	if fv.IsCompound {
		out = appendUnique(out, "Compound exercise: focus on technique")
	} else {
		out = appendUnique(out, "Isolation exercise: work on volume and reps")
	}

	if analysis.HasPlateaus {
		out = appendUnique(out, analysis.Recommendations...)
	}
	if !safety.IsSafe {
		out = appendUnique(out, safety.Recommendations...)
	}
	return out
}

func explain(res Result, fv features.Vector) []string {
	var out []string
	if res.Source == SourceEnsemble {
		out = append(out, "Prediction based on 3 ML models")
		if res.ModelInfo.Weights != nil {
			name, weight := res.ModelInfo.Weights.Dominant()
			out = append(out, fmt.Sprintf("Main model: %s (%.0f%%)", name, weight*100))
		}
	} else {
		out = append(out, "Rule based progression, no trained model was used")
	}
	out = append(out, fmt.Sprintf("Based on %d data points", fv.DataPoints))
	if fv.ConsistencyScore > 70 {
		out = append(out, "Very consistent training data")
	}
	return out
}

func reasoning(res Result, fv features.Vector) string {
	var sb strings.Builder
	if res.Increment > 0 {
		fmt.Fprintf(&sb, "Increase %s from %gkg to %gkg (+%gkg)", res.ExerciseName, res.CurrentWeight, res.PredictedWeight, res.Increment)
	} else {
		fmt.Fprintf(&sb, "Keep %s at %gkg", res.ExerciseName, res.CurrentWeight)
	}
	fmt.Fprintf(&sb, ", %s prediction from %d sessions at %s level", res.Source, fv.DataPoints, fv.UserLevel)
	if len(res.Constraints) > 0 {
		fmt.Fprintf(&sb, " (%s)", strings.Join(res.Constraints, "; "))
	}
	return sb.String()
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}

func noDataResult(exerciseName string, fv features.Vector, now time.Time) Result {
	return Result{
		ExerciseName:    exerciseName,
		Confidence:      0,
		Source:          SourceFallback,
		Reasoning:       fmt.Sprintf("No recorded sessions of %s", exerciseName),
		Constraints:     []string{"no data"},
		Recommendations: []string{"Start logging your sets for this exercise"},
		Insights: []Insight{
			{Type: "data", Level: InsightWarning, Message: "No data available for this exercise"},
		},
		Explainability: []string{"No history to base a prediction on"},
		KeyFeatures:    keyFeatures(fv),
		DataQuality:    PredictionQuality{Score: 0, Level: qualityLevel(0)},
		ModelInfo:      ModelInfo{Mode: ModeFallback},
		Features:       fv,
		Timestamp:      now,
	}
}

func errorResult(exerciseName string, fv features.Vector, err error, now time.Time) Result {
	return Result{
		ExerciseName:    exerciseName,
		PredictedWeight: fv.CurrentWeight,
		CurrentWeight:   fv.CurrentWeight,
		Confidence:      0,
		Source:          SourceError,
		Reasoning:       "Prediction failed, keep the current weight",
		Constraints:     []string{},
		Recommendations: []string{"Check the recorded sets of this exercise"},
		Insights: []Insight{
			{Type: "error", Level: InsightCritical, Message: "Prediction failed"},
		},
		Explainability: []string{},
		KeyFeatures:    keyFeatures(fv),
		DataQuality:    predictionQuality(fv),
		Features:       fv,
		Timestamp:      now,
		Error:          err.Error(),
	}
}

// AnalyzeAllExercises predicts every exercise of the history concurrently. A
// failing exercise gets an error result and never affects the others.
func (p *Pipeline) AnalyzeAllExercises(ctx context.Context, sessions []workouts.Session) (map[string]Result, error) {
	if err := servable(p.State()); err != nil {
		return nil, err
	}

	names := workouts.ExerciseNames(sessions)
	results := make(map[string]Result, len(names))

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(analyzeConcurrency)
	for _, name := range names {
		g.Go(func() error {
			res, err := p.Predict(ctx, name, sessions, Options{})
			if err != nil {
				res = errorResult(name, features.Default(name, ""), err, p.params.Clock())
			}
			mu.Lock()
			results[name] = res
			mu.Unlock()
			return nil
		})
	}
	// goroutines never fail
	_ = g.Wait()

	return results, nil
}
