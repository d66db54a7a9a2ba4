package ensemble

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/2beens/gymstats-predictor/internal/gymstats/constraints"
	"github.com/2beens/gymstats-predictor/internal/gymstats/features"
	"github.com/2beens/gymstats-predictor/internal/gymstats/models"
	"github.com/2beens/gymstats-predictor/internal/gymstats/stats"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

const (
	inverseErrorEpsilon = 1e-8
	updateAlpha         = 0.1
)

type Config struct {
	Linear          models.LinearOptions `json:"linear"`
	Forest          models.ForestOptions `json:"forest"`
	Neural          models.NeuralOptions `json:"neural"`
	ValidationSplit float64              `json:"validationSplit"`
	// OptimizedShare of the final weights comes from the validation errors,
	// UniformShare from an even split across learners.
	OptimizedShare float64 `json:"optimizedShare"`
	UniformShare   float64 `json:"uniformShare"`
}

func DefaultConfig() Config {
	forest := models.DefaultForestOptions()
	forest.Trees = 15
	forest.MaxDepth = 6
	forest.MinSamplesSplit = 3

	neural := models.DefaultNeuralOptions()
	neural.Layers = []int{15, 12, 8, 4, 1}
	neural.Epochs = 300
	neural.BatchSize = 16
	neural.Dropout = 0.3

	return Config{
		Linear:          models.DefaultLinearOptions(),
		Forest:          forest,
		Neural:          neural,
		ValidationSplit: 0.2,
		OptimizedShare:  0.7,
		UniformShare:    0.3,
	}
}

type TrainingReport struct {
	Individual          map[string]stats.Regression       `json:"individualPerformances"`
	Training            map[string]models.TrainingMetrics `json:"training"`
	Weights             Weights                           `json:"ensembleWeights"`
	EnsemblePerformance stats.Regression                  `json:"ensemblePerformance"`
	FeatureImportance   map[string]models.Importance      `json:"featureImportance"`
	TrainSamples        int                               `json:"trainSamples"`
	ValidationSamples   int                               `json:"validationSamples"`
}

type Diversity struct {
	Mean     float64            `json:"mean"`
	Variance float64            `json:"variance"`
	StdDev   float64            `json:"standardDeviation"`
	Range    float64            `json:"range"`
	Min      float64            `json:"min"`
	Max      float64            `json:"max"`
	Level    string             `json:"diversityLevel"`
	Values   map[string]float64 `json:"individualValues"`
}

type Prediction struct {
	models.Prediction
	Individual map[string]models.Prediction `json:"individual"`
	Diversity  Diversity                    `json:"diversityAnalysis"`
	Weights    Weights                      `json:"weights"`
}

// Ensemble blends a linear model, a random forest and a neural network with
// performance-derived weights.
type Ensemble struct {
	cfg      Config
	learners map[string]models.Learner

	mu      sync.RWMutex
	weights Weights
	history []WeightUpdate
	report  TrainingReport
	trained bool
}

func New(cfg Config) *Ensemble {
	return NewWithLearners(
		cfg,
		models.NewLinear(cfg.Linear),
		models.NewForest(cfg.Forest),
		models.NewNeural(cfg.Neural),
	)
}

func NewWithLearners(cfg Config, linear, forest, neural models.Learner) *Ensemble {
	return &Ensemble{
		cfg: cfg,
		learners: map[string]models.Learner{
			models.NameLinear: linear,
			models.NameForest: forest,
			models.NameNeural: neural,
		},
		weights: EqualWeights(),
	}
}

func (e *Ensemble) Trained() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.trained
}

func (e *Ensemble) Weights() Weights {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.weights
}

func (e *Ensemble) WeightHistory() []WeightUpdate {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]WeightUpdate(nil), e.history...)
}

func (e *Ensemble) Report() TrainingReport {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.report
}

// Train fits the three learners concurrently on the earliest samples and
// derives the blending weights from their errors on the most recent ones.
func (e *Ensemble) Train(X [][]float64, y []float64) (TrainingReport, error) {
	if len(X) == 0 || len(y) == 0 {
		return TrainingReport{}, models.ErrEmptyTrainingData
	}
	if len(X) != len(y) {
		return TrainingReport{}, models.ErrDimensionMismatch
	}

	trainX, trainY, valX, valY := models.TemporalSplit(X, y, e.cfg.ValidationSplit)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		errs    error
		metrics = make(map[string]models.TrainingMetrics, len(learnerNames))
	)
	for _, name := range learnerNames {
		wg.Add(1)
		go func(name string, l models.Learner) {
			defer wg.Done()
			m, err := l.Train(trainX, trainY)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("train %s: %w", name, err))
				return
			}
			metrics[name] = m
		}(name, e.learners[name])
	}
	wg.Wait()
	if errs != nil {
		return TrainingReport{}, errs
	}

	report := TrainingReport{
		Individual:        make(map[string]stats.Regression, len(learnerNames)),
		Training:          metrics,
		TrainSamples:      len(trainX),
		ValidationSamples: len(valX),
	}

	weights := EqualWeights()
	if len(valX) > 0 {
		rawByLearner := make(map[string][]float64, len(learnerNames))
		mse := make(map[string]float64, len(learnerNames))
		for _, name := range learnerNames {
			raw, err := e.rawPredictions(e.learners[name], valX)
			if err != nil {
				return TrainingReport{}, fmt.Errorf("validate %s: %w", name, err)
			}
			rawByLearner[name] = raw
			perf := stats.Evaluate(raw, valY)
			report.Individual[name] = perf
			mse[name] = perf.MSE
		}

		optimized, err := inverseErrorWeights(mse, inverseErrorEpsilon)
		if err == nil {
			weights = e.blend(optimized)
		}

		combined := make([]float64, len(valY))
		for i := range combined {
			for _, name := range learnerNames {
				combined[i] += weights.Get(name) * rawByLearner[name][i]
			}
		}
		report.EnsemblePerformance = stats.Evaluate(combined, valY)
	}

	report.Weights = weights
	report.FeatureImportance = e.globalImportance(weights)

	e.mu.Lock()
	e.weights = weights
	e.report = report
	e.trained = true
	e.history = append(e.history, WeightUpdate{
		Weights:   weights,
		Type:      UpdateOptimization,
		Timestamp: time.Now(),
	})
	e.mu.Unlock()

	log.Debugf("ensemble trained on %d samples (%d validation), weights %+v", len(trainX), len(valX), weights)

	return report, nil
}

// blend moves the optimised weights toward a uniform split to keep every learner in play.
func (e *Ensemble) blend(optimized Weights) Weights {
	uniform := 1.0 / float64(len(learnerNames))
	blended := Weights{
		Linear: e.cfg.OptimizedShare*optimized.Linear + e.cfg.UniformShare*uniform,
		Forest: e.cfg.OptimizedShare*optimized.Forest + e.cfg.UniformShare*uniform,
		Neural: e.cfg.OptimizedShare*optimized.Neural + e.cfg.UniformShare*uniform,
	}
	normalized, err := blended.Normalized()
	if err != nil {
		return EqualWeights()
	}
	return normalized
}

func (e *Ensemble) rawPredictions(l models.Learner, X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, row := range X {
		p, err := l.Predict(features.FromArray(row))
		if err != nil {
			return nil, err
		}
		out[i] = p.RawPrediction
	}
	return out, nil
}

// globalImportance combines the linear and forest importances by their ensemble weights.
func (e *Ensemble) globalImportance(w Weights) map[string]models.Importance {
	combined := make(map[string]float64)
	for _, name := range []string{models.NameLinear, models.NameForest} {
		for feature, imp := range e.learners[name].FeatureImportance() {
			combined[feature] += imp.Score * w.Get(name)
		}
	}

	ranked := make([]string, 0, len(combined))
	for feature := range combined {
		ranked = append(ranked, feature)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if combined[ranked[i]] == combined[ranked[j]] {
			return ranked[i] < ranked[j]
		}
		return combined[ranked[i]] > combined[ranked[j]]
	})

	out := make(map[string]models.Importance, len(ranked))
	for i, feature := range ranked {
		out[feature] = models.Importance{Score: combined[feature], Rank: i + 1}
	}
	return out
}

func (e *Ensemble) FeatureImportance() map[string]models.Importance {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.report.FeatureImportance
}

// Predict blends the raw learner outputs and runs the constraint validator once.
func (e *Ensemble) Predict(fv features.Vector) (Prediction, error) {
	e.mu.RLock()
	trained, weights := e.trained, e.weights
	e.mu.RUnlock()
	if !trained {
		return Prediction{}, models.ErrNotTrained
	}

	individual := make(map[string]models.Prediction, len(learnerNames))
	raw := 0.0
	weightedConfidence := 0.0
	for _, name := range learnerNames {
		p, err := e.learners[name].Predict(fv)
		if err != nil {
			return Prediction{}, fmt.Errorf("predict %s: %w", name, err)
		}
		individual[name] = p
		raw += weights.Get(name) * p.RawPrediction
		weightedConfidence += weights.Get(name) * p.Confidence
	}

	validated := constraints.Validate(raw, fv.CurrentWeight, fv.UserLevel, fv.ExerciseType)
	diversity := analyzeDiversity(individual)

	confidence := weightedConfidence + diversityBonus(diversity.StdDev) - 2*float64(len(validated.AppliedConstraints))

	return Prediction{
		Prediction: models.Prediction{
			RawPrediction:       raw,
			ValidatedPrediction: validated.ValidatedWeight,
			Increment:           validated.Increment,
			Confidence:          stats.Clamp(confidence, 40, 98),
			Uncertainty:         diversity.StdDev,
			Constraints:         validated.AppliedConstraints,
			Recommendations:     recommendations(validated.Recommendations, diversity, weights),
			ModelInfo: models.ModelInfo{
				Name:            "ensemble",
				TrainingSamples: e.Report().TrainSamples,
			},
		},
		Individual: individual,
		Diversity:  diversity,
		Weights:    weights,
	}, nil
}

func diversityBonus(std float64) float64 {
	switch {
	case std < 0.5:
		return 5
	case std < 1:
		return 3
	case std < 2:
		return -2
	default:
		return -5
	}
}

const (
	DiversityLow      = "low"
	DiversityModerate = "moderate"
	DiversityHigh     = "high"
	DiversityVeryHigh = "very_high"
)

func analyzeDiversity(individual map[string]models.Prediction) Diversity {
	values := make([]float64, 0, len(learnerNames))
	byName := make(map[string]float64, len(learnerNames))
	for _, name := range learnerNames {
		v := individual[name].RawPrediction
		values = append(values, v)
		byName[name] = v
	}

	d := Diversity{
		Mean:     stats.Mean(values),
		Variance: stats.Variance(values),
		StdDev:   stats.StdDev(values),
		Min:      stats.Min(values),
		Max:      stats.Max(values),
		Values:   byName,
	}
	d.Range = d.Max - d.Min

	switch {
	case d.StdDev < 0.5:
		d.Level = DiversityLow
	case d.StdDev < 1:
		d.Level = DiversityModerate
	case d.StdDev < 2:
		d.Level = DiversityHigh
	default:
		d.Level = DiversityVeryHigh
	}
	return d
}

func recommendations(base []string, d Diversity, w Weights) []string {
	recs := append([]string{}, base...)
	switch d.Level {
	case DiversityVeryHigh:
		recs = append(recs,
			"Models disagree strongly: progress with caution",
			"Rely on how your recent sessions felt",
		)
	case DiversityLow:
		recs = append(recs,
			"Models agree: the prediction is reliable",
			"You can follow this recommendation with confidence",
		)
	}

	if name, weight := w.Dominant(); weight > 0.5 {
		recs = append(recs, fmt.Sprintf("Prediction mostly driven by the %s model", name))
	} else {
		recs = append(recs, "Prediction balanced across all models")
	}
	return recs
}

// UpdateWeights moves the weights toward inverse-error weights of observed
// real-world errors, without retraining the learners.
func (e *Ensemble) UpdateWeights(errs map[string]float64) {
	if len(errs) == 0 {
		return
	}

	var inv Weights
	total := 0.0
	for _, name := range learnerNames {
		if v, ok := errs[name]; ok && v >= 0 {
			x := 1 / (v + inverseErrorEpsilon)
			inv.set(name, x)
			total += x
		}
	}
	if total == 0 || math.IsInf(total, 0) {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	updated := e.weights
	for _, name := range learnerNames {
		if _, ok := errs[name]; !ok {
			continue
		}
		updated.set(name, (1-updateAlpha)*e.weights.Get(name)+updateAlpha*inv.Get(name)/total)
	}
	normalized, err := updated.Normalized()
	if err != nil {
		return
	}

	e.weights = normalized
	e.history = append(e.history, WeightUpdate{
		Weights:      normalized,
		Performances: errs,
		Type:         UpdateRealWorld,
		Timestamp:    time.Now(),
	})
}

// SetWeights applies externally derived weights, normalised to sum 1.
func (e *Ensemble) SetWeights(w Weights) error {
	normalized, err := w.Normalized()
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.weights = normalized
	e.history = append(e.history, WeightUpdate{
		Weights:   normalized,
		Type:      UpdateExternal,
		Timestamp: time.Now(),
	})
	return nil
}

// Evaluate scores the blended raw predictions against targets.
func (e *Ensemble) Evaluate(X [][]float64, y []float64) (stats.Regression, error) {
	if !e.Trained() {
		return stats.Regression{}, models.ErrNotTrained
	}
	weights := e.Weights()
	combined := make([]float64, len(X))
	for _, name := range learnerNames {
		raw, err := e.rawPredictions(e.learners[name], X)
		if err != nil {
			return stats.Regression{}, err
		}
		for i, v := range raw {
			combined[i] += weights.Get(name) * v
		}
	}
	return stats.Evaluate(combined, y), nil
}

type snapshot struct {
	Config   Config                     `json:"config"`
	Weights  Weights                    `json:"weights"`
	Report   TrainingReport             `json:"report"`
	Learners map[string]json.RawMessage `json:"learners"`
}

// Save returns the nested JSON snapshot of weights and learners.
func (e *Ensemble) Save() ([]byte, error) {
	if !e.Trained() {
		return nil, models.ErrNotTrained
	}

	s := snapshot{
		Config:   e.cfg,
		Weights:  e.Weights(),
		Report:   e.Report(),
		Learners: make(map[string]json.RawMessage, len(learnerNames)),
	}
	for _, name := range learnerNames {
		blob, err := e.learners[name].Save()
		if err != nil {
			return nil, fmt.Errorf("save %s: %w", name, err)
		}
		s.Learners[name] = blob
	}
	return json.Marshal(s)
}

func (e *Ensemble) Load(blob []byte) error {
	var s snapshot
	if err := json.Unmarshal(blob, &s); err != nil {
		return fmt.Errorf("unmarshal ensemble snapshot: %w", err)
	}
	weights, err := s.Weights.Normalized()
	if err != nil {
		return err
	}
	for _, name := range learnerNames {
		raw, ok := s.Learners[name]
		if !ok {
			return fmt.Errorf("ensemble snapshot: missing %s learner", name)
		}
		if err := e.learners[name].Load(raw); err != nil {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = s.Config
	e.weights = weights
	e.report = s.Report
	e.trained = true
	return nil
}
