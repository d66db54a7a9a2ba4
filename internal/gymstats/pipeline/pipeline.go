// Package pipeline orchestrates the weight predictor: it trains the ensemble
// from the workout history, serves predictions with their insights and keeps
// the continuous learning loop wired to the live ensemble.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/2beens/gymstats-predictor/internal/cache"
	"github.com/2beens/gymstats-predictor/internal/gymstats/constraints"
	"github.com/2beens/gymstats-predictor/internal/gymstats/ensemble"
	"github.com/2beens/gymstats-predictor/internal/gymstats/features"
	"github.com/2beens/gymstats-predictor/internal/gymstats/learning"
	"github.com/2beens/gymstats-predictor/internal/gymstats/plateau"
	"github.com/2beens/gymstats-predictor/internal/gymstats/snapshots"
	"github.com/2beens/gymstats-predictor/internal/gymstats/workouts"
	"github.com/2beens/gymstats-predictor/internal/telemetry/metrics"
	"github.com/2beens/gymstats-predictor/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
)

const (
	EnsembleSnapshotKey  = "ensemble"
	defaultMinDataPoints = 3
)

var (
	ErrNotInitialized   = errors.New("pipeline not initialized")
	ErrInitializing     = errors.New("pipeline initialization in progress")
	ErrNoTrainedModel   = errors.New("no trained model")
	ErrSnapshotsMissing = errors.New("snapshot store not configured")
	ErrClosed           = errors.New("pipeline closed")
)

// State is the lifecycle of the pipeline. Whether a ready pipeline serves the
// ensemble or the rules is its Mode.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateClosed        State = "closed"
)

type Mode string

const (
	ModeNone     Mode = "none"
	ModeEnsemble Mode = "ensemble"
	ModeFallback Mode = "fallback"
)

type InitStatus string

const (
	InitTrained          InitStatus = "trained"
	InitFallback         InitStatus = "fallback"
	InitInsufficientData InitStatus = "insufficient_data"
)

// User describes whose history is being trained on. An empty level is
// derived from the workout history.
type User struct {
	ID    string            `json:"id"`
	Level constraints.Level `json:"level"`
}

type Params struct {
	// Snapshots persists ensemble snapshots and recalibrated weights, nil
	// disables both.
	Snapshots snapshots.Store
	Cache     *cache.PredictionCache
	Metrics   *metrics.Manager

	// NewEnsemble builds the ensemble trained by Initialize.
	NewEnsemble func(cfg ensemble.Config) *ensemble.Ensemble

	Engineer *features.Engineer
	Detector *plateau.Detector

	// Learning configures the feedback collector, its OnRecalibrated and
	// Weights fields are owned by the pipeline.
	Learning learning.Params

	MinDataPoints int
	Clock         func() time.Time
}

func (p Params) withDefaults() Params {
	if p.Cache == nil {
		p.Cache = cache.NewPredictionCache(cache.DefaultSize, cache.DefaultTTL)
	}
	if p.NewEnsemble == nil {
		p.NewEnsemble = ensemble.New
	}
	if p.Engineer == nil {
		p.Engineer = features.NewEngineer()
	}
	if p.Detector == nil {
		p.Detector = plateau.NewDetector(plateau.DefaultOptions())
	}
	if p.MinDataPoints <= 0 {
		p.MinDataPoints = defaultMinDataPoints
	}
	if p.Clock == nil {
		p.Clock = time.Now
	}
	return p
}

// Pipeline owns the ensemble, the prediction cache, the feedback collector
// and the validator. All methods are safe for concurrent use.
type Pipeline struct {
	params    Params
	cache     *cache.PredictionCache
	collector *learning.Collector
	validator *learning.Validator
	weights   *learning.WeightsStore

	mu               sync.RWMutex
	state            State
	mode             Mode
	ensemble         *ensemble.Ensemble
	level            constraints.Level
	trainingProgress float64
	lastTraining     time.Time
	totalPredictions int
	confidenceSum    float64
	// generation moves on whenever cached predictions go stale.
	generation uint64
}

func New(params Params) *Pipeline {
	params = params.withDefaults()

	p := &Pipeline{
		params:    params,
		cache:     params.Cache,
		validator: learning.NewValidator(),
		state:     StateUninitialized,
		mode:      ModeNone,
	}
	if params.Snapshots != nil {
		p.weights = learning.NewWeightsStore(params.Snapshots)
	}

	lp := params.Learning
	lp.Weights = p.weights
	lp.OnRecalibrated = p.applyRecalibratedWeights
	if lp.Metrics == nil {
		lp.Metrics = params.Metrics
	}
	if lp.Clock == nil {
		lp.Clock = params.Clock
	}
	p.collector = learning.NewCollector(lp)

	return p
}

type DataQuality struct {
	Score           float64  `json:"score"`
	Level           string   `json:"level"`
	Issues          []string `json:"issues"`
	TotalWorkouts   int      `json:"totalWorkouts"`
	UniqueExercises int      `json:"uniqueExercises"`
	ValidExercises  int      `json:"validExercises"`
}

type ModelValidation struct {
	IsValid  bool     `json:"isValid"`
	MSE      float64  `json:"mse"`
	R2       float64  `json:"r2"`
	Warnings []string `json:"warnings"`
}

type InitResult struct {
	Status            InitStatus               `json:"status"`
	Level             constraints.Level        `json:"userLevel"`
	ExercisesAnalyzed int                      `json:"exercisesAnalyzed"`
	TrainingSamples   int                      `json:"trainingSamples"`
	ModelsInitialized bool                     `json:"modelsInitialized"`
	FallbackMode      bool                     `json:"fallbackMode"`
	DataQuality       DataQuality              `json:"dataQuality"`
	Training          *ensemble.TrainingReport `json:"trainingResults,omitempty"`
	Validation        *ModelValidation         `json:"validation,omitempty"`
	Duration          time.Duration            `json:"duration"`
	Warning           string                   `json:"warning,omitempty"`
	Error             string                   `json:"error,omitempty"`
}

// Initialize trains a new ensemble on the workout history. Training failures
// leave the pipeline ready in fallback mode, they are reported in the result.
// A Close racing the training wins and Initialize returns ErrClosed.
func (p *Pipeline) Initialize(ctx context.Context, sessions []workouts.Session, user User) (res InitResult, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "pipeline.initialize")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	p.mu.Lock()
	switch p.state {
	case StateInitializing:
		p.mu.Unlock()
		return InitResult{}, ErrInitializing
	case StateClosed:
		p.mu.Unlock()
		return InitResult{}, ErrClosed
	}
	p.state = StateInitializing
	p.mu.Unlock()
	p.setProgress(0)

	started := p.params.Clock()
	level := user.Level
	if level == "" {
		level = features.DetermineLevel(sessions)
	} else {
		level = constraints.ParseLevel(string(level))
	}

	res = InitResult{
		Level:       level,
		DataQuality: analyzeDataQuality(sessions),
	}

	if len(sessions) == 0 {
		res.Status = InitInsufficientData
		res.FallbackMode = true
		res.Warning = "No workout data, predictions use the rule based fallback"
		err = p.finishInitialize(nil, level, &res, started)
		return res, err
	}

	names := workouts.ExerciseNames(sessions)
	res.ExercisesAnalyzed = len(names)
	p.setProgress(10)

	X, y := p.trainingData(ctx, sessions, names, level)
	res.TrainingSamples = len(X)
	p.setProgress(30)

	if len(X) < p.params.MinDataPoints {
		res.Status = InitFallback
		res.FallbackMode = true
		res.Warning = fmt.Sprintf("Only %d training samples, predictions use the rule based fallback", len(X))
		err = p.finishInitialize(nil, level, &res, started)
		return res, err
	}

	e := p.params.NewEnsemble(trainingConfig(len(X)))
	trainStarted := time.Now()
	report, trainErr := e.Train(X, y)
	if p.params.Metrics != nil {
		p.params.Metrics.HistTrainingDuration.Observe(time.Since(trainStarted).Seconds())
	}
	p.setProgress(80)

	if trainErr != nil {
		log.Errorf("pipeline: ensemble training failed, falling back to rules: %s", trainErr)
		res.Status = InitFallback
		res.FallbackMode = true
		res.Error = trainErr.Error()
		err = p.finishInitialize(nil, level, &res, started)
		return res, err
	}

	res.Status = InitTrained
	res.ModelsInitialized = true
	res.Training = &report
	res.Validation = validateModel(report)
	p.setProgress(95)

	err = p.finishInitialize(e, level, &res, started)
	return res, err
}

// finishInitialize swaps the trained ensemble in, or switches to fallback
// mode when e is nil, and marks the pipeline ready. A pipeline closed while
// training ran stays closed and the trained ensemble is dropped.
func (p *Pipeline) finishInitialize(e *ensemble.Ensemble, level constraints.Level, res *InitResult, started time.Time) error {
	now := p.params.Clock()
	res.Duration = now.Sub(started)

	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		log.Warnf("pipeline: closed during initialization, [%s] result discarded", res.Status)
		return ErrClosed
	}
	if e != nil {
		p.ensemble = e
		p.mode = ModeEnsemble
	} else {
		p.mode = ModeFallback
	}
	p.level = level
	p.lastTraining = now
	p.trainingProgress = 100
	p.state = StateReady
	p.mu.Unlock()

	// cached results were computed by the previous model
	p.ClearCaches()

	if m := p.params.Metrics; m != nil {
		m.CounterTrainingRuns.WithLabelValues(string(res.Status)).Inc()
		m.GaugeTrainingProgress.Set(100)
	}

	log.Infof("pipeline: initialized with status [%s], %d samples over %d exercises, level %s",
		res.Status, res.TrainingSamples, res.ExercisesAnalyzed, level)
	return nil
}

func (p *Pipeline) setProgress(progress float64) {
	p.mu.Lock()
	p.trainingProgress = progress
	p.mu.Unlock()
	if p.params.Metrics != nil {
		p.params.Metrics.GaugeTrainingProgress.Set(progress)
	}
}

// trainingData replays every exercise history: the features of all sessions up
// to point i-1 predict the weight lifted at point i. The replay cuts by session
// position, sessions sharing a date never see each other's future.
func (p *Pipeline) trainingData(ctx context.Context, sessions []workouts.Session, names []string, level constraints.Level) ([][]float64, []float64) {
	_, span := tracing.GlobalTracer.Start(ctx, "pipeline.training_data")
	defer span.End()

	var (
		X       [][]float64
		y       []float64
		ordered = workouts.Chronological(sessions)
	)
	for _, name := range names {
		history := workouts.ExtractHistory(name, ordered)
		at := workouts.Positions(name, ordered)
		if len(history) < 3 || len(at) != len(history) {
			continue
		}
		for i := 2; i < len(history); i++ {
			prior := ordered[:at[i-1]+1]
			fv := p.params.Engineer.Extract(name, prior, level)
			target := history[i].Weight
			if target <= 0 || fv.CurrentWeight <= 0 {
				continue
			}
			X = append(X, fv.ToArray())
			y = append(y, target)
		}
	}
	return X, y
}

// trainingConfig adapts the learner sizes to the number of samples.
func trainingConfig(samples int) ensemble.Config {
	cfg := ensemble.DefaultConfig()
	n := float64(samples)

	switch {
	case samples < 20:
		cfg.ValidationSplit = 0.1
		cfg.Linear.MaxIterations = 500
		cfg.Linear.Regularization = 0.05
		cfg.Forest.Trees = 8
		cfg.Forest.MaxDepth = 4
		cfg.Neural.Epochs = 100
		cfg.Neural.BatchSize = max(4, int(n*0.3))
	case samples < 100:
		cfg.ValidationSplit = 0.2
		cfg.Linear.MaxIterations = 1000
		cfg.Linear.Regularization = 0.01
		cfg.Forest.Trees = 12
		cfg.Forest.MaxDepth = 5
		cfg.Neural.Epochs = 200
		cfg.Neural.BatchSize = max(8, int(n*0.2))
	default:
		cfg.ValidationSplit = 0.2
		cfg.Linear.MaxIterations = 1500
		cfg.Linear.Regularization = 0.01
		cfg.Forest.Trees = 15
		cfg.Forest.MaxDepth = 6
		cfg.Neural.Epochs = 300
		cfg.Neural.BatchSize = max(16, int(n*0.15))
	}
	return cfg
}

func validateModel(report ensemble.TrainingReport) *ModelValidation {
	v := &ModelValidation{
		IsValid:  true,
		MSE:      report.EnsemblePerformance.MSE,
		R2:       report.EnsemblePerformance.R2,
		Warnings: []string{},
	}
	if report.ValidationSamples == 0 {
		v.Warnings = append(v.Warnings, "No validation samples, the ensemble was not scored")
		return v
	}
	if v.MSE > 10 {
		v.Warnings = append(v.Warnings, "High validation error")
	}
	if v.R2 < 0.3 {
		v.Warnings = append(v.Warnings, "Low explained variance")
	}
	return v
}

func analyzeDataQuality(sessions []workouts.Session) DataQuality {
	q := DataQuality{
		Score:         100,
		Issues:        []string{},
		TotalWorkouts: len(sessions),
	}

	unique := make(map[string]bool)
	for _, s := range sessions {
		for _, e := range s.Exercises {
			if e.Name == "" {
				continue
			}
			unique[e.Name] = true
			for _, set := range e.Sets {
				if set.Weight > 0 && set.Reps > 0 {
					q.ValidExercises++
					break
				}
			}
		}
	}
	q.UniqueExercises = len(unique)

	if q.TotalWorkouts < 5 {
		q.Score -= 30
		q.Issues = append(q.Issues, "Too few workouts")
	}
	if q.UniqueExercises < 3 {
		q.Score -= 20
		q.Issues = append(q.Issues, "Too little exercise variety")
	}
	if q.ValidExercises < 10 {
		q.Score -= 25
		q.Issues = append(q.Issues, "Too few valid exercise entries")
	}
	q.Score = max(0, q.Score)
	q.Level = qualityLevel(q.Score)
	return q
}

func qualityLevel(score float64) string {
	switch {
	case score > 80:
		return "high"
	case score > 60:
		return "medium"
	default:
		return "low"
	}
}

// applyRecalibratedWeights moves the live ensemble onto recalibrated weights.
func (p *Pipeline) applyRecalibratedWeights(w ensemble.Weights) {
	p.mu.RLock()
	e := p.ensemble
	p.mu.RUnlock()
	if e == nil || !e.Trained() {
		log.Debugf("pipeline: recalibrated weights %+v ignored, no trained ensemble", w)
		return
	}

	if err := e.SetWeights(w); err != nil {
		log.Errorf("pipeline: apply recalibrated weights: %s", err)
		return
	}
	p.ClearCaches()
	log.Infof("pipeline: recalibrated weights applied: %+v", w)
}

// EnsembleWeights returns the live blending weights, if an ensemble is trained.
func (p *Pipeline) EnsembleWeights() (ensemble.Weights, bool) {
	p.mu.RLock()
	e := p.ensemble
	p.mu.RUnlock()
	if e == nil || !e.Trained() {
		return ensemble.Weights{}, false
	}
	return e.Weights(), true
}

func (p *Pipeline) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

type PipelineMetrics struct {
	TotalPredictions  int       `json:"totalPredictions"`
	AverageConfidence float64   `json:"averageConfidence"`
	AverageAccuracy   float64   `json:"averageAccuracy"`
	IsInitialized     bool      `json:"isInitialized"`
	IsTraining        bool      `json:"isTraining"`
	TrainingProgress  float64   `json:"trainingProgress"`
	CacheSize         int64     `json:"cacheSize"`
	Mode              Mode      `json:"mode"`
	State             State     `json:"state"`
	LastTraining      time.Time `json:"lastTraining"`
}

func (p *Pipeline) Metrics() PipelineMetrics {
	accuracy := p.collector.AverageAccuracy()

	p.mu.RLock()
	defer p.mu.RUnlock()

	m := PipelineMetrics{
		TotalPredictions: p.totalPredictions,
		AverageAccuracy:  accuracy * 100,
		IsInitialized:    p.state == StateReady,
		IsTraining:       p.state == StateInitializing,
		TrainingProgress: p.trainingProgress,
		CacheSize:        p.cache.EntryCount(),
		Mode:             p.mode,
		State:            p.state,
		LastTraining:     p.lastTraining,
	}
	if p.totalPredictions > 0 {
		m.AverageConfidence = p.confidenceSum / float64(p.totalPredictions)
	}
	return m
}

func (p *Pipeline) ClearCaches() {
	p.mu.Lock()
	p.generation++
	p.cache.Clear()
	p.mu.Unlock()
	if p.params.Metrics != nil {
		p.params.Metrics.GaugeCacheEntries.Set(0)
	}
}

// Close ends the pipeline lifecycle, later predictions fail with ErrClosed.
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.state = StateClosed
	p.ensemble = nil
	p.mode = ModeNone
	p.mu.Unlock()
	p.ClearCaches()
}
