// Package models holds the three base learners of the weight predictor. They
// share the Learner interface, consume feature vectors through
// features.Vector.ToArray and pass every prediction through the constraint
// validator before returning it.
package models

import (
	"errors"
	"math"
	"sort"
	"strconv"

	"github.com/2beens/gymstats-predictor/internal/gymstats/constraints"
	"github.com/2beens/gymstats-predictor/internal/gymstats/features"
	"github.com/2beens/gymstats-predictor/internal/gymstats/stats"
)

var (
	ErrEmptyTrainingData = errors.New("empty training data")
	ErrDimensionMismatch = errors.New("feature dimension mismatch")
	ErrNotTrained        = errors.New("model not trained")
	ErrTrainingDiverged  = errors.New("training diverged")
)

const (
	NameLinear = "linear"
	NameForest = "forest"
	NameNeural = "neural"
)

//go:generate mockgen -source=$GOFILE -destination=../ensemble/mocks_test.go -package=ensemble_test

type Learner interface {
	Name() string
	Train(X [][]float64, y []float64) (TrainingMetrics, error)
	Predict(fv features.Vector) (Prediction, error)
	FeatureImportance() map[string]Importance
	Save() ([]byte, error)
	Load(blob []byte) error
}

type TrainingMetrics struct {
	Model             string  `json:"model"`
	Samples           int     `json:"samples"`
	TrainSamples      int     `json:"trainSamples"`
	ValidationSamples int     `json:"validationSamples"`
	Iterations        int     `json:"iterations"`
	FinalLoss         float64 `json:"finalLoss"`
	ValidationLoss    float64 `json:"validationLoss"`
	TrainMSE          float64 `json:"trainMse"`
	ValidationMSE     float64 `json:"validationMse"`
	OOBScore          float64 `json:"oobScore,omitempty"`
	EarlyStopped      bool    `json:"earlyStopped,omitempty"`
}

type Importance struct {
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

type ModelInfo struct {
	Name            string `json:"name"`
	TrainingSamples int    `json:"trainingSamples"`
	Trees           int    `json:"trees,omitempty"`
	Layers          []int  `json:"layers,omitempty"`
}

type Prediction struct {
	RawPrediction       float64   `json:"rawPrediction"`
	ValidatedPrediction float64   `json:"validatedPrediction"`
	Increment           float64   `json:"increment"`
	Confidence          float64   `json:"confidence"`
	Uncertainty         float64   `json:"uncertainty"`
	Constraints         []string  `json:"constraints"`
	Recommendations     []string  `json:"recommendations"`
	ModelInfo           ModelInfo `json:"modelInfo"`
}

// NewPrediction runs the raw model output through the constraint validator.
func NewPrediction(raw float64, fv features.Vector) Prediction {
	res := constraints.Validate(raw, fv.CurrentWeight, fv.UserLevel, fv.ExerciseType)
	return Prediction{
		RawPrediction:       raw,
		ValidatedPrediction: res.ValidatedWeight,
		Increment:           res.Increment,
		Constraints:         res.AppliedConstraints,
		Recommendations:     res.Recommendations,
	}
}

// constraintAdjustment rewards an unconstrained prediction and penalises each applied constraint.
func constraintAdjustment(applied int, bonus, penalty float64) float64 {
	if applied == 0 {
		return bonus
	}
	return -penalty * float64(applied)
}

func validateTrainingData(X [][]float64, y []float64) (int, error) {
	if len(X) == 0 || len(y) == 0 {
		return 0, ErrEmptyTrainingData
	}
	if len(X) != len(y) {
		return 0, ErrDimensionMismatch
	}
	nFeatures := len(X[0])
	if nFeatures == 0 {
		return 0, ErrEmptyTrainingData
	}
	for _, row := range X {
		if len(row) != nFeatures {
			return 0, ErrDimensionMismatch
		}
	}
	return nFeatures, nil
}

// TemporalSplit keeps the earliest samples for training and the most recent ones
// for validation. Too small inputs are kept whole for training.
func TemporalSplit(X [][]float64, y []float64, validationSplit float64) (trainX [][]float64, trainY []float64, valX [][]float64, valY []float64) {
	idx := int(math.Floor(float64(len(X)) * (1 - validationSplit)))
	if idx < 1 || idx >= len(X) {
		return X, y, nil, nil
	}
	return X[:idx], y[:idx], X[idx:], y[idx:]
}

// scaler standardises columns with statistics of the training set.
type scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

func fitScaler(X [][]float64) scaler {
	nFeatures := len(X[0])
	s := scaler{
		Mean: make([]float64, nFeatures),
		Std:  make([]float64, nFeatures),
	}
	column := make([]float64, len(X))
	for j := 0; j < nFeatures; j++ {
		for i, row := range X {
			column[i] = row[j]
		}
		s.Mean[j] = stats.Mean(column)
		s.Std[j] = nonZero(stats.StdDev(column))
	}
	return s
}

func (s scaler) transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return out
}

func (s scaler) transformAll(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		out[i] = s.transform(row)
	}
	return out
}

type targetScaler struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

func fitTargetScaler(y []float64) targetScaler {
	return targetScaler{
		Mean: stats.Mean(y),
		Std:  nonZero(stats.StdDev(y)),
	}
}

func (s targetScaler) transformAll(y []float64) []float64 {
	out := make([]float64, len(y))
	for i, v := range y {
		out[i] = (v - s.Mean) / s.Std
	}
	return out
}

func (s targetScaler) inverse(v float64) float64 {
	return v*s.Std + s.Mean
}

func nonZero(std float64) float64 {
	if std == 0 || math.IsNaN(std) {
		return 1
	}
	return std
}

// rankImportance normalises raw scores to sum 1 and ranks them, 1 being the most important.
func rankImportance(raw []float64) map[string]Importance {
	names := features.Names()
	var total float64
	for _, v := range raw {
		total += v
	}

	type scored struct {
		name  string
		score float64
	}
	scores := make([]scored, 0, len(raw))
	for i, v := range raw {
		name := "feature_" + strconv.Itoa(i)
		if i < len(names) {
			name = names[i]
		}
		score := 0.0
		if total > 0 {
			score = v / total
		}
		scores = append(scores, scored{name: name, score: score})
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})

	out := make(map[string]Importance, len(scores))
	for rank, s := range scores {
		out[s.name] = Importance{Score: s.score, Rank: rank + 1}
	}
	return out
}
