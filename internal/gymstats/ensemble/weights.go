package ensemble

import (
	"errors"
	"math"
	"time"

	"github.com/2beens/gymstats-predictor/internal/gymstats/models"
)

var ErrInvalidWeights = errors.New("invalid ensemble weights")

// Weights are the blending coefficients of the three learners. They always sum to 1.
type Weights struct {
	Linear float64 `json:"linear"`
	Forest float64 `json:"forest"`
	Neural float64 `json:"neural"`
}

func EqualWeights() Weights {
	return Weights{Linear: 1.0 / 3, Forest: 1.0 / 3, Neural: 1.0 / 3}
}

func (w Weights) Sum() float64 {
	return w.Linear + w.Forest + w.Neural
}

func (w Weights) Get(name string) float64 {
	switch name {
	case models.NameLinear:
		return w.Linear
	case models.NameForest:
		return w.Forest
	case models.NameNeural:
		return w.Neural
	default:
		return 0
	}
}

func (w *Weights) set(name string, v float64) {
	switch name {
	case models.NameLinear:
		w.Linear = v
	case models.NameForest:
		w.Forest = v
	case models.NameNeural:
		w.Neural = v
	}
}

// Normalized scales the weights to sum 1. Negative or all-zero weights are invalid.
func (w Weights) Normalized() (Weights, error) {
	for _, v := range []float64{w.Linear, w.Forest, w.Neural} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return Weights{}, ErrInvalidWeights
		}
	}
	sum := w.Sum()
	if sum <= 0 {
		return Weights{}, ErrInvalidWeights
	}
	return Weights{
		Linear: w.Linear / sum,
		Forest: w.Forest / sum,
		Neural: w.Neural / sum,
	}, nil
}

// Dominant returns the learner with the largest weight.
func (w Weights) Dominant() (string, float64) {
	name, best := models.NameLinear, w.Linear
	if w.Forest > best {
		name, best = models.NameForest, w.Forest
	}
	if w.Neural > best {
		name, best = models.NameNeural, w.Neural
	}
	return name, best
}

const (
	UpdateOptimization = "optimization"
	UpdateRealWorld    = "real_world_update"
	UpdateExternal     = "external"
)

type WeightUpdate struct {
	Weights      Weights            `json:"weights"`
	Performances map[string]float64 `json:"performances,omitempty"`
	Type         string             `json:"type"`
	Timestamp    time.Time          `json:"timestamp"`
}

// inverseErrorWeights maps per-learner errors to weights proportional to 1/(err+eps).
func inverseErrorWeights(errs map[string]float64, eps float64) (Weights, error) {
	var w Weights
	for _, name := range learnerNames {
		e, ok := errs[name]
		if !ok {
			continue
		}
		w.set(name, 1/(e+eps))
	}
	return w.Normalized()
}

var learnerNames = []string{models.NameLinear, models.NameForest, models.NameNeural}
