package models

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"

	"github.com/2beens/gymstats-predictor/internal/gymstats/features"
	"github.com/2beens/gymstats-predictor/internal/gymstats/stats"
)

const (
	RegularizationL1 = "l1"
	RegularizationL2 = "l2"
)

type LinearOptions struct {
	LearningRate       float64 `json:"learningRate"`
	Regularization     float64 `json:"regularization"`
	RegularizationType string  `json:"regularizationType"`
	MaxIterations      int     `json:"maxIterations"`
	Tolerance          float64 `json:"tolerance"`
	ValidationSplit    float64 `json:"validationSplit"`
	Seed               int64   `json:"seed"`
}

func DefaultLinearOptions() LinearOptions {
	return LinearOptions{
		LearningRate:       0.01,
		Regularization:     0.01,
		RegularizationType: RegularizationL2,
		MaxIterations:      1000,
		Tolerance:          1e-6,
		ValidationSplit:    0.2,
		Seed:               1,
	}
}

// Linear is a regularised linear regression trained by batch gradient descent
// on standardised features and target.
type Linear struct {
	opts LinearOptions

	weights         []float64
	bias            float64
	xScaler         scaler
	yScaler         targetScaler
	trainingSamples int
	trained         bool
}

func NewLinear(opts LinearOptions) *Linear {
	return &Linear{
		opts: opts,
	}
}

func (m *Linear) Name() string {
	return NameLinear
}

func (m *Linear) Train(X [][]float64, y []float64) (TrainingMetrics, error) {
	nFeatures, err := validateTrainingData(X, y)
	if err != nil {
		return TrainingMetrics{}, err
	}

	trainX, trainY, valX, valY := TemporalSplit(X, y, m.opts.ValidationSplit)
	xScaler := fitScaler(trainX)
	yScaler := fitTargetScaler(trainY)
	xs := xScaler.transformAll(trainX)
	ys := yScaler.transformAll(trainY)

	rng := rand.New(rand.NewSource(m.opts.Seed))
	limit := math.Sqrt(6 / float64(nFeatures+1))
	weights := make([]float64, nFeatures)
	for j := range weights {
		weights[j] = (rng.Float64()*2 - 1) * limit
	}
	bias := 0.0

	n := float64(len(xs))
	prevLoss := math.Inf(1)
	loss := 0.0
	iterations := 0
	gradW := make([]float64, nFeatures)
	for iterations < m.opts.MaxIterations {
		iterations++
		for j := range gradW {
			gradW[j] = 0
		}
		gradB := 0.0
		loss = 0

		for i, row := range xs {
			diff := dot(weights, row) + bias - ys[i]
			loss += diff * diff
			for j, v := range row {
				gradW[j] += diff * v
			}
			gradB += diff
		}
		loss /= n
		loss += m.penalty(weights)
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return TrainingMetrics{}, fmt.Errorf("linear: %w", ErrTrainingDiverged)
		}

		for j := range weights {
			g := gradW[j]/n + m.penaltyGradient(weights[j])
			weights[j] -= m.opts.LearningRate * g
		}
		bias -= m.opts.LearningRate * gradB / n

		if math.Abs(prevLoss-loss) < m.opts.Tolerance {
			break
		}
		prevLoss = loss
	}

	m.weights = weights
	m.bias = bias
	m.xScaler = xScaler
	m.yScaler = yScaler
	m.trainingSamples = len(trainX)
	m.trained = true

	metrics := TrainingMetrics{
		Model:             NameLinear,
		Samples:           len(X),
		TrainSamples:      len(trainX),
		ValidationSamples: len(valX),
		Iterations:        iterations,
		FinalLoss:         loss,
		TrainMSE:          stats.Evaluate(m.predictAll(trainX), trainY).MSE,
	}
	if len(valX) > 0 {
		metrics.ValidationMSE = stats.Evaluate(m.predictAll(valX), valY).MSE
		metrics.ValidationLoss = metrics.ValidationMSE / (yScaler.Std * yScaler.Std)
	}

	return metrics, nil
}

func (m *Linear) penalty(weights []float64) float64 {
	var p float64
	for _, w := range weights {
		if m.opts.RegularizationType == RegularizationL1 {
			p += math.Abs(w)
		} else {
			p += w * w
		}
	}
	return m.opts.Regularization * p
}

func (m *Linear) penaltyGradient(w float64) float64 {
	if m.opts.RegularizationType == RegularizationL1 {
		switch {
		case w > 0:
			return m.opts.Regularization
		case w < 0:
			return -m.opts.Regularization
		default:
			return 0
		}
	}
	return m.opts.Regularization * w
}

// PredictRaw returns the denormalised model output for a feature row.
func (m *Linear) PredictRaw(x []float64) (float64, error) {
	if !m.trained {
		return 0, ErrNotTrained
	}
	if len(x) != len(m.weights) {
		return 0, ErrDimensionMismatch
	}
	return m.yScaler.inverse(dot(m.weights, m.xScaler.transform(x)) + m.bias), nil
}

func (m *Linear) predictAll(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		out[i], _ = m.PredictRaw(row)
	}
	return out
}

func (m *Linear) Predict(fv features.Vector) (Prediction, error) {
	raw, err := m.PredictRaw(fv.ToArray())
	if err != nil {
		return Prediction{}, err
	}

	p := NewPrediction(raw, fv)

	confidence := 80.0
	switch {
	case m.trainingSamples < 5:
		confidence -= 30
	case m.trainingSamples < 10:
		confidence -= 15
	}
	if fv.ConsistencyScore > 70 {
		confidence += 10
	}
	confidence += constraintAdjustment(len(p.Constraints), 5, 5)
	p.Confidence = stats.Clamp(confidence, 20, 95)
	p.ModelInfo = ModelInfo{
		Name:            NameLinear,
		TrainingSamples: m.trainingSamples,
	}

	return p, nil
}

func (m *Linear) FeatureImportance() map[string]Importance {
	if !m.trained {
		return map[string]Importance{}
	}
	raw := make([]float64, len(m.weights))
	for j, w := range m.weights {
		raw[j] = math.Abs(w)
	}
	return rankImportance(raw)
}

type linearSnapshot struct {
	Type            string        `json:"type"`
	Options         LinearOptions `json:"options"`
	Weights         []float64     `json:"weights"`
	Bias            float64       `json:"bias"`
	XScaler         scaler        `json:"xScaler"`
	YScaler         targetScaler  `json:"yScaler"`
	TrainingSamples int           `json:"trainingSamples"`
}

func (m *Linear) Save() ([]byte, error) {
	if !m.trained {
		return nil, ErrNotTrained
	}
	return json.Marshal(linearSnapshot{
		Type:            NameLinear,
		Options:         m.opts,
		Weights:         m.weights,
		Bias:            m.bias,
		XScaler:         m.xScaler,
		YScaler:         m.yScaler,
		TrainingSamples: m.trainingSamples,
	})
}

func (m *Linear) Load(blob []byte) error {
	var s linearSnapshot
	if err := json.Unmarshal(blob, &s); err != nil {
		return fmt.Errorf("unmarshal linear snapshot: %w", err)
	}
	if s.Type != NameLinear {
		return fmt.Errorf("unexpected snapshot type %q", s.Type)
	}
	if len(s.Weights) == 0 || len(s.XScaler.Mean) != len(s.Weights) || len(s.XScaler.Std) != len(s.Weights) {
		return ErrDimensionMismatch
	}

	m.opts = s.Options
	m.weights = s.Weights
	m.bias = s.Bias
	m.xScaler = s.XScaler
	m.yScaler = s.YScaler
	m.trainingSamples = s.TrainingSamples
	m.trained = true
	return nil
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
