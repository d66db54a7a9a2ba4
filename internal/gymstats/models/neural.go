package models

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"

	"github.com/2beens/gymstats-predictor/internal/gymstats/features"
	"github.com/2beens/gymstats-predictor/internal/gymstats/stats"
)

type NeuralOptions struct {
	Layers          []int   `json:"layers"`
	LearningRate    float64 `json:"learningRate"`
	Epochs          int     `json:"epochs"`
	BatchSize       int     `json:"batchSize"`
	L2              float64 `json:"l2"`
	Dropout         float64 `json:"dropout"`
	Patience        int     `json:"patience"`
	ValidationSplit float64 `json:"validationSplit"`
	Seed            int64   `json:"seed"`
}

func DefaultNeuralOptions() NeuralOptions {
	return NeuralOptions{
		Layers:          []int{15, 10, 5, 1},
		LearningRate:    0.001,
		Epochs:          500,
		BatchSize:       32,
		L2:              0.01,
		Dropout:         0.2,
		Patience:        50,
		ValidationSplit: 0.2,
		Seed:            1,
	}
}

// layer is fully connected: W[out][in].
type layer struct {
	W [][]float64 `json:"w"`
	B []float64   `json:"b"`
}

func (l layer) clone() layer {
	c := layer{
		W: make([][]float64, len(l.W)),
		B: append([]float64(nil), l.B...),
	}
	for j := range l.W {
		c.W[j] = append([]float64(nil), l.W[j]...)
	}
	return c
}

// Neural is a fully connected network with ReLU hidden layers and a linear
// output, trained by mini-batch SGD with dropout and early stopping.
type Neural struct {
	opts NeuralOptions

	layers          []layer
	xScaler         scaler
	yScaler         targetScaler
	finalLoss       float64
	bestValLoss     float64
	trainingSamples int
	trained         bool
}

func NewNeural(opts NeuralOptions) *Neural {
	return &Neural{
		opts: opts,
	}
}

func (m *Neural) Name() string {
	return NameNeural
}

// architecture pins the input width to the data and the output to a single unit.
func (m *Neural) architecture(nFeatures int) []int {
	sizes := append([]int(nil), m.opts.Layers...)
	if len(sizes) < 2 {
		sizes = []int{nFeatures, 1}
	}
	sizes[0] = nFeatures
	sizes[len(sizes)-1] = 1
	return sizes
}

func initLayers(sizes []int, rng *rand.Rand) []layer {
	layers := make([]layer, len(sizes)-1)
	for l := range layers {
		in, out := sizes[l], sizes[l+1]
		limit := math.Sqrt(6 / float64(in+out))
		layers[l] = layer{
			W: make([][]float64, out),
			B: make([]float64, out),
		}
		for j := 0; j < out; j++ {
			layers[l].W[j] = make([]float64, in)
			for i := 0; i < in; i++ {
				layers[l].W[j][i] = (rng.Float64()*2 - 1) * limit
			}
		}
	}
	return layers
}

// forward returns the activations of every layer, input included. With masks,
// hidden activations go through inverted dropout.
func forward(layers []layer, x []float64, masks [][]float64) [][]float64 {
	activations := make([][]float64, len(layers)+1)
	activations[0] = x
	for l, ly := range layers {
		prev := activations[l]
		out := make([]float64, len(ly.W))
		last := l == len(layers)-1
		for j, w := range ly.W {
			z := dot(w, prev) + ly.B[j]
			if !last {
				z = math.Max(0, z)
				if masks != nil {
					z *= masks[l][j]
				}
			}
			out[j] = z
		}
		activations[l+1] = out
	}
	return activations
}

func (m *Neural) dropoutMasks(rng *rand.Rand) [][]float64 {
	masks := make([][]float64, len(m.layers)-1)
	keep := 1 - m.opts.Dropout
	for l := range masks {
		masks[l] = make([]float64, len(m.layers[l].W))
		for j := range masks[l] {
			if m.opts.Dropout <= 0 {
				masks[l][j] = 1
			} else if rng.Float64() < keep {
				masks[l][j] = 1 / keep
			}
		}
	}
	return masks
}

func zeroGradients(layers []layer) []layer {
	grads := make([]layer, len(layers))
	for l, ly := range layers {
		grads[l] = layer{
			W: make([][]float64, len(ly.W)),
			B: make([]float64, len(ly.B)),
		}
		for j := range ly.W {
			grads[l].W[j] = make([]float64, len(ly.W[j]))
		}
	}
	return grads
}

// backward accumulates the gradients of (p-t)²/2 for one sample. The dropout
// mask of the forward pass scales the hidden deltas the same way.
func backward(layers []layer, activations [][]float64, masks [][]float64, target float64, grads []layer) float64 {
	out := activations[len(activations)-1][0]
	diff := out - target
	delta := []float64{diff}

	for l := len(layers) - 1; l >= 0; l-- {
		input := activations[l]
		for j, d := range delta {
			for i, a := range input {
				grads[l].W[j][i] += d * a
			}
			grads[l].B[j] += d
		}
		if l == 0 {
			break
		}

		prevDelta := make([]float64, len(input))
		for i := range input {
			if input[i] <= 0 {
				continue
			}
			var sum float64
			for j, d := range delta {
				sum += layers[l].W[j][i] * d
			}
			if masks != nil {
				sum *= masks[l-1][i]
			}
			prevDelta[i] = sum
		}
		delta = prevDelta
	}

	return diff * diff / 2
}

func (m *Neural) Train(X [][]float64, y []float64) (TrainingMetrics, error) {
	nFeatures, err := validateTrainingData(X, y)
	if err != nil {
		return TrainingMetrics{}, err
	}

	trainX, trainY, valX, valY := TemporalSplit(X, y, m.opts.ValidationSplit)
	xScaler := fitScaler(trainX)
	yScaler := fitTargetScaler(trainY)
	xs := xScaler.transformAll(trainX)
	ys := yScaler.transformAll(trainY)
	var vxs [][]float64
	var vys []float64
	if len(valX) > 0 {
		vxs = xScaler.transformAll(valX)
		vys = yScaler.transformAll(valY)
	}

	rng := rand.New(rand.NewSource(m.opts.Seed))
	sizes := m.architecture(nFeatures)
	m.layers = initLayers(sizes, rng)

	batchSize := max(1, m.opts.BatchSize)
	order := make([]int, len(xs))
	for i := range order {
		order[i] = i
	}

	best := cloneLayers(m.layers)
	bestLoss := math.Inf(1)
	wait := 0
	epochs := 0
	trainLoss := 0.0
	earlyStopped := false

	for epoch := 0; epoch < m.opts.Epochs; epoch++ {
		epochs++
		// Fisher-Yates
		for i := len(order) - 1; i > 0; i-- {
			j := rng.Intn(i + 1)
			order[i], order[j] = order[j], order[i]
		}

		trainLoss = 0
		for start := 0; start < len(order); start += batchSize {
			end := min(start+batchSize, len(order))
			grads := zeroGradients(m.layers)
			for _, idx := range order[start:end] {
				masks := m.dropoutMasks(rng)
				activations := forward(m.layers, xs[idx], masks)
				trainLoss += backward(m.layers, activations, masks, ys[idx], grads)
			}
			m.update(grads, float64(end-start))
		}
		trainLoss /= float64(len(order))
		if math.IsNaN(trainLoss) || math.IsInf(trainLoss, 0) {
			return TrainingMetrics{}, fmt.Errorf("neural: %w", ErrTrainingDiverged)
		}

		monitored := trainLoss
		if len(vxs) > 0 {
			monitored = m.loss(vxs, vys)
		}
		if monitored < bestLoss {
			bestLoss = monitored
			best = cloneLayers(m.layers)
			wait = 0
		} else {
			wait++
			if m.opts.Patience > 0 && wait >= m.opts.Patience {
				earlyStopped = true
				break
			}
		}
	}

	m.layers = best
	m.xScaler = xScaler
	m.yScaler = yScaler
	m.finalLoss = trainLoss
	m.bestValLoss = bestLoss
	m.trainingSamples = len(trainX)
	m.trained = true

	metrics := TrainingMetrics{
		Model:             NameNeural,
		Samples:           len(X),
		TrainSamples:      len(trainX),
		ValidationSamples: len(valX),
		Iterations:        epochs,
		FinalLoss:         trainLoss,
		ValidationLoss:    bestLoss,
		TrainMSE:          stats.Evaluate(m.predictAll(trainX), trainY).MSE,
		EarlyStopped:      earlyStopped,
	}
	if len(valX) > 0 {
		metrics.ValidationMSE = stats.Evaluate(m.predictAll(valX), valY).MSE
	}
	return metrics, nil
}

// update applies the batch-averaged gradients with L2 weight decay.
func (m *Neural) update(grads []layer, batch float64) {
	lr := m.opts.LearningRate
	for l := range m.layers {
		for j := range m.layers[l].W {
			for i := range m.layers[l].W[j] {
				g := grads[l].W[j][i]/batch + m.opts.L2*m.layers[l].W[j][i]
				m.layers[l].W[j][i] -= lr * g
			}
			m.layers[l].B[j] -= lr * grads[l].B[j] / batch
		}
	}
}

func (m *Neural) loss(xs [][]float64, ys []float64) float64 {
	var total float64
	for i, x := range xs {
		d := forward(m.layers, x, nil)[len(m.layers)][0] - ys[i]
		total += d * d / 2
	}
	return total / float64(len(xs))
}

func cloneLayers(layers []layer) []layer {
	c := make([]layer, len(layers))
	for i, l := range layers {
		c[i] = l.clone()
	}
	return c
}

func (m *Neural) PredictRaw(x []float64) (float64, error) {
	if !m.trained {
		return 0, ErrNotTrained
	}
	if len(x) != len(m.xScaler.Mean) {
		return 0, ErrDimensionMismatch
	}
	out := forward(m.layers, m.xScaler.transform(x), nil)[len(m.layers)][0]
	return m.yScaler.inverse(out), nil
}

func (m *Neural) predictAll(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		out[i], _ = m.PredictRaw(row)
	}
	return out
}

func (m *Neural) Predict(fv features.Vector) (Prediction, error) {
	raw, err := m.PredictRaw(fv.ToArray())
	if err != nil {
		return Prediction{}, err
	}

	p := NewPrediction(raw, fv)

	confidence := 75.0
	switch {
	case m.finalLoss < 0.5:
		confidence += 15
	case m.finalLoss < 1:
		confidence += 10
	case m.finalLoss > 2:
		confidence -= 15
	}
	switch {
	case m.bestValLoss < 0.5:
		confidence += 10
	case m.bestValLoss > 1:
		confidence -= 10
	}
	confidence += constraintAdjustment(len(p.Constraints), 5, 3)
	p.Confidence = stats.Clamp(confidence, 25, 90)
	p.ModelInfo = ModelInfo{
		Name:            NameNeural,
		TrainingSamples: m.trainingSamples,
		Layers:          m.sizes(),
	}

	return p, nil
}

func (m *Neural) sizes() []int {
	if len(m.layers) == 0 {
		return nil
	}
	sizes := []int{len(m.layers[0].W[0])}
	for _, l := range m.layers {
		sizes = append(sizes, len(l.W))
	}
	return sizes
}

// FeatureImportance is the mean absolute first-layer weight of every input.
func (m *Neural) FeatureImportance() map[string]Importance {
	if !m.trained {
		return map[string]Importance{}
	}
	first := m.layers[0]
	raw := make([]float64, len(first.W[0]))
	for _, w := range first.W {
		for i, v := range w {
			raw[i] += math.Abs(v) / float64(len(first.W))
		}
	}
	return rankImportance(raw)
}

type neuralSnapshot struct {
	Type            string        `json:"type"`
	Options         NeuralOptions `json:"options"`
	Layers          []layer       `json:"layers"`
	XScaler         scaler        `json:"xScaler"`
	YScaler         targetScaler  `json:"yScaler"`
	FinalLoss       float64       `json:"finalLoss"`
	BestValLoss     float64       `json:"bestValLoss"`
	TrainingSamples int           `json:"trainingSamples"`
}

func (m *Neural) Save() ([]byte, error) {
	if !m.trained {
		return nil, ErrNotTrained
	}
	return json.Marshal(neuralSnapshot{
		Type:            NameNeural,
		Options:         m.opts,
		Layers:          m.layers,
		XScaler:         m.xScaler,
		YScaler:         m.yScaler,
		FinalLoss:       m.finalLoss,
		BestValLoss:     m.bestValLoss,
		TrainingSamples: m.trainingSamples,
	})
}

func (m *Neural) Load(blob []byte) error {
	var s neuralSnapshot
	if err := json.Unmarshal(blob, &s); err != nil {
		return fmt.Errorf("unmarshal neural snapshot: %w", err)
	}
	if s.Type != NameNeural {
		return fmt.Errorf("unexpected snapshot type %q", s.Type)
	}
	if len(s.Layers) == 0 || len(s.Layers[0].W) == 0 {
		return ErrEmptyTrainingData
	}
	in := len(s.XScaler.Mean)
	for _, l := range s.Layers {
		if len(l.W) != len(l.B) {
			return fmt.Errorf("neural snapshot: %w", ErrDimensionMismatch)
		}
		for _, w := range l.W {
			if len(w) != in {
				return fmt.Errorf("neural snapshot: %w", ErrDimensionMismatch)
			}
		}
		in = len(l.W)
	}
	if in != 1 {
		return fmt.Errorf("neural snapshot: %w", ErrDimensionMismatch)
	}

	m.opts = s.Options
	m.layers = s.Layers
	m.xScaler = s.XScaler
	m.yScaler = s.YScaler
	m.finalLoss = s.FinalLoss
	m.bestValLoss = s.BestValLoss
	m.trainingSamples = s.TrainingSamples
	m.trained = true
	return nil
}
