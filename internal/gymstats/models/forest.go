package models

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"

	"github.com/2beens/gymstats-predictor/internal/gymstats/features"
	"github.com/2beens/gymstats-predictor/internal/gymstats/stats"
)

const (
	MaxFeaturesSqrt = "sqrt"
	MaxFeaturesLog2 = "log2"
	MaxFeaturesAll  = "all"
)

type ForestOptions struct {
	Trees           int    `json:"trees"`
	MaxDepth        int    `json:"maxDepth"`
	MinSamplesSplit int    `json:"minSamplesSplit"`
	MaxFeatures     string `json:"maxFeatures"` // sqrt, log2, all or a fixed count
	Bootstrap       bool   `json:"bootstrap"`
	Seed            int64  `json:"seed"`
}

func DefaultForestOptions() ForestOptions {
	return ForestOptions{
		Trees:           10,
		MaxDepth:        5,
		MinSamplesSplit: 2,
		MaxFeatures:     MaxFeaturesSqrt,
		Bootstrap:       true,
		Seed:            1,
	}
}

// node of a regression tree. Children are indexes into the tree arena;
// leaves have Left == Right == -1.
type node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
	Samples   int     `json:"n"`
}

func (n node) leaf() bool {
	return n.Left < 0
}

type tree struct {
	Nodes []node `json:"nodes"`
}

func (t tree) predict(x []float64) float64 {
	i := 0
	for !t.Nodes[i].leaf() {
		n := t.Nodes[i]
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return t.Nodes[i].Value
}

// Forest is a bagged ensemble of CART regression trees with per-tree feature subsampling.
type Forest struct {
	opts ForestOptions

	trees           []tree
	nFeatures       int
	importance      []float64
	oobScore        float64
	trainingSamples int
	trained         bool
}

func NewForest(opts ForestOptions) *Forest {
	return &Forest{
		opts: opts,
	}
}

func (m *Forest) Name() string {
	return NameForest
}

func (m *Forest) OOBScore() float64 {
	return m.oobScore
}

func (m *Forest) Train(X [][]float64, y []float64) (TrainingMetrics, error) {
	nFeatures, err := validateTrainingData(X, y)
	if err != nil {
		return TrainingMetrics{}, err
	}

	rng := rand.New(rand.NewSource(m.opts.Seed))
	n := len(X)
	nTrees := max(1, m.opts.Trees)
	subset := m.featureSubsetSize(nFeatures)

	trees := make([]tree, 0, nTrees)
	importance := make([]float64, nFeatures)
	oobSum := make([]float64, n)
	oobCount := make([]int, n)

	for t := 0; t < nTrees; t++ {
		sample := make([]int, n)
		inBag := make([]bool, n)
		for i := range sample {
			if m.opts.Bootstrap {
				sample[i] = rng.Intn(n)
			} else {
				sample[i] = i
			}
			inBag[sample[i]] = true
		}

		featureSet := rng.Perm(nFeatures)[:subset]
		sort.Ints(featureSet)

		b := &treeBuilder{
			X:               X,
			y:               y,
			features:        featureSet,
			maxDepth:        m.opts.MaxDepth,
			minSamplesSplit: max(2, m.opts.MinSamplesSplit),
			importance:      importance,
		}
		b.build(sample, 0)
		tr := tree{Nodes: b.nodes}
		trees = append(trees, tr)

		for i := range inBag {
			if inBag[i] {
				continue
			}
			oobSum[i] += tr.predict(X[i])
			oobCount[i]++
		}
	}

	var oobPred, oobTarget []float64
	for i := range oobCount {
		if oobCount[i] > 0 {
			oobPred = append(oobPred, oobSum[i]/float64(oobCount[i]))
			oobTarget = append(oobTarget, y[i])
		}
	}

	m.trees = trees
	m.nFeatures = nFeatures
	m.importance = importance
	m.oobScore = 0
	if len(oobPred) > 0 && stats.Variance(oobTarget) > 0 {
		m.oobScore = stats.Evaluate(oobPred, oobTarget).R2
	}
	m.trainingSamples = n
	m.trained = true

	predictions := make([]float64, n)
	for i, row := range X {
		predictions[i], _ = m.predictRow(row)
	}

	mse := stats.Evaluate(predictions, y).MSE
	return TrainingMetrics{
		Model:        NameForest,
		Samples:      n,
		TrainSamples: n,
		Iterations:   nTrees,
		TrainMSE:     mse,
		FinalLoss:    mse,
		OOBScore:     m.oobScore,
	}, nil
}

func (m *Forest) featureSubsetSize(nFeatures int) int {
	var size int
	switch m.opts.MaxFeatures {
	case MaxFeaturesSqrt:
		size = int(math.Sqrt(float64(nFeatures)))
	case MaxFeaturesLog2:
		size = int(math.Log2(float64(nFeatures)))
	case MaxFeaturesAll, "":
		size = nFeatures
	default:
		fixed, err := strconv.Atoi(m.opts.MaxFeatures)
		if err != nil {
			fixed = int(math.Sqrt(float64(nFeatures)))
		}
		size = fixed
	}
	return min(nFeatures, max(1, size))
}

type treeBuilder struct {
	X               [][]float64
	y               []float64
	features        []int
	maxDepth        int
	minSamplesSplit int
	importance      []float64
	nodes           []node
}

// build grows the subtree over the given sample indexes and returns its arena index.
func (b *treeBuilder) build(samples []int, depth int) int {
	targets := make([]float64, len(samples))
	for i, s := range samples {
		targets[i] = b.y[s]
	}
	parentVar := stats.Variance(targets)

	idx := len(b.nodes)
	b.nodes = append(b.nodes, node{
		Left:    -1,
		Right:   -1,
		Value:   stats.Mean(targets),
		Samples: len(samples),
	})

	if depth >= b.maxDepth || len(samples) < b.minSamplesSplit || parentVar == 0 {
		return idx
	}

	feature, threshold, childCost, ok := b.bestSplit(samples)
	parentCost := parentVar * float64(len(samples))
	if !ok || childCost >= parentCost {
		return idx
	}

	var left, right []int
	for _, s := range samples {
		if b.X[s][feature] <= threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}
	b.importance[feature] += parentCost - childCost

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[idx].Feature = feature
	b.nodes[idx].Threshold = threshold
	b.nodes[idx].Left = l
	b.nodes[idx].Right = r
	return idx
}

// bestSplit scans the midpoints between consecutive distinct values of every
// candidate feature. The cost is the sample-weighted sum of child variances.
func (b *treeBuilder) bestSplit(samples []int) (feature int, threshold, cost float64, ok bool) {
	cost = math.Inf(1)
	sorted := make([]int, len(samples))
	n := float64(len(samples))

	var total, totalSq float64
	for _, s := range samples {
		total += b.y[s]
		totalSq += b.y[s] * b.y[s]
	}

	for _, f := range b.features {
		copy(sorted, samples)
		sort.SliceStable(sorted, func(i, j int) bool {
			return b.X[sorted[i]][f] < b.X[sorted[j]][f]
		})

		var leftSum, leftSq float64
		for i := 0; i < len(sorted)-1; i++ {
			v := b.y[sorted[i]]
			leftSum += v
			leftSq += v * v

			cur, next := b.X[sorted[i]][f], b.X[sorted[i+1]][f]
			if cur == next {
				continue
			}

			nl := float64(i + 1)
			nr := n - nl
			rightSum := total - leftSum
			rightSq := totalSq - leftSq
			c := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
			if c < cost {
				cost = c
				feature = f
				threshold = (cur + next) / 2
				ok = true
			}
		}
	}

	return feature, threshold, cost, ok
}

func (m *Forest) predictRow(x []float64) (mean, std float64) {
	values := make([]float64, len(m.trees))
	for i, t := range m.trees {
		values[i] = t.predict(x)
	}
	return stats.Mean(values), stats.StdDev(values)
}

// PredictRaw returns the mean tree output and the spread across trees.
func (m *Forest) PredictRaw(x []float64) (float64, float64, error) {
	if !m.trained {
		return 0, 0, ErrNotTrained
	}
	if len(x) != m.nFeatures {
		return 0, 0, ErrDimensionMismatch
	}
	mean, std := m.predictRow(x)
	return mean, std, nil
}

func (m *Forest) Predict(fv features.Vector) (Prediction, error) {
	raw, std, err := m.PredictRaw(fv.ToArray())
	if err != nil {
		return Prediction{}, err
	}

	p := NewPrediction(raw, fv)
	p.Uncertainty = std

	confidence := 85.0
	switch {
	case std > 2:
		confidence -= 20
	case std > 1:
		confidence -= 10
	}
	switch {
	case m.oobScore > 0.8:
		confidence += 10
	case m.oobScore > 0.6:
		confidence += 5
	}
	confidence += constraintAdjustment(len(p.Constraints), 5, 3)
	p.Confidence = stats.Clamp(confidence, 30, 95)
	p.ModelInfo = ModelInfo{
		Name:            NameForest,
		TrainingSamples: m.trainingSamples,
		Trees:           len(m.trees),
	}

	return p, nil
}

func (m *Forest) FeatureImportance() map[string]Importance {
	if !m.trained {
		return map[string]Importance{}
	}
	return rankImportance(m.importance)
}

type forestSnapshot struct {
	Type            string        `json:"type"`
	Options         ForestOptions `json:"options"`
	Trees           []tree        `json:"trees"`
	NFeatures       int           `json:"nFeatures"`
	Importance      []float64     `json:"importance"`
	OOBScore        float64       `json:"oobScore"`
	TrainingSamples int           `json:"trainingSamples"`
}

func (m *Forest) Save() ([]byte, error) {
	if !m.trained {
		return nil, ErrNotTrained
	}
	return json.Marshal(forestSnapshot{
		Type:            NameForest,
		Options:         m.opts,
		Trees:           m.trees,
		NFeatures:       m.nFeatures,
		Importance:      m.importance,
		OOBScore:        m.oobScore,
		TrainingSamples: m.trainingSamples,
	})
}

func (m *Forest) Load(blob []byte) error {
	var s forestSnapshot
	if err := json.Unmarshal(blob, &s); err != nil {
		return fmt.Errorf("unmarshal forest snapshot: %w", err)
	}
	if s.Type != NameForest {
		return fmt.Errorf("unexpected snapshot type %q", s.Type)
	}
	if len(s.Trees) == 0 || s.NFeatures == 0 {
		return ErrEmptyTrainingData
	}
	for _, t := range s.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("forest snapshot: empty tree")
		}
		for i, n := range t.Nodes {
			if n.leaf() {
				continue
			}
			// children always come after their parent in the arena
			if n.Feature < 0 || n.Feature >= s.NFeatures || n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
				return fmt.Errorf("forest snapshot: %w", ErrDimensionMismatch)
			}
		}
	}

	m.opts = s.Options
	m.trees = s.Trees
	m.nFeatures = s.NFeatures
	m.importance = s.Importance
	m.oobScore = s.OOBScore
	m.trainingSamples = s.TrainingSamples
	m.trained = true
	return nil
}
