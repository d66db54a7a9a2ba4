package models

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBackward_MatchesNumericGradient(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	layers := initLayers([]int{3, 5, 4, 1}, rng)
	// keep hidden units active so the check stays away from the ReLU kink
	for l := range layers {
		for j := range layers[l].B {
			layers[l].B[j] = 0.5
		}
	}
	x := []float64{0.3, -0.7, 1.1}
	target := 0.4

	lossAt := func() float64 {
		out := forward(layers, x, nil)[len(layers)][0]
		return (out - target) * (out - target) / 2
	}

	grads := zeroGradients(layers)
	backward(layers, forward(layers, x, nil), nil, target, grads)

	const eps = 1e-6
	for l := range layers {
		for j := range layers[l].W {
			for i := range layers[l].W[j] {
				orig := layers[l].W[j][i]
				layers[l].W[j][i] = orig + eps
				plus := lossAt()
				layers[l].W[j][i] = orig - eps
				minus := lossAt()
				layers[l].W[j][i] = orig

				assert.InDelta(t, (plus-minus)/(2*eps), grads[l].W[j][i], 1e-6, "layer %d w[%d][%d]", l, j, i)
			}
			orig := layers[l].B[j]
			layers[l].B[j] = orig + eps
			plus := lossAt()
			layers[l].B[j] = orig - eps
			minus := lossAt()
			layers[l].B[j] = orig

			assert.InDelta(t, (plus-minus)/(2*eps), grads[l].B[j], 1e-6, "layer %d b[%d]", l, j)
		}
	}
}

func TestBackward_DropoutMaskScalesGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	layers := initLayers([]int{2, 3, 1}, rng)
	for j := range layers[0].B {
		layers[0].B[j] = 1
	}
	x := []float64{0.2, 0.4}
	masks := [][]float64{{0, 2, 2}}

	grads := zeroGradients(layers)
	backward(layers, forward(layers, x, masks), masks, 0, grads)

	// the dropped unit neither feeds the output nor receives a gradient
	assert.Zero(t, grads[1].W[0][0])
	assert.Zero(t, grads[0].W[0][0])
	assert.Zero(t, grads[0].W[0][1])
	assert.Zero(t, grads[0].B[0])
	assert.NotZero(t, grads[0].B[1])
}

func TestFeatureSubsetSize(t *testing.T) {
	cases := map[string]int{
		MaxFeaturesSqrt: 3,
		MaxFeaturesLog2: 3,
		MaxFeaturesAll:  15,
		"":              15,
		"5":             5,
		"40":            15,
		"0":             1,
		"bogus":         3,
	}
	for maxFeatures, want := range cases {
		f := NewForest(ForestOptions{MaxFeatures: maxFeatures})
		assert.Equal(t, want, f.featureSubsetSize(15), maxFeatures)
	}
}
