package activations

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
)

func TestReLU(t *testing.T) {
	relu := ReLU{}

	tests := []struct {
		input    float64
		expected float64
		deriv    float64
	}{
		{-1.0, 0.0, 0.0},
		{0.0, 0.0, 0.0}, // derivative is 0 at the kink
		{1.0, 1.0, 1.0},
		{2.5, 2.5, 1.0},
		{-0.1, 0.0, 0.0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, relu.Activate(tt.input), "ReLU(%v)", tt.input)
		assert.Equal(t, tt.deriv, relu.Derivative(tt.input), "ReLU'(%v)", tt.input)
	}
}

func TestApplyAndBackward(t *testing.T) {
	pre := []float64{-2, 0, 3, 0.5}
	assert.Equal(t, []float64{0, 0, 3, 0.5}, Apply(ReLU{}, pre))

	grad := []float64{10, 20, 30, 40}
	assert.Equal(t, []float64{0, 0, 30, 40}, Backward(ReLU{}, pre, grad))
}

func TestBackwardLengthMismatchPanics(t *testing.T) {
	assert.Panics(t, func() { Backward(ReLU{}, []float64{1}, []float64{1, 2}) })
}

func TestReLUGradientCheck(t *testing.T) {
	// Points kept away from the kink so central differences are exact enough.
	x := []float64{-1.3, 0.7, 2.1, -0.4, 0.05}
	upstream := []float64{0.3, -1.2, 0.8, 2.0, -0.5}

	f := func(in []float64) float64 {
		return floats.Dot(Apply(ReLU{}, in), upstream)
	}
	numeric := fd.Gradient(nil, f, x, &fd.Settings{Formula: fd.Central, Step: 1e-6})
	analytic := Backward(ReLU{}, x, upstream)

	assert.True(t, floats.EqualApprox(numeric, analytic, 1e-6), "numeric %v analytic %v", numeric, analytic)
}

func TestSoftmax(t *testing.T) {
	probs := Softmax{}.Apply([]float64{1, 2, 3})

	require.Len(t, probs, 3)
	assert.InDelta(t, 1.0, floats.Sum(probs), 1e-12)
	assert.InDelta(t, 0.09003057, probs[0], 1e-7)
	assert.InDelta(t, 0.24472847, probs[1], 1e-7)
	assert.InDelta(t, 0.66524096, probs[2], 1e-7)
}

func TestSoftmaxStableForLargeLogits(t *testing.T) {
	probs := Softmax{}.Apply([]float64{1000, 1000})
	for _, p := range probs {
		assert.False(t, math.IsNaN(p))
		assert.InDelta(t, 0.5, p, 1e-12)
	}
}

func TestSoftmaxDoesNotMutateInput(t *testing.T) {
	logits := []float64{0.1, 0.2}
	Softmax{}.Apply(logits)
	assert.Equal(t, []float64{0.1, 0.2}, logits)
}

func TestArgmax(t *testing.T) {
	assert.Equal(t, 2, Argmax([]float64{0.1, 0.2, 0.6, 0.1}))
	assert.Equal(t, 0, Argmax([]float64{0.5, 0.5}))
}
