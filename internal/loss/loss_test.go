package loss

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"

	"github.com/FlavioCFOliveira/ConvDigits/internal/activations"
)

func TestCrossEntropyForward(t *testing.T) {
	ce := CrossEntropy{}

	tests := []struct {
		name   string
		probs  []float64
		target int
		want   float64
	}{
		{"confident correct", []float64{0.01, 0.98, 0.01}, 1, -math.Log(0.98)},
		{"uniform", []float64{0.25, 0.25, 0.25, 0.25}, 3, math.Log(4)},
		{"zero probability is floored", []float64{1, 0}, 1, -math.Log(probFloor)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ce.Forward(tt.probs, tt.target), 1e-12)
		})
	}
}

func TestCrossEntropyBackward(t *testing.T) {
	grad := CrossEntropy{}.Backward([]float64{0.2, 0.5, 0.3}, 1)
	assert.True(t, floats.EqualApprox([]float64{0.2, -0.5, 0.3}, grad, 1e-12))
}

func TestCrossEntropyTargetOutOfRange(t *testing.T) {
	assert.Panics(t, func() { CrossEntropy{}.Forward([]float64{1}, 1) })
	assert.Panics(t, func() { CrossEntropy{}.Backward([]float64{1}, -1) })
}

func TestSoftmaxCrossEntropyGradientCheck(t *testing.T) {
	logits := []float64{0.3, -1.2, 2.0, 0.7, -0.1}
	target := 3
	softmax := activations.Softmax{}

	f := func(z []float64) float64 {
		return CrossEntropy{}.Forward(softmax.Apply(z), target)
	}
	numeric := fd.Gradient(nil, f, logits, &fd.Settings{Formula: fd.Central, Step: 1e-6})
	analytic := CrossEntropy{}.Backward(softmax.Apply(logits), target)

	assert.True(t, floats.EqualApprox(numeric, analytic, 1e-6), "numeric %v analytic %v", numeric, analytic)
}
