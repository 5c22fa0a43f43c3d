// Package activations provides the element-wise nonlinearities used by the network.
package activations

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Activation is an activation function with derivative.
type Activation interface {
	// Activate computes f(x)
	Activate(x float64) float64

	// Derivative computes f'(x) from the pre-activation value
	Derivative(x float64) float64
}

// ReLU activation function.
type ReLU struct{}

// Activate computes max(0, x)
func (r ReLU) Activate(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

// Derivative returns 1 if x > 0, else 0
func (r ReLU) Derivative(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}

// Apply returns a new slice holding act(x[i]).
func Apply(act Activation, x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = act.Activate(v)
	}
	return out
}

// Backward returns grad[i] * act'(pre[i]), where pre holds the
// pre-activation values recorded during the forward pass.
func Backward(act Activation, pre, grad []float64) []float64 {
	if len(pre) != len(grad) {
		panic("activations: pre-activation and gradient lengths differ")
	}
	out := make([]float64, len(grad))
	for i, g := range grad {
		out[i] = g * act.Derivative(pre[i])
	}
	return out
}

// Softmax converts logits into a probability distribution.
type Softmax struct{}

// Apply computes exp(x - max) / sum(exp(x - max)) into a new slice.
func (Softmax) Apply(logits []float64) []float64 {
	out := make([]float64, len(logits))
	maxVal := floats.Max(logits)
	sum := 0.0
	for i, v := range logits {
		out[i] = math.Exp(v - maxVal)
		sum += out[i]
	}
	floats.Scale(1/sum, out)
	return out
}

// Argmax returns the index of the largest value (first one on ties).
func Argmax(x []float64) int {
	return floats.MaxIdx(x)
}
