// Package opt provides the Adam optimizer state and learning rate schedules.
package opt

import (
	"fmt"
	"math"
)

// Default Adam hyper-parameters.
const (
	DefaultBeta1   = 0.9
	DefaultBeta2   = 0.999
	DefaultEpsilon = 1e-8
)

// Adam holds the optimizer state of one layer: a first and second moment
// accumulator for every parameter tensor it shadows, plus a step counter
// shared by all of them.
//
// The state lives and dies with its owner; there is no reset other than
// constructing a new Adam.
type Adam struct {
	LearningRate float64
	Beta1        float64 // Exponential decay rate for first moment
	Beta2        float64 // Exponential decay rate for second moment
	Epsilon      float64 // Small constant for numerical stability

	t int
	m [][]float64
	v [][]float64
}

// NewAdam creates Adam state for parameter tensors of the given sizes,
// using the default betas and epsilon.
func NewAdam(learningRate float64, sizes ...int) *Adam {
	a := &Adam{
		LearningRate: learningRate,
		Beta1:        DefaultBeta1,
		Beta2:        DefaultBeta2,
		Epsilon:      DefaultEpsilon,
		m:            make([][]float64, len(sizes)),
		v:            make([][]float64, len(sizes)),
	}
	for i, n := range sizes {
		a.m[i] = make([]float64, n)
		a.v[i] = make([]float64, n)
	}
	return a
}

// Step advances the step counter once and updates every parameter tensor
// in place. params[i] and grads[i] must match the i-th registered size.
func (a *Adam) Step(params, grads [][]float64) {
	if len(params) != len(a.m) || len(grads) != len(a.m) {
		panic(fmt.Sprintf("opt: Adam tracks %d tensors, got %d params and %d grads", len(a.m), len(params), len(grads)))
	}
	a.t++
	corr1 := 1 - math.Pow(a.Beta1, float64(a.t))
	corr2 := 1 - math.Pow(a.Beta2, float64(a.t))

	for i := range params {
		p, g, m, v := params[i], grads[i], a.m[i], a.v[i]
		if len(p) != len(m) || len(g) != len(m) {
			panic(fmt.Sprintf("opt: tensor %d has %d params and %d grads, want %d", i, len(p), len(g), len(m)))
		}
		for j, gj := range g {
			m[j] = a.Beta1*m[j] + (1-a.Beta1)*gj
			v[j] = a.Beta2*v[j] + (1-a.Beta2)*gj*gj
			mHat := m[j] / corr1
			vHat := v[j] / corr2
			p[j] -= a.LearningRate * mHat / (math.Sqrt(vHat) + a.Epsilon)
		}
	}
}

// StepCount returns the number of Step calls so far.
func (a *Adam) StepCount() int {
	return a.t
}

// Moments returns the first and second moment accumulators of tensor i.
func (a *Adam) Moments(i int) (m, v []float64) {
	return a.m[i], a.v[i]
}
