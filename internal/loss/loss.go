// Package loss provides the classification loss used for training.
package loss

import (
	"fmt"
	"math"
)

// probFloor keeps log() finite when a predicted probability underflows.
const probFloor = 1e-10

// CrossEntropy is the negative log-likelihood of a one-hot target under
// a softmax distribution.
type CrossEntropy struct{}

// Forward computes -log(probs[target]).
func (CrossEntropy) Forward(probs []float64, target int) float64 {
	checkTarget(probs, target)
	p := probs[target]
	if p < probFloor {
		p = probFloor
	}
	return -math.Log(p)
}

// Backward returns the gradient of the loss with respect to the softmax
// logits. For softmax followed by cross-entropy this simplifies to
// probs - onehot(target).
func (CrossEntropy) Backward(probs []float64, target int) []float64 {
	checkTarget(probs, target)
	grad := make([]float64, len(probs))
	copy(grad, probs)
	grad[target] -= 1
	return grad
}

func checkTarget(probs []float64, target int) {
	if target < 0 || target >= len(probs) {
		panic(fmt.Sprintf("loss: target class %d out of range [0,%d)", target, len(probs)))
	}
}
