// Package layer provides the network's stages: learnable convolution and
// fully connected layers plus the parameter-free max-pool and dropout stages.
//
// Every Forward returns, next to its activation, a cache value that holds
// exactly what the matching Backward needs. Backward takes that cache
// explicitly, so a backward step can never observe the state of some other
// forward call.
package layer

import (
	"errors"
	"fmt"
)

// ErrNoForwardPass is the panic value raised when Backward is handed a nil
// cache, i.e. it was called without a preceding Forward.
var ErrNoForwardPass = errors.New("layer: backward called without a forward pass")

// Param describes one parameter tensor of a layer. Data is a live view of
// the layer's storage.
type Param struct {
	Name  string
	Shape []int
	Data  []float64
}

// Trainable is the capability shared by every layer with learnable weights.
type Trainable interface {
	// Update applies one Adam step using the gradients of the last
	// Backward call and then discards them. Without pending gradients it
	// is a no-op.
	Update()

	// SetLearningRate changes the Adam step size.
	SetLearningRate(lr float64)

	// LearningRate returns the current Adam step size.
	LearningRate() float64

	// Params exports the parameter tensors in a fixed order.
	Params() []Param

	// LoadParams overwrites the parameter tensors, in Params order.
	// Optimizer state is left untouched.
	LoadParams(values [][]float64) error
}

func loadParams(dst []Param, values [][]float64) error {
	if len(values) != len(dst) {
		return fmt.Errorf("expected %d parameter tensors, got %d", len(dst), len(values))
	}
	for i, p := range dst {
		if len(values[i]) != len(p.Data) {
			return fmt.Errorf("parameter %q: expected %d values, got %d", p.Name, len(p.Data), len(values[i]))
		}
	}
	for i, p := range dst {
		copy(p.Data, values[i])
	}
	return nil
}

func zero(s []float64) {
	for i := range s {
		s[i] = 0
	}
}
