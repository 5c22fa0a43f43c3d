package layer

import (
	"fmt"
	"math/rand"
)

// Dropout implements inverted dropout. During training every unit is
// zeroed with probability P and survivors are scaled by 1/(1-P), so no
// rescaling is needed at inference, where the stage is the identity.
type Dropout struct {
	P   float64
	rng *rand.Rand
}

// DropoutMask is the per-forward record of surviving units.
type DropoutMask struct {
	keep     []bool
	scale    float64
	identity bool
}

// Kept reports whether unit i survived.
func (m *DropoutMask) Kept(i int) bool {
	return m.identity || m.keep[i]
}

// NewDropout creates a dropout stage drawing masks from rng.
func NewDropout(p float64, rng *rand.Rand) *Dropout {
	if p < 0 || p >= 1 {
		panic(fmt.Sprintf("Dropout: probability %v outside [0,1)", p))
	}
	return &Dropout{P: p, rng: rng}
}

// Forward applies dropout in training mode and copies x otherwise.
func (d *Dropout) Forward(x []float64, training bool) ([]float64, *DropoutMask) {
	out := make([]float64, len(x))
	if !training || d.P == 0 {
		copy(out, x)
		return out, &DropoutMask{identity: true, scale: 1}
	}

	mask := &DropoutMask{keep: make([]bool, len(x)), scale: 1 / (1 - d.P)}
	for i, v := range x {
		if d.rng.Float64() >= d.P {
			mask.keep[i] = true
			out[i] = v * mask.scale
		}
	}
	return out, mask
}

// Backward scales the gradient of surviving units and zeroes the rest.
func (d *Dropout) Backward(mask *DropoutMask, grad []float64) []float64 {
	if mask == nil {
		panic(ErrNoForwardPass)
	}
	out := make([]float64, len(grad))
	if mask.identity {
		copy(out, grad)
		return out
	}
	if len(grad) != len(mask.keep) {
		panic(fmt.Sprintf("Dropout: gradient length %d, mask length %d", len(grad), len(mask.keep)))
	}
	for i, g := range grad {
		if mask.keep[i] {
			out[i] = g * mask.scale
		}
	}
	return out
}
