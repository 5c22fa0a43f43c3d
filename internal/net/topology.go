package net

import (
	"errors"
	"fmt"

	"github.com/FlavioCFOliveira/ConvDigits/internal/conv"
)

// ConvSpec configures a convolution stage.
type ConvSpec struct {
	InChannels  int
	OutChannels int
	KernelSize  int
	Stride      int
	Padding     int
}

// DenseSpec configures a fully connected stage.
type DenseSpec struct {
	InSize  int
	OutSize int
}

// Topology holds every constructor argument of a Network. The stage
// order is fixed; only sizes vary.
type Topology struct {
	InputSize  int // square input, single channel count given by Conv1.InChannels
	Conv1      ConvSpec
	Conv2      ConvSpec
	PoolSize   int
	PoolStride int
	FC1        DenseSpec
	FC2        DenseSpec

	LearningRate float64
	DropoutP     float64
	Seed         int64

	// Learning-rate decay: multiply by DecayGamma every DecayEvery epochs.
	DecayEvery int
	DecayGamma float64
}

// DefaultTopology returns the digit classifier configuration:
// 1×32×32 → conv 16 → pool → conv 32 → pool → 2048 → 128 → 10.
func DefaultTopology() Topology {
	return Topology{
		InputSize:    32,
		Conv1:        ConvSpec{InChannels: 1, OutChannels: 16, KernelSize: 3, Stride: 1, Padding: 1},
		Conv2:        ConvSpec{InChannels: 16, OutChannels: 32, KernelSize: 3, Stride: 1, Padding: 1},
		PoolSize:     2,
		PoolStride:   2,
		FC1:          DenseSpec{InSize: 32 * 8 * 8, OutSize: 128},
		FC2:          DenseSpec{InSize: 128, OutSize: 10},
		LearningRate: 0.001,
		DropoutP:     0.5,
		Seed:         42,
		DecayEvery:   10,
		DecayGamma:   0.9,
	}
}

// ErrInvalidTopology is returned when stage sizes do not chain.
var ErrInvalidTopology = errors.New("net: invalid topology")

// PooledShape returns the [C, H, W] shape entering FC1.
func (t Topology) PooledShape() [3]int {
	h := conv.OutputSize(t.InputSize, t.Conv1.KernelSize, t.Conv1.Stride, t.Conv1.Padding)
	h = conv.OutputSize(h, t.PoolSize, t.PoolStride, 0)
	h = conv.OutputSize(h, t.Conv2.KernelSize, t.Conv2.Stride, t.Conv2.Padding)
	h = conv.OutputSize(h, t.PoolSize, t.PoolStride, 0)
	return [3]int{t.Conv2.OutChannels, h, h}
}

// Validate checks that consecutive stages agree on their sizes.
func (t Topology) Validate() error {
	for _, s := range []ConvSpec{t.Conv1, t.Conv2} {
		if s.InChannels <= 0 || s.OutChannels <= 0 || s.KernelSize <= 0 || s.Stride <= 0 || s.Padding < 0 {
			return fmt.Errorf("%w: convolution %+v", ErrInvalidTopology, s)
		}
	}
	if t.InputSize <= 0 || t.PoolSize <= 0 || t.PoolStride <= 0 {
		return fmt.Errorf("%w: input size %d, pool %d/%d", ErrInvalidTopology, t.InputSize, t.PoolSize, t.PoolStride)
	}
	if t.Conv2.InChannels != t.Conv1.OutChannels {
		return fmt.Errorf("%w: conv2 expects %d channels, conv1 produces %d",
			ErrInvalidTopology, t.Conv2.InChannels, t.Conv1.OutChannels)
	}
	shape := t.PooledShape()
	if shape[1] <= 0 {
		return fmt.Errorf("%w: input %d is too small for the pipeline", ErrInvalidTopology, t.InputSize)
	}
	if flat := shape[0] * shape[1] * shape[2]; t.FC1.InSize != flat {
		return fmt.Errorf("%w: fc1 expects %d inputs, pooled volume %v has %d",
			ErrInvalidTopology, t.FC1.InSize, shape, flat)
	}
	if t.FC1.OutSize <= 0 {
		return fmt.Errorf("%w: fc1 output size %d", ErrInvalidTopology, t.FC1.OutSize)
	}
	if t.FC2.InSize != t.FC1.OutSize || t.FC2.OutSize <= 0 {
		return fmt.Errorf("%w: fc2 %+v does not follow fc1 %+v", ErrInvalidTopology, t.FC2, t.FC1)
	}
	if t.DropoutP < 0 || t.DropoutP >= 1 {
		return fmt.Errorf("%w: dropout probability %v", ErrInvalidTopology, t.DropoutP)
	}
	return nil
}
