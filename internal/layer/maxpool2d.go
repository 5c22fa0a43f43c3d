package layer

import (
	"fmt"

	"github.com/FlavioCFOliveira/ConvDigits/internal/conv"
	"github.com/FlavioCFOliveira/ConvDigits/internal/tensor"
)

// MaxPool2D implements 2D max pooling with a square window.
type MaxPool2D struct {
	Size   int
	Stride int
}

// PoolCache records, for every pooled output cell, the in-window offset
// (ph*Size+pw) of the maximum. It is valid only for the Forward call that
// produced it.
type PoolCache struct {
	inC, inH, inW int
	outH, outW    int
	argmax        []int
}

// Argmax returns the recorded in-window offsets, laid out like the output.
func (p *PoolCache) Argmax() []int {
	return p.argmax
}

// InputShape returns the [C, H, W] of the pooled input.
func (p *PoolCache) InputShape() [3]int {
	return [3]int{p.inC, p.inH, p.inW}
}

// OutputShape returns the [C, H, W] of the pooled output.
func (p *PoolCache) OutputShape() [3]int {
	return [3]int{p.inC, p.outH, p.outW}
}

// NewMaxPool2D creates a max pooling stage.
func NewMaxPool2D(size, stride int) MaxPool2D {
	if size <= 0 || stride <= 0 {
		panic("MaxPool2D: size and stride must be positive")
	}
	return MaxPool2D{Size: size, Stride: stride}
}

// Forward pools every channel independently.
func (m MaxPool2D) Forward(input *tensor.Volume) (*tensor.Volume, *PoolCache) {
	out, argmax := conv.MaxPool3D(input, m.Size, m.Stride)
	return out, m.cache(input, out, argmax)
}

// ForwardWith pools on the parallel executor.
func (m MaxPool2D) ForwardWith(exec *conv.Executor, input *tensor.Volume) (*tensor.Volume, *PoolCache) {
	out, argmax := exec.MaxPool3D(input, m.Size, m.Stride)
	return out, m.cache(input, out, argmax)
}

func (m MaxPool2D) cache(input, out *tensor.Volume, argmax []int) *PoolCache {
	return &PoolCache{
		inC: input.C, inH: input.H, inW: input.W,
		outH: out.H, outW: out.W,
		argmax: argmax,
	}
}

// Backward routes each output gradient to the input cell that held the
// window maximum. Every other cell of the window receives nothing from
// that output; overlapping windows accumulate.
func (m MaxPool2D) Backward(cache *PoolCache, gradOutput *tensor.Volume) *tensor.Volume {
	if cache == nil {
		panic(ErrNoForwardPass)
	}
	if gradOutput.C != cache.inC || gradOutput.H != cache.outH || gradOutput.W != cache.outW {
		panic(fmt.Sprintf("MaxPool2D: gradient shape %v does not match output [%d %d %d]",
			gradOutput.Shape(), cache.inC, cache.outH, cache.outW))
	}

	gradInput := tensor.NewVolume(cache.inC, cache.inH, cache.inW)
	plane := cache.outH * cache.outW
	for c := 0; c < cache.inC; c++ {
		g := gradOutput.Plane(c)
		dst := gradInput.Plane(c)
		for oh := 0; oh < cache.outH; oh++ {
			for ow := 0; ow < cache.outW; ow++ {
				pos := oh*cache.outW + ow
				idx := cache.argmax[c*plane+pos]
				ih := oh*m.Stride + idx/m.Size
				iw := ow*m.Stride + idx%m.Size
				dst[ih*cache.inW+iw] += g[pos]
			}
		}
	}
	return gradInput
}
