package layer

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/FlavioCFOliveira/ConvDigits/internal/conv"
	"github.com/FlavioCFOliveira/ConvDigits/internal/opt"
	"github.com/FlavioCFOliveira/ConvDigits/internal/tensor"
)

// Conv2D implements a 2D convolutional layer (cross-correlation with
// stride and zero padding, plus a per-output-channel bias).
type Conv2D struct {
	inChannels  int
	outChannels int
	kernelSize  int
	stride      int
	padding     int

	// Weights: [outChannels, inChannels, kernelSize, kernelSize]
	weights *tensor.Kernel
	biases  []float64

	gradWeights []float64
	gradBiases  []float64
	hasGrad     bool

	adam *opt.Adam
}

// ConvCache is the forward state needed by Conv2D.Backward.
type ConvCache struct {
	padded     *tensor.Volume
	inH, inW   int
	outH, outW int
}

// NewConv2D creates a new 2D convolutional layer.
// Weights use He initialization: N(0, 1) * sqrt(2 / (inChannels*kernelSize²)).
// Biases start at zero.
func NewConv2D(inChannels, outChannels, kernelSize, stride, padding int, learningRate float64, rng *rand.Rand) *Conv2D {
	if stride <= 0 {
		panic("Conv2D: stride must be positive")
	}
	weights := tensor.NewKernel(outChannels, inChannels, kernelSize, kernelSize)
	scale := math.Sqrt(2.0 / float64(inChannels*kernelSize*kernelSize))
	for i := range weights.Data {
		weights.Data[i] = rng.NormFloat64() * scale
	}
	biases := make([]float64, outChannels)

	return &Conv2D{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernelSize,
		stride:      stride,
		padding:     padding,
		weights:     weights,
		biases:      biases,
		gradWeights: make([]float64, len(weights.Data)),
		gradBiases:  make([]float64, outChannels),
		adam:        opt.NewAdam(learningRate, len(weights.Data), outChannels),
	}
}

// OutputShape returns the output dimensions for an h×w input.
func (c *Conv2D) OutputShape(h, w int) (int, int, int) {
	return c.outChannels,
		conv.OutputSize(h, c.kernelSize, c.stride, c.padding),
		conv.OutputSize(w, c.kernelSize, c.stride, c.padding)
}

// Forward convolves the input and adds the bias.
// input: [inChannels, H, W]; returns [outChannels, outH, outW].
func (c *Conv2D) Forward(input *tensor.Volume) (*tensor.Volume, *ConvCache) {
	if input.C != c.inChannels {
		panic(fmt.Sprintf("Conv2D: input has %d channels, layer expects %d", input.C, c.inChannels))
	}
	padded := conv.PadVolume(input, c.padding)
	out := conv.Convolve3D(padded, c.weights, c.biases, c.stride, 0)
	return out, &ConvCache{padded: padded, inH: input.H, inW: input.W, outH: out.H, outW: out.W}
}

// ForwardWith runs the forward convolution on the parallel executor, using
// whichever algorithm the executor is configured for.
// The result equals Forward's within floating-point tolerance; no cache is
// produced because this path serves inference only.
func (c *Conv2D) ForwardWith(exec *conv.Executor, input *tensor.Volume) *tensor.Volume {
	if input.C != c.inChannels {
		panic(fmt.Sprintf("Conv2D: input has %d channels, layer expects %d", input.C, c.inChannels))
	}
	return exec.Convolve(input, c.weights, c.biases, c.stride, c.padding)
}

// Backward computes, in order, the bias gradient, the weight gradient and
// the input gradient. The weight and input gradients are derived from the
// padded input recorded in cache. The returned gradient has the shape of
// the unpadded input.
func (c *Conv2D) Backward(cache *ConvCache, gradOutput *tensor.Volume) *tensor.Volume {
	if cache == nil {
		panic(ErrNoForwardPass)
	}
	if gradOutput.C != c.outChannels || gradOutput.H != cache.outH || gradOutput.W != cache.outW {
		panic(fmt.Sprintf("Conv2D: gradient shape %v does not match output [%d %d %d]",
			gradOutput.Shape(), c.outChannels, cache.outH, cache.outW))
	}

	k := c.kernelSize
	stride := c.stride
	padded := cache.padded
	outH, outW := cache.outH, cache.outW

	// Bias gradient: spatial sum per output channel.
	for oc := 0; oc < c.outChannels; oc++ {
		c.gradBiases[oc] = floats.Sum(gradOutput.Plane(oc))
	}

	// Weight gradient: correlate the padded input with the output gradient.
	zero(c.gradWeights)
	for oc := 0; oc < c.outChannels; oc++ {
		g := gradOutput.Plane(oc)
		for ic := 0; ic < c.inChannels; ic++ {
			x := padded.Plane(ic)
			base := c.weights.Index(oc, ic, 0, 0)
			for kh := 0; kh < k; kh++ {
				for kw := 0; kw < k; kw++ {
					sum := 0.0
					for oh := 0; oh < outH; oh++ {
						row := (oh*stride+kh)*padded.W + kw
						for ow := 0; ow < outW; ow++ {
							sum += g[oh*outW+ow] * x[row+ow*stride]
						}
					}
					c.gradWeights[base+kh*k+kw] = sum
				}
			}
		}
	}

	// Input gradient: transposed convolution. Scatter every output
	// gradient back over its receptive field, weighted by the kernel.
	gradPadded := tensor.NewVolume(c.inChannels, padded.H, padded.W)
	for oc := 0; oc < c.outChannels; oc++ {
		g := gradOutput.Plane(oc)
		for oh := 0; oh < outH; oh++ {
			for ow := 0; ow < outW; ow++ {
				gv := g[oh*outW+ow]
				if gv == 0 {
					continue
				}
				for ic := 0; ic < c.inChannels; ic++ {
					dst := gradPadded.Plane(ic)
					w := c.weights.Slice(oc, ic)
					for kh := 0; kh < k; kh++ {
						row := (oh*stride+kh)*padded.W + ow*stride
						for kw := 0; kw < k; kw++ {
							dst[row+kw] += gv * w[kh*k+kw]
						}
					}
				}
			}
		}
	}
	c.hasGrad = true

	if c.padding == 0 {
		return gradPadded
	}
	gradInput := tensor.NewVolume(c.inChannels, cache.inH, cache.inW)
	for ic := 0; ic < c.inChannels; ic++ {
		plane, _, _ := conv.Unpad(gradPadded.Plane(ic), padded.H, padded.W, c.padding)
		copy(gradInput.Plane(ic), plane)
	}
	return gradInput
}

// Update applies Adam to every weight and bias scalar and discards the
// gradients.
func (c *Conv2D) Update() {
	if !c.hasGrad {
		return
	}
	c.adam.Step(
		[][]float64{c.weights.Data, c.biases},
		[][]float64{c.gradWeights, c.gradBiases},
	)
	zero(c.gradWeights)
	zero(c.gradBiases)
	c.hasGrad = false
}

// SetLearningRate changes the Adam step size.
func (c *Conv2D) SetLearningRate(lr float64) {
	c.adam.LearningRate = lr
}

// LearningRate returns the Adam step size.
func (c *Conv2D) LearningRate() float64 {
	return c.adam.LearningRate
}

// Params returns the weight and bias tensors.
func (c *Conv2D) Params() []Param {
	return []Param{
		{Name: "weights", Shape: c.weights.Shape(), Data: c.weights.Data},
		{Name: "bias", Shape: []int{c.outChannels}, Data: c.biases},
	}
}

// LoadParams overwrites weights and biases.
func (c *Conv2D) LoadParams(values [][]float64) error {
	if err := loadParams(c.Params(), values); err != nil {
		return fmt.Errorf("Conv2D: %w", err)
	}
	return nil
}

// Gradients returns the pending weight and bias gradients.
func (c *Conv2D) Gradients() (weights, biases []float64) {
	return c.gradWeights, c.gradBiases
}

// Optimizer exposes the layer's Adam state.
func (c *Conv2D) Optimizer() *opt.Adam {
	return c.adam
}

// Weights returns the kernel tensor.
func (c *Conv2D) Weights() *tensor.Kernel {
	return c.weights
}

// Biases returns the bias vector.
func (c *Conv2D) Biases() []float64 {
	return c.biases
}

// InChannels returns the number of input channels.
func (c *Conv2D) InChannels() int { return c.inChannels }

// OutChannels returns the number of output channels.
func (c *Conv2D) OutChannels() int { return c.outChannels }

// KernelSize returns the kernel size.
func (c *Conv2D) KernelSize() int { return c.kernelSize }

// Stride returns the stride.
func (c *Conv2D) Stride() int { return c.stride }

// Padding returns the padding.
func (c *Conv2D) Padding() int { return c.padding }
