// Package conv implements single-plane convolution primitives, their
// multi-channel sequential compositions, and a fork/join executor that
// spreads multi-channel work over a bounded worker pool.
//
// Planes are row-major []float64 slices with explicit height and width.
// Convolution here is cross-correlation: kernels are never flipped.
package conv

import (
	"fmt"
	"math"

	"github.com/FlavioCFOliveira/ConvDigits/internal/tensor"
)

// OutputSize returns the spatial output extent of a sliding window.
// Output size: (input + 2*padding - window) / stride + 1
func OutputSize(input, window, stride, padding int) int {
	return (input+2*padding-window)/stride + 1
}

// Pad returns a copy of the h×w plane surrounded by a zero border of the
// given width, along with the padded dimensions.
func Pad(plane []float64, h, w, padding int) ([]float64, int, int) {
	if padding == 0 {
		out := make([]float64, len(plane))
		copy(out, plane)
		return out, h, w
	}
	ph, pw := h+2*padding, w+2*padding
	out := make([]float64, ph*pw)
	for y := 0; y < h; y++ {
		copy(out[(y+padding)*pw+padding:], plane[y*w:(y+1)*w])
	}
	return out, ph, pw
}

// Unpad strips a border of the given width from a ph×pw plane.
func Unpad(plane []float64, ph, pw, padding int) ([]float64, int, int) {
	h, w := ph-2*padding, pw-2*padding
	out := make([]float64, h*w)
	for y := 0; y < h; y++ {
		copy(out[y*w:(y+1)*w], plane[(y+padding)*pw+padding:])
	}
	return out, h, w
}

// PadVolume pads every channel of v.
func PadVolume(v *tensor.Volume, padding int) *tensor.Volume {
	if padding == 0 {
		return v.Clone()
	}
	out := tensor.NewVolume(v.C, v.H+2*padding, v.W+2*padding)
	for c := 0; c < v.C; c++ {
		padded, _, _ := Pad(v.Plane(c), v.H, v.W, padding)
		copy(out.Plane(c), padded)
	}
	return out
}

// Correlate2D computes the valid cross-correlation of an h×w plane with a
// kh×kw kernel at the given stride. The caller pads beforehand if needed.
func Correlate2D(plane []float64, h, w int, kernel []float64, kh, kw, stride int) ([]float64, int, int) {
	outH := OutputSize(h, kh, stride, 0)
	outW := OutputSize(w, kw, stride, 0)
	if outH <= 0 || outW <= 0 {
		panic(fmt.Sprintf("conv: kernel %dx%d larger than plane %dx%d", kh, kw, h, w))
	}
	out := make([]float64, outH*outW)
	for oh := 0; oh < outH; oh++ {
		for ow := 0; ow < outW; ow++ {
			out[oh*outW+ow] = correlatePoint(plane, w, kernel, kh, kw, oh*stride, ow*stride)
		}
	}
	return out, outH, outW
}

func correlatePoint(plane []float64, w int, kernel []float64, kh, kw, top, left int) float64 {
	sum := 0.0
	for y := 0; y < kh; y++ {
		row := (top+y)*w + left
		krow := y * kw
		for x := 0; x < kw; x++ {
			sum += plane[row+x] * kernel[krow+x]
		}
	}
	return sum
}

// MaxPool2D slides a size×size window over an h×w plane. For every output
// cell it records the flattened in-window offset (ph*size+pw) of the first
// maximum encountered in row-major scan order.
func MaxPool2D(plane []float64, h, w, size, stride int) (out []float64, argmax []int, outH, outW int) {
	outH = OutputSize(h, size, stride, 0)
	outW = OutputSize(w, size, stride, 0)
	out = make([]float64, outH*outW)
	argmax = make([]int, outH*outW)
	for oh := 0; oh < outH; oh++ {
		for ow := 0; ow < outW; ow++ {
			maxVal := math.Inf(-1)
			maxIdx := 0
			for ph := 0; ph < size; ph++ {
				row := (oh*stride+ph)*w + ow*stride
				for pw := 0; pw < size; pw++ {
					if v := plane[row+pw]; v > maxVal {
						maxVal = v
						maxIdx = ph*size + pw
					}
				}
			}
			out[oh*outW+ow] = maxVal
			argmax[oh*outW+ow] = maxIdx
		}
	}
	return out, argmax, outH, outW
}

// Convolve3D is the sequential multi-channel convolution: every output
// channel is the sum over input channels of Correlate2D, plus its bias.
// bias may be nil.
func Convolve3D(in *tensor.Volume, k *tensor.Kernel, bias []float64, stride, padding int) *tensor.Volume {
	padded, out := prepareConvolution(in, k, stride, padding)
	convolveChannels(padded, k, bias, stride, out, 0, k.Out)
	return out
}

// MaxPool3D pools every channel independently and returns the output
// volume together with the per-cell in-window argmax offsets, laid out
// like the output.
func MaxPool3D(in *tensor.Volume, size, stride int) (*tensor.Volume, []int) {
	out, argmax := preparePooling(in, size, stride)
	poolChannels(in, size, stride, out, argmax, 0, in.C)
	return out, argmax
}

// prepareConvolution validates shapes and returns the padded input (the
// input itself when padding is 0; it is only read) and the output volume.
func prepareConvolution(in *tensor.Volume, k *tensor.Kernel, stride, padding int) (*tensor.Volume, *tensor.Volume) {
	out := convolutionOutput(in, k, stride, padding)
	if padding == 0 {
		return in, out
	}
	return PadVolume(in, padding), out
}

func convolutionOutput(in *tensor.Volume, k *tensor.Kernel, stride, padding int) *tensor.Volume {
	if in.C != k.In {
		panic(fmt.Sprintf("conv: input has %d channels, kernel expects %d", in.C, k.In))
	}
	if stride <= 0 {
		panic("conv: stride must be positive")
	}
	outH := OutputSize(in.H, k.H, stride, padding)
	outW := OutputSize(in.W, k.W, stride, padding)
	if outH <= 0 || outW <= 0 {
		panic(fmt.Sprintf("conv: kernel %dx%d does not fit input %dx%d with padding %d", k.H, k.W, in.H, in.W, padding))
	}
	return tensor.NewVolume(k.Out, outH, outW)
}

// convolveChannels fills output channels [start, end). Each call only
// writes its own channel slice of out.
func convolveChannels(padded *tensor.Volume, k *tensor.Kernel, bias []float64, stride int, out *tensor.Volume, start, end int) {
	for oc := start; oc < end; oc++ {
		dst := out.Plane(oc)
		for oh := 0; oh < out.H; oh++ {
			for ow := 0; ow < out.W; ow++ {
				sum := 0.0
				for ic := 0; ic < padded.C; ic++ {
					sum += correlatePoint(padded.Plane(ic), padded.W, k.Slice(oc, ic), k.H, k.W, oh*stride, ow*stride)
				}
				if bias != nil {
					sum += bias[oc]
				}
				dst[oh*out.W+ow] = sum
			}
		}
	}
}

func preparePooling(in *tensor.Volume, size, stride int) (*tensor.Volume, []int) {
	outH := OutputSize(in.H, size, stride, 0)
	outW := OutputSize(in.W, size, stride, 0)
	if outH <= 0 || outW <= 0 {
		panic(fmt.Sprintf("conv: pool window %d does not fit input %dx%d", size, in.H, in.W))
	}
	out := tensor.NewVolume(in.C, outH, outW)
	return out, make([]int, out.Len())
}

func poolChannels(in *tensor.Volume, size, stride int, out *tensor.Volume, argmax []int, start, end int) {
	plane := out.H * out.W
	for c := start; c < end; c++ {
		vals, idx, _, _ := MaxPool2D(in.Plane(c), in.H, in.W, size, stride)
		copy(out.Plane(c), vals)
		copy(argmax[c*plane:(c+1)*plane], idx)
	}
}
