package conv

import "github.com/FlavioCFOliveira/ConvDigits/internal/tensor"

// Im2col flattens every receptive field of the (implicitly zero-padded)
// input into one row. The result has outH*outW rows and
// in.C*kh*kw columns, ordered channel-major then kernel row then column,
// matching the layout of a flattened Kernel row.
func Im2col(in *tensor.Volume, kh, kw, stride, padding int) (col []float64, rows, cols, outH, outW int) {
	outH = OutputSize(in.H, kh, stride, padding)
	outW = OutputSize(in.W, kw, stride, padding)
	rows = outH * outW
	cols = in.C * kh * kw
	col = make([]float64, rows*cols)

	r := 0
	for oh := 0; oh < outH; oh++ {
		for ow := 0; ow < outW; ow++ {
			base := r * cols
			j := 0
			for c := 0; c < in.C; c++ {
				for y := 0; y < kh; y++ {
					ih := oh*stride + y - padding
					for x := 0; x < kw; x++ {
						iw := ow*stride + x - padding
						if ih >= 0 && ih < in.H && iw >= 0 && iw < in.W {
							col[base+j] = in.At(c, ih, iw)
						}
						j++
					}
				}
			}
			r++
		}
	}
	return col, rows, cols, outH, outW
}

// Convolve3DIm2col computes the convolution as one dense product:
// kernelMatrix (Out × C·kh·kw) · colᵀ (C·kh·kw × outH·outW).
func (e *Executor) Convolve3DIm2col(in *tensor.Volume, k *tensor.Kernel, bias []float64, stride, padding int) *tensor.Volume {
	out := convolutionOutput(in, k, stride, padding)

	col, rows, cols, _, _ := Im2col(in, k.H, k.W, stride, padding)
	product := tensor.MatMul(k.Data, k.Out, cols, tensor.Transpose(col, rows, cols), rows)
	copy(out.Data, product)

	if bias != nil {
		e.split(0, k.Out, func(start, end int) {
			for oc := start; oc < end; oc++ {
				dst := out.Plane(oc)
				for i := range dst {
					dst[i] += bias[oc]
				}
			}
		})
	}
	return out
}
