package conv

import "github.com/FlavioCFOliveira/ConvDigits/internal/tensor"

// DefaultThreshold is the largest channel range computed without splitting.
const DefaultThreshold = 16

// Executor runs multi-channel convolution and pooling by recursive
// divide-and-conquer over the output-channel range. Ranges no larger than
// the threshold are computed directly; larger ones are split at the
// midpoint, the left half is forked onto the pool and the right half runs
// on the current goroutine, then both are joined.
//
// Sub-ranges are disjoint, so concurrent leaves never write the same
// output element.
type Executor struct {
	pool      *Pool
	threshold int
	im2col    bool
}

// NewExecutor creates an executor bound to pool.
func NewExecutor(pool *Pool) *Executor {
	return &Executor{pool: pool, threshold: DefaultThreshold}
}

// WithThreshold returns a copy of the executor using a different split
// threshold. Values below 1 are clamped to 1.
func (e *Executor) WithThreshold(threshold int) *Executor {
	if threshold < 1 {
		threshold = 1
	}
	return &Executor{pool: e.pool, threshold: threshold, im2col: e.im2col}
}

// WithIm2col returns a copy of the executor whose Convolve lowers the
// convolution to a single matrix product.
func (e *Executor) WithIm2col() *Executor {
	return &Executor{pool: e.pool, threshold: e.threshold, im2col: true}
}

// Convolve runs Convolve3DIm2col when the executor was built with
// WithIm2col and Convolve3D otherwise.
func (e *Executor) Convolve(in *tensor.Volume, k *tensor.Kernel, bias []float64, stride, padding int) *tensor.Volume {
	if e.im2col {
		return e.Convolve3DIm2col(in, k, bias, stride, padding)
	}
	return e.Convolve3D(in, k, bias, stride, padding)
}

// Threshold returns the split threshold in channels.
func (e *Executor) Threshold() int {
	return e.threshold
}

// Convolve3D produces the same result as the sequential Convolve3D.
func (e *Executor) Convolve3D(in *tensor.Volume, k *tensor.Kernel, bias []float64, stride, padding int) *tensor.Volume {
	padded, out := prepareConvolution(in, k, stride, padding)
	e.split(0, k.Out, func(start, end int) {
		convolveChannels(padded, k, bias, stride, out, start, end)
	})
	return out
}

// MaxPool3D produces the same result as the sequential MaxPool3D.
func (e *Executor) MaxPool3D(in *tensor.Volume, size, stride int) (*tensor.Volume, []int) {
	out, argmax := preparePooling(in, size, stride)
	e.split(0, in.C, func(start, end int) {
		poolChannels(in, size, stride, out, argmax, start, end)
	})
	return out, argmax
}

func (e *Executor) split(start, end int, leaf func(start, end int)) {
	if end-start <= e.threshold {
		leaf(start, end)
		return
	}
	mid := start + (end-start)/2
	left := e.pool.Fork(func() { e.split(start, mid, leaf) })
	e.split(mid, end, leaf)
	left.Join()
}
