// Package tensor provides the dense containers shared by every layer:
// 3D activation volumes and 4D convolution kernels.
package tensor

import "fmt"

// Volume is a 3D activation tensor laid out as [channels, height, width].
// Data is row-major and contiguous: element (c, h, w) lives at (c*H+h)*W+w.
type Volume struct {
	C, H, W int
	Data    []float64
}

// NewVolume allocates a zero-filled volume.
func NewVolume(c, h, w int) *Volume {
	if c <= 0 || h <= 0 || w <= 0 {
		panic(fmt.Sprintf("tensor: invalid volume shape %dx%dx%d", c, h, w))
	}
	return &Volume{C: c, H: h, W: w, Data: make([]float64, c*h*w)}
}

// Reshape wraps data as a volume of the given shape without copying.
// Panics if the length does not match.
func Reshape(data []float64, c, h, w int) *Volume {
	if len(data) != c*h*w {
		panic(fmt.Sprintf("tensor: cannot reshape %d values into %dx%dx%d", len(data), c, h, w))
	}
	return &Volume{C: c, H: h, W: w, Data: data}
}

// Index returns the flat offset of (c, h, w).
func (v *Volume) Index(c, h, w int) int {
	return (c*v.H+h)*v.W + w
}

// At returns the element at (c, h, w).
func (v *Volume) At(c, h, w int) float64 {
	return v.Data[(c*v.H+h)*v.W+w]
}

// Plane returns channel c as a view of length H*W.
func (v *Volume) Plane(c int) []float64 {
	size := v.H * v.W
	return v.Data[c*size : (c+1)*size]
}

// Len returns the number of scalars.
func (v *Volume) Len() int {
	return len(v.Data)
}

// Shape returns [C, H, W].
func (v *Volume) Shape() [3]int {
	return [3]int{v.C, v.H, v.W}
}

// SameShape reports whether both volumes have identical dimensions.
func (v *Volume) SameShape(o *Volume) bool {
	return v.C == o.C && v.H == o.H && v.W == o.W
}

// Clone returns a deep copy.
func (v *Volume) Clone() *Volume {
	data := make([]float64, len(v.Data))
	copy(data, v.Data)
	return &Volume{C: v.C, H: v.H, W: v.W, Data: data}
}

// Kernel is a 4D convolution weight tensor laid out as
// [outChannels, inChannels, kernelH, kernelW].
type Kernel struct {
	Out, In, H, W int
	Data          []float64
}

// NewKernel allocates a zero-filled kernel tensor.
func NewKernel(out, in, h, w int) *Kernel {
	if out <= 0 || in <= 0 || h <= 0 || w <= 0 {
		panic(fmt.Sprintf("tensor: invalid kernel shape %dx%dx%dx%d", out, in, h, w))
	}
	return &Kernel{Out: out, In: in, H: h, W: w, Data: make([]float64, out*in*h*w)}
}

// Index returns the flat offset of (oc, ic, kh, kw).
func (k *Kernel) Index(oc, ic, kh, kw int) int {
	return ((oc*k.In+ic)*k.H+kh)*k.W + kw
}

// At returns the weight at (oc, ic, kh, kw).
func (k *Kernel) At(oc, ic, kh, kw int) float64 {
	return k.Data[((oc*k.In+ic)*k.H+kh)*k.W+kw]
}

// Slice returns the [kernelH*kernelW] view for one (oc, ic) pair.
func (k *Kernel) Slice(oc, ic int) []float64 {
	size := k.H * k.W
	base := (oc*k.In + ic) * size
	return k.Data[base : base+size]
}

// Shape returns [Out, In, H, W].
func (k *Kernel) Shape() []int {
	return []int{k.Out, k.In, k.H, k.W}
}

// Clone returns a deep copy.
func (k *Kernel) Clone() *Kernel {
	data := make([]float64, len(k.Data))
	copy(data, k.Data)
	return &Kernel{Out: k.Out, In: k.In, H: k.H, W: k.W, Data: data}
}
