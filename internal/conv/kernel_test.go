package conv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FlavioCFOliveira/ConvDigits/internal/tensor"
)

func TestOutputSize(t *testing.T) {
	tests := []struct {
		input, window, stride, padding, want int
	}{
		{32, 3, 1, 1, 32},
		{32, 2, 2, 0, 16},
		{16, 3, 1, 1, 16},
		{5, 3, 2, 0, 2},
		{7, 3, 2, 1, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OutputSize(tt.input, tt.window, tt.stride, tt.padding), "%+v", tt)
	}
}

func TestPadAndUnpad(t *testing.T) {
	plane := []float64{1, 2, 3, 4}
	padded, ph, pw := Pad(plane, 2, 2, 1)

	require.Equal(t, 4, ph)
	require.Equal(t, 4, pw)
	assert.Equal(t, []float64{
		0, 0, 0, 0,
		0, 1, 2, 0,
		0, 3, 4, 0,
		0, 0, 0, 0,
	}, padded)

	back, h, w := Unpad(padded, ph, pw, 1)
	assert.Equal(t, 2, h)
	assert.Equal(t, 2, w)
	assert.Equal(t, plane, back)
}

func TestPadZeroCopies(t *testing.T) {
	plane := []float64{1, 2}
	padded, _, _ := Pad(plane, 1, 2, 0)
	padded[0] = 9
	assert.Equal(t, 1.0, plane[0])
}

func TestCorrelate2D(t *testing.T) {
	// 1 2 3
	// 4 5 6
	// 7 8 9
	plane := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	kernel := []float64{1, 0, 0, -1} // top-left minus bottom-right, no flipping

	out, h, w := Correlate2D(plane, 3, 3, kernel, 2, 2, 1)
	require.Equal(t, 2, h)
	require.Equal(t, 2, w)
	assert.Equal(t, []float64{-4, -4, -4, -4}, out)

	out, h, w = Correlate2D(plane, 3, 3, []float64{1, 1, 1, 1}, 2, 2, 2)
	assert.Equal(t, 1, h)
	assert.Equal(t, 1, w)
	assert.Equal(t, []float64{12}, out)
}

func TestCorrelate2DKernelTooLargePanics(t *testing.T) {
	assert.Panics(t, func() { Correlate2D([]float64{1}, 1, 1, make([]float64, 4), 2, 2, 1) })
}

func TestMaxPool2D(t *testing.T) {
	//  1  2  3  4
	//  5  6  7  8
	//  9 10 11 12
	// 13 14 15 16
	plane := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}

	out, argmax, h, w := MaxPool2D(plane, 4, 4, 2, 2)
	require.Equal(t, 2, h)
	require.Equal(t, 2, w)
	assert.Equal(t, []float64{6, 8, 14, 16}, out)
	// Bottom-right of every window: offset 1*2+1.
	assert.Equal(t, []int{3, 3, 3, 3}, argmax)
}

func TestMaxPool2DFirstMaximumWins(t *testing.T) {
	out, argmax, _, _ := MaxPool2D([]float64{5, 5, 5, 5}, 2, 2, 2, 2)
	assert.Equal(t, []float64{5}, out)
	assert.Equal(t, []int{0}, argmax)
}

func TestConvolve3D(t *testing.T) {
	in := tensor.Reshape([]float64{
		1, 2, 3, 4,
		10, 20, 30, 40,
	}, 2, 2, 2)
	k := tensor.NewKernel(1, 2, 1, 1)
	k.Data[0], k.Data[1] = 1, 0.5

	out := Convolve3D(in, k, []float64{100}, 1, 0)
	assert.Equal(t, [3]int{1, 2, 2}, out.Shape())
	assert.Equal(t, []float64{106, 112, 118, 124}, out.Data)
}

func TestConvolve3DZeroInputZeroBias(t *testing.T) {
	in := tensor.NewVolume(1, 32, 32)
	k := tensor.NewKernel(16, 1, 3, 3)
	for i := range k.Data {
		k.Data[i] = float64(i%7) - 3
	}

	out := Convolve3D(in, k, make([]float64, 16), 1, 1)
	assert.Equal(t, [3]int{16, 32, 32}, out.Shape())
	for _, v := range out.Data {
		assert.Zero(t, v)
	}
}

func TestConvolve3DChannelMismatchPanics(t *testing.T) {
	assert.Panics(t, func() {
		Convolve3D(tensor.NewVolume(2, 4, 4), tensor.NewKernel(1, 3, 3, 3), nil, 1, 0)
	})
}

func TestMaxPool3D(t *testing.T) {
	in := tensor.Reshape([]float64{
		1, 2, 3, 4,
		8, 7, 6, 5,
	}, 2, 2, 2)
	out, argmax := MaxPool3D(in, 2, 2)
	assert.Equal(t, []float64{4, 8}, out.Data)
	assert.Equal(t, []int{3, 0}, argmax)
}
