package layer

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
)

func TestDenseForward(t *testing.T) {
	d := NewDense(3, 2, 0.001, rand.New(rand.NewSource(1)))
	require.NoError(t, d.LoadParams([][]float64{
		{1, 2, 3, 4, 5, 6},
		{0.5, -1},
	}))

	out, cache := d.Forward([]float64{1, 1, 2})
	require.NotNil(t, cache)
	assert.Equal(t, []float64{1 + 2 + 6 + 0.5, 4 + 5 + 12 - 1}, out)
	assert.Equal(t, 2.0, d.GetWeight(0, 1))
}

func TestDenseInitialization(t *testing.T) {
	d := NewDense(2048, 128, 0.001, rand.New(rand.NewSource(2)))
	params := d.Params()
	assert.Equal(t, []int{128, 2048}, params[0].Shape)
	assert.Equal(t, []int{128}, params[1].Shape)
	assert.Zero(t, floats.Norm(params[1].Data, 2))
	assert.Equal(t, 2048, d.InSize())
	assert.Equal(t, 128, d.OutSize())
}

func TestDenseGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	d := NewDense(5, 4, 0.001, rng)
	for i := 0; i < 4; i++ {
		d.SetBias(i, rng.NormFloat64())
	}
	x := make([]float64, 5)
	r := make([]float64, 4)
	for i := range x {
		x[i] = rng.NormFloat64()
	}
	for i := range r {
		r[i] = rng.NormFloat64()
	}

	_, cache := d.Forward(x)
	gradIn := d.Backward(cache, r)
	gradW, gradB := d.Gradients()

	wantIn := fd.Gradient(nil, func(v []float64) float64 {
		o, _ := d.Forward(v)
		return floats.Dot(o, r)
	}, x, central)
	assert.True(t, floats.EqualApprox(wantIn, gradIn, 1e-6))

	w := d.Params()[0].Data
	orig := append([]float64(nil), w...)
	wantW := fd.Gradient(nil, func(v []float64) float64 {
		copy(w, v)
		o, _ := d.Forward(x)
		return floats.Dot(o, r)
	}, orig, central)
	copy(w, orig)
	assert.True(t, floats.EqualApprox(wantW, gradW, 1e-6))
	assert.Equal(t, r, gradB)
}

func TestDenseCacheIsolation(t *testing.T) {
	d := NewDense(2, 1, 0.001, rand.New(rand.NewSource(4)))
	require.NoError(t, d.LoadParams([][]float64{{1, 1}, {0}}))

	x := []float64{3, 4}
	_, cache := d.Forward(x)
	x[0] = 100

	d.Backward(cache, []float64{1})
	gw, _ := d.Gradients()
	assert.Equal(t, []float64{3, 4}, gw)
}

func TestDenseBackwardWithoutForward(t *testing.T) {
	d := NewDense(2, 2, 0.001, rand.New(rand.NewSource(5)))
	assert.PanicsWithValue(t, ErrNoForwardPass, func() {
		d.Backward(nil, []float64{1, 1})
	})
}

func TestDenseForwardLengthMismatch(t *testing.T) {
	d := NewDense(3, 2, 0.001, rand.New(rand.NewSource(6)))
	assert.Panics(t, func() { d.Forward([]float64{1, 2}) })
}

func TestDenseUpdateReducesLoss(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	d := NewDense(4, 1, 0.05, rng)
	x := []float64{0.5, -0.2, 0.1, 0.9}
	target := 2.0

	lossAt := func() float64 {
		o, _ := d.Forward(x)
		diff := o[0] - target
		return diff * diff
	}

	start := lossAt()
	for i := 0; i < 50; i++ {
		o, cache := d.Forward(x)
		d.Backward(cache, []float64{2 * (o[0] - target)})
		d.Update()
	}
	assert.Less(t, lossAt(), start)
	assert.Equal(t, 50, d.Optimizer().StepCount())
}
