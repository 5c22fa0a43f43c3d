package layer

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/FlavioCFOliveira/ConvDigits/internal/opt"
	"github.com/FlavioCFOliveira/ConvDigits/internal/tensor"
)

// Dense is a fully connected layer computing W·x + b.
type Dense struct {
	// Weights stored as row-major contiguous slice
	// Shape: [out * in] where weight for output i, input j is at weights[i*in + j]
	weights []float64
	biases  []float64
	inSize  int
	outSize int

	gradWeights []float64
	gradBiases  []float64
	hasGrad     bool

	adam *opt.Adam
}

// DenseCache is the forward state needed by Dense.Backward.
type DenseCache struct {
	input []float64
}

// NewDense creates a fully connected layer. Weights are drawn from
// N(0, 1) * sqrt(2 / in); biases start at zero.
func NewDense(in, out int, learningRate float64, rng *rand.Rand) *Dense {
	weights := make([]float64, out*in)
	scale := math.Sqrt(2.0 / float64(in))
	for i := range weights {
		weights[i] = rng.NormFloat64() * scale
	}

	return &Dense{
		weights:     weights,
		biases:      make([]float64, out),
		inSize:      in,
		outSize:     out,
		gradWeights: make([]float64, out*in),
		gradBiases:  make([]float64, out),
		adam:        opt.NewAdam(learningRate, out*in, out),
	}
}

// Forward computes W·x + b.
func (d *Dense) Forward(x []float64) ([]float64, *DenseCache) {
	if len(x) != d.inSize {
		panic(fmt.Sprintf("Dense: input length %d, layer expects %d", len(x), d.inSize))
	}
	out := tensor.MatVec(d.weights, d.outSize, d.inSize, x)
	floats.Add(out, d.biases)

	input := make([]float64, len(x))
	copy(input, x)
	return out, &DenseCache{input: input}
}

// Backward stores dW = grad ⊗ input and db = grad, and returns Wᵗ·grad.
func (d *Dense) Backward(cache *DenseCache, grad []float64) []float64 {
	if cache == nil {
		panic(ErrNoForwardPass)
	}
	if len(grad) != d.outSize {
		panic(fmt.Sprintf("Dense: gradient length %d, layer outputs %d", len(grad), d.outSize))
	}
	copy(d.gradWeights, tensor.Outer(grad, cache.input))
	copy(d.gradBiases, grad)
	d.hasGrad = true

	return tensor.MatTVec(d.weights, d.outSize, d.inSize, grad)
}

// Update applies Adam to every weight and bias scalar and discards the
// gradients.
func (d *Dense) Update() {
	if !d.hasGrad {
		return
	}
	d.adam.Step(
		[][]float64{d.weights, d.biases},
		[][]float64{d.gradWeights, d.gradBiases},
	)
	zero(d.gradWeights)
	zero(d.gradBiases)
	d.hasGrad = false
}

// SetLearningRate changes the Adam step size.
func (d *Dense) SetLearningRate(lr float64) {
	d.adam.LearningRate = lr
}

// LearningRate returns the Adam step size.
func (d *Dense) LearningRate() float64 {
	return d.adam.LearningRate
}

// Params returns the weight matrix [out, in] and the bias vector [out].
func (d *Dense) Params() []Param {
	return []Param{
		{Name: "weights", Shape: []int{d.outSize, d.inSize}, Data: d.weights},
		{Name: "bias", Shape: []int{d.outSize}, Data: d.biases},
	}
}

// LoadParams overwrites weights and biases.
func (d *Dense) LoadParams(values [][]float64) error {
	if err := loadParams(d.Params(), values); err != nil {
		return fmt.Errorf("Dense: %w", err)
	}
	return nil
}

// Gradients returns the pending weight and bias gradients.
func (d *Dense) Gradients() (weights, biases []float64) {
	return d.gradWeights, d.gradBiases
}

// Optimizer exposes the layer's Adam state.
func (d *Dense) Optimizer() *opt.Adam {
	return d.adam
}

// SetWeight sets a single weight at (row, col).
func (d *Dense) SetWeight(row, col int, val float64) {
	d.weights[row*d.inSize+col] = val
}

// GetWeight gets a single weight at (row, col).
func (d *Dense) GetWeight(row, col int) float64 {
	return d.weights[row*d.inSize+col]
}

// SetBias sets a single bias.
func (d *Dense) SetBias(idx int, val float64) {
	d.biases[idx] = val
}

// InSize returns the input size of the layer.
func (d *Dense) InSize() int {
	return d.inSize
}

// OutSize returns the output size of the layer.
func (d *Dense) OutSize() int {
	return d.outSize
}
