package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// MatVec computes W·x where W is a row-major rows×cols matrix.
func MatVec(w []float64, rows, cols int, x []float64) []float64 {
	if len(w) != rows*cols || len(x) != cols {
		panic(fmt.Sprintf("tensor: MatVec shape mismatch (%dx%d, len(w)=%d, len(x)=%d)", rows, cols, len(w), len(x)))
	}
	var y mat.VecDense
	y.MulVec(mat.NewDense(rows, cols, w), mat.NewVecDense(cols, x))
	return vecData(&y)
}

// MatTVec computes Wᵗ·g where W is a row-major rows×cols matrix and g has length rows.
func MatTVec(w []float64, rows, cols int, g []float64) []float64 {
	if len(w) != rows*cols || len(g) != rows {
		panic(fmt.Sprintf("tensor: MatTVec shape mismatch (%dx%d, len(w)=%d, len(g)=%d)", rows, cols, len(w), len(g)))
	}
	var y mat.VecDense
	y.MulVec(mat.NewDense(rows, cols, w).T(), mat.NewVecDense(rows, g))
	return vecData(&y)
}

// Outer returns the row-major len(a)×len(b) matrix a·bᵗ.
func Outer(a, b []float64) []float64 {
	d := mat.NewDense(len(a), len(b), nil)
	d.Outer(1, mat.NewVecDense(len(a), a), mat.NewVecDense(len(b), b))
	return d.RawMatrix().Data
}

// Transpose returns the row-major cols×rows transpose of m.
func Transpose(m []float64, rows, cols int) []float64 {
	t := mat.DenseCopyOf(mat.NewDense(rows, cols, m).T())
	return t.RawMatrix().Data
}

// MatMul computes the row-major product of a (ar×ac) and b (ac×bc).
func MatMul(a []float64, ar, ac int, b []float64, bc int) []float64 {
	if len(a) != ar*ac || len(b) != ac*bc {
		panic(fmt.Sprintf("tensor: MatMul shape mismatch (%dx%d · %dx%d)", ar, ac, ac, bc))
	}
	var c mat.Dense
	c.Mul(mat.NewDense(ar, ac, a), mat.NewDense(ac, bc, b))
	return c.RawMatrix().Data
}

func vecData(v *mat.VecDense) []float64 {
	raw := v.RawVector()
	if raw.Inc == 1 {
		return raw.Data[:v.Len()]
	}
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}
