package dataset

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func TestGenerate(t *testing.T) {
	set := Generate(NewSegments(32, 1), 25, 0.1)
	require.Equal(t, 25, set.Len())
	for i, l := range set.Labels {
		assert.Equal(t, i%10, l)
	}
	require.NoError(t, set.Validate(1, 32, 32))
}

func TestSegmentsPixelRange(t *testing.T) {
	src := NewSegments(32, 2)
	for digit := 0; digit < 10; digit++ {
		img := src.Sample(digit, 0.2)
		assert.GreaterOrEqual(t, floats.Min(img.Data), 0.0)
		assert.LessOrEqual(t, floats.Max(img.Data), 1.0)
		assert.Greater(t, floats.Sum(img.Data), 10.0, "digit %d should have ink", digit)
	}
	assert.Panics(t, func() { src.Sample(10, 0) })
}

func TestSegmentsDigitsDiffer(t *testing.T) {
	// Without noise, 8 lights every segment so it carries the most ink.
	a := NewSegments(32, 3)
	b := NewSegments(32, 3)
	one := a.Sample(1, 0)
	eight := b.Sample(8, 0)
	assert.Greater(t, floats.Sum(eight.Data), floats.Sum(one.Data))
}

func TestShuffleKeepsPairs(t *testing.T) {
	set := Generate(NewSegments(8, 4), 50, 0)
	sums := make(map[float64]int)
	for i, img := range set.Images {
		sums[floats.Sum(img.Data)] = set.Labels[i]
	}

	set.Shuffle(rand.New(rand.NewSource(5)))
	for i, img := range set.Images {
		assert.Equal(t, sums[floats.Sum(img.Data)], set.Labels[i])
	}
}

func TestSplit(t *testing.T) {
	set := Generate(NewSegments(8, 6), 10, 0)
	train, test := set.Split(0.8)
	assert.Equal(t, 8, train.Len())
	assert.Equal(t, 2, test.Len())

	all, none := set.Split(1)
	assert.Equal(t, 10, all.Len())
	assert.Equal(t, 0, none.Len())
}

func TestValidate(t *testing.T) {
	set := Generate(NewSegments(8, 7), 3, 0)
	assert.Error(t, set.Validate(1, 32, 32))

	set.Labels[1] = 12
	assert.Error(t, set.Validate(1, 8, 8))
}

func TestLoadCSV(t *testing.T) {
	data := "label,p0,p1,p2,p3\n" +
		"3,0,255,0,0\n" +
		"7,255,255,0,51\n"

	set, err := LoadCSV(strings.NewReader(data), CSVOptions{Size: 2, HasHeader: true, Scale: 1.0 / 255})
	require.NoError(t, err)
	require.Equal(t, 2, set.Len())
	assert.Equal(t, []int{3, 7}, set.Labels)
	assert.Equal(t, []float64{0, 1, 0, 0}, set.Images[0].Data)
	assert.InDelta(t, 0.2, set.Images[1].At(0, 1, 1), 1e-12)
}

func TestLoadCSVErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad label", "x,0,0,0,0\n"},
		{"label range", "11,0,0,0,0\n"},
		{"bad pixel", "1,0,a,0,0\n"},
		{"column count", "1,0,0,0\n"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCSV(strings.NewReader(tt.data), CSVOptions{Size: 2})
			assert.Error(t, err)
		})
	}
}
