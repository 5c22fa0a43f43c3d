// Package dataset supplies labelled digit images to training and
// evaluation.
package dataset

import (
	"fmt"
	"math/rand"

	"github.com/FlavioCFOliveira/ConvDigits/internal/tensor"
)

// Source renders a single-channel image of a digit in [0, 9]. noise is the
// amount of random distortion in [0, 1].
type Source interface {
	Sample(digit int, noise float64) *tensor.Volume
}

// Set is an in-memory collection of labelled images.
type Set struct {
	Images []*tensor.Volume
	Labels []int
}

// Generate draws n samples from src with labels i % 10.
func Generate(src Source, n int, noise float64) *Set {
	s := &Set{
		Images: make([]*tensor.Volume, n),
		Labels: make([]int, n),
	}
	for i := 0; i < n; i++ {
		digit := i % 10
		s.Images[i] = src.Sample(digit, noise)
		s.Labels[i] = digit
	}
	return s
}

// Len returns the number of samples.
func (s *Set) Len() int {
	return len(s.Images)
}

// Shuffle permutes images and labels together (Fisher-Yates).
func (s *Set) Shuffle(rng *rand.Rand) {
	for i := len(s.Images) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		s.Images[i], s.Images[j] = s.Images[j], s.Images[i]
		s.Labels[i], s.Labels[j] = s.Labels[j], s.Labels[i]
	}
}

// Split splits the set at ratio (0.0 to 1.0). Both halves share storage
// with s.
func (s *Set) Split(ratio float64) (*Set, *Set) {
	if ratio <= 0 {
		return &Set{}, s
	}
	if ratio >= 1 {
		return s, &Set{}
	}
	idx := int(float64(s.Len()) * ratio)
	return &Set{Images: s.Images[:idx], Labels: s.Labels[:idx]},
		&Set{Images: s.Images[idx:], Labels: s.Labels[idx:]}
}

// Validate checks that every image has the given shape and every label is
// a digit.
func (s *Set) Validate(c, h, w int) error {
	if len(s.Images) != len(s.Labels) {
		return fmt.Errorf("dataset: %d images but %d labels", len(s.Images), len(s.Labels))
	}
	for i, img := range s.Images {
		if img.C != c || img.H != h || img.W != w {
			return fmt.Errorf("dataset: sample %d has shape %v, want [%d %d %d]", i, img.Shape(), c, h, w)
		}
		if l := s.Labels[i]; l < 0 || l > 9 {
			return fmt.Errorf("dataset: sample %d has label %d", i, l)
		}
	}
	return nil
}
