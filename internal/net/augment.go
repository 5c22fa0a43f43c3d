package net

import (
	"math"
	"math/rand"

	"github.com/FlavioCFOliveira/ConvDigits/internal/tensor"
)

const (
	maxRotationDegrees = 15.0
	maxShift           = 2
	noiseLevel         = 0.1
)

// Augment returns a perturbed copy of img. Rotation, shift and noise are
// each applied independently with probability 1/2, in that order.
func Augment(img *tensor.Volume, rng *rand.Rand) *tensor.Volume {
	out := img.Clone()
	if rng.Intn(2) == 0 {
		angle := (rng.Float64() - 0.5) * 2 * maxRotationDegrees * math.Pi / 180
		out = Rotate(out, angle)
	}
	if rng.Intn(2) == 0 {
		dx := rng.Intn(2*maxShift+1) - maxShift
		dy := rng.Intn(2*maxShift+1) - maxShift
		out = Shift(out, dx, dy)
	}
	if rng.Intn(2) == 0 {
		out = AddNoise(out, noiseLevel, rng)
	}
	return out
}

// Rotate rotates every channel by angle radians about the image centre
// using nearest-neighbour backward mapping. Cells that map outside the
// source are zero.
func Rotate(img *tensor.Volume, angle float64) *tensor.Volume {
	out := tensor.NewVolume(img.C, img.H, img.W)
	cy, cx := img.H/2, img.W/2
	sin, cos := math.Sincos(angle)

	for c := 0; c < img.C; c++ {
		src, dst := img.Plane(c), out.Plane(c)
		for y := 0; y < img.H; y++ {
			dy := float64(y - cy)
			for x := 0; x < img.W; x++ {
				dx := float64(x - cx)
				sy := int(cos*dy + sin*dx + float64(cy))
				sx := int(-sin*dy + cos*dx + float64(cx))
				if sy >= 0 && sy < img.H && sx >= 0 && sx < img.W {
					dst[y*img.W+x] = src[sy*img.W+sx]
				}
			}
		}
	}
	return out
}

// Shift translates every channel by (dx, dy) pixels, filling with zero.
func Shift(img *tensor.Volume, dx, dy int) *tensor.Volume {
	out := tensor.NewVolume(img.C, img.H, img.W)
	for c := 0; c < img.C; c++ {
		src, dst := img.Plane(c), out.Plane(c)
		for y := 0; y < img.H; y++ {
			sy := y - dy
			if sy < 0 || sy >= img.H {
				continue
			}
			for x := 0; x < img.W; x++ {
				sx := x - dx
				if sx >= 0 && sx < img.W {
					dst[y*img.W+x] = src[sy*img.W+sx]
				}
			}
		}
	}
	return out
}

// AddNoise adds uniform noise in [-level/2, level/2) and clips to [0, 1].
func AddNoise(img *tensor.Volume, level float64, rng *rand.Rand) *tensor.Volume {
	out := tensor.NewVolume(img.C, img.H, img.W)
	for i, v := range img.Data {
		out.Data[i] = math.Max(0, math.Min(1, v+(rng.Float64()-0.5)*level))
	}
	return out
}
