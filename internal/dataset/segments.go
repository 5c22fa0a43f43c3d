package dataset

import (
	"math"
	"math/rand"
	"sync"

	"github.com/FlavioCFOliveira/ConvDigits/internal/tensor"
)

// Segment endpoints on a unit box (x right, y down). Segments are
// a top, b upper right, c lower right, d bottom, e lower left, f upper
// left, g middle.
var segmentLines = [7][4]float64{
	{0, 0, 1, 0},
	{1, 0, 1, 0.5},
	{1, 0.5, 1, 1},
	{0, 1, 1, 1},
	{0, 0.5, 0, 1},
	{0, 0, 0, 0.5},
	{0, 0.5, 1, 0.5},
}

// Lit segments per digit, as a bitmask over a..g.
var digitSegments = [10]uint8{
	0b0111111, // 0: abcdef
	0b0000110, // 1: bc
	0b1011011, // 2: abdeg
	0b1001111, // 3: abcdg
	0b1100110, // 4: bcfg
	0b1101101, // 5: acdfg
	0b1111101, // 6: acdefg
	0b0000111, // 7: abc
	0b1111111, // 8
	0b1101111, // 9: abcdfg
}

// Segments draws seven-segment style digits with random placement,
// stroke width and pixel noise. It is safe for concurrent use.
type Segments struct {
	Size int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSegments returns a seeded renderer producing size×size images.
func NewSegments(size int, seed int64) *Segments {
	return &Segments{Size: size, rng: rand.New(rand.NewSource(seed))}
}

// Sample renders digit. Pixels lie in [0, 1].
func (s *Segments) Sample(digit int, noise float64) *tensor.Volume {
	if digit < 0 || digit > 9 {
		panic("dataset: digit must be between 0 and 9")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	size := float64(s.Size)
	img := tensor.NewVolume(1, s.Size, s.Size)

	w := size * (0.35 + 0.1*s.rng.Float64())
	h := size * (0.55 + 0.1*s.rng.Float64())
	left := (size-w)/2 + float64(s.rng.Intn(5)-2)
	top := (size-h)/2 + float64(s.rng.Intn(5)-2)
	thickness := size / 32 * (0.8 + 0.7*s.rng.Float64())
	slant := (s.rng.Float64() - 0.5) * 0.3

	for seg, line := range segmentLines {
		if digitSegments[digit]&(1<<seg) == 0 {
			continue
		}
		x0 := left + line[0]*w + slant*(0.5-line[1])*h
		y0 := top + line[1]*h
		x1 := left + line[2]*w + slant*(0.5-line[3])*h
		y1 := top + line[3]*h
		stroke(img, x0, y0, x1, y1, thickness)
	}

	if noise > 0 {
		for i, v := range img.Data {
			v += (s.rng.Float64() - 0.5) * noise
			img.Data[i] = math.Max(0, math.Min(1, v))
		}
	}
	return img
}

// stroke paints a line of the given half-width with a soft edge.
func stroke(img *tensor.Volume, x0, y0, x1, y1, half float64) {
	dx, dy := x1-x0, y1-y0
	length2 := dx*dx + dy*dy
	for y := 0; y < img.H; y++ {
		for x := 0; x < img.W; x++ {
			px, py := float64(x)+0.5, float64(y)+0.5
			t := 0.0
			if length2 > 0 {
				t = math.Max(0, math.Min(1, ((px-x0)*dx+(py-y0)*dy)/length2))
			}
			d := math.Hypot(px-(x0+t*dx), py-(y0+t*dy))
			v := math.Max(0, math.Min(1, half+0.5-d))
			if v > img.Data[y*img.W+x] {
				img.Data[y*img.W+x] = v
			}
		}
	}
}
