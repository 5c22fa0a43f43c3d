package opt

// StepLR multiplies the learning rate by Gamma every StepSize epochs.
type StepLR struct {
	StepSize int
	Gamma    float64

	lastEpoch int
	lr        float64
}

// NewStepLR creates a schedule starting at initialLR.
func NewStepLR(initialLR float64, stepSize int, gamma float64) *StepLR {
	return &StepLR{StepSize: stepSize, Gamma: gamma, lr: initialLR}
}

// Step records the end of an epoch. It returns the current learning rate
// and whether it changed on this call.
func (s *StepLR) Step() (float64, bool) {
	s.lastEpoch++
	if s.StepSize > 0 && s.lastEpoch%s.StepSize == 0 {
		s.lr *= s.Gamma
		return s.lr, true
	}
	return s.lr, false
}

// LR returns the current learning rate.
func (s *StepLR) LR() float64 {
	return s.lr
}

// Epoch returns the number of completed epochs.
func (s *StepLR) Epoch() int {
	return s.lastEpoch
}
