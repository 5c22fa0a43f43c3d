// Package train runs training and evaluation of a digit network on a
// background goroutine and reports progress to listeners.
package train

import "fmt"

// Config controls a training run.
type Config struct {
	Epochs    int
	BatchSize int

	// TrainSamples and TestSamples are drawn from the image source with
	// labels i % 10. They are ignored when explicit sets are supplied.
	TrainSamples int
	TestSamples  int
	TrainNoise   float64
	TestNoise    float64

	// Augment perturbs training samples, except during the final
	// PlainEpochs epochs.
	Augment     bool
	PlainEpochs int

	// EvalEvery evaluates after every EvalEvery-th epoch; 0 disables
	// intermediate evaluation. A final evaluation always runs unless the
	// run was stopped.
	EvalEvery int

	// SavePath receives the model at the end of a run that was not
	// stopped. Empty disables the save.
	SavePath string

	Seed int64
}

// DefaultConfig returns the standard digit training setup.
func DefaultConfig() Config {
	return Config{
		Epochs:       20,
		BatchSize:    32,
		TrainSamples: 6000,
		TestSamples:  1000,
		TrainNoise:   0.1,
		TestNoise:    0.05,
		Augment:      true,
		PlainEpochs:  2,
		EvalEvery:    5,
		SavePath:     "./outputs/cnn.jnn",
		Seed:         1,
	}
}

func (c Config) validate(trainSamples int) error {
	if c.Epochs <= 0 {
		return fmt.Errorf("train: epochs must be positive, got %d", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("train: batch size must be positive, got %d", c.BatchSize)
	}
	if trainSamples < c.BatchSize {
		return fmt.Errorf("train: %d training samples do not fill one batch of %d", trainSamples, c.BatchSize)
	}
	return nil
}
