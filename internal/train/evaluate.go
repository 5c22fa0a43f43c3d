package train

import (
	"gonum.org/v1/gonum/stat"

	"github.com/FlavioCFOliveira/ConvDigits/internal/activations"
	"github.com/FlavioCFOliveira/ConvDigits/internal/dataset"
	"github.com/FlavioCFOliveira/ConvDigits/internal/tensor"
)

const numClasses = 10

// Evaluation is the outcome of a detailed evaluation.
type Evaluation struct {
	Accuracy float64
	// Confusion[actual][predicted] counts test samples.
	Confusion [numClasses][numClasses]int
	// ClassAccuracy[i] is the recall of class i; zero for absent classes.
	ClassAccuracy [numClasses]float64
	// MeanClassAccuracy averages ClassAccuracy over the classes present.
	MeanClassAccuracy float64
}

// Evaluate returns the accuracy on the test set and reports it to
// listeners.
func (c *Controller) Evaluate() float64 {
	acc := c.EvaluateDetailed().Accuracy
	c.notify(func(l Listener) { l.OnAccuracy(acc) })
	return acc
}

// EvaluateDetailed classifies the test set and returns the confusion
// matrix with per-class accuracy. Listeners are not notified.
func (c *Controller) EvaluateDetailed() Evaluation {
	c.mu.Lock()
	defer c.mu.Unlock()

	set := c.testData()
	var ev Evaluation
	correct := 0
	for i, img := range set.Images {
		actual := set.Labels[i]
		predicted := c.classify(img)
		if predicted == actual {
			correct++
		}
		// A network with extra outputs can predict outside the digit range;
		// such predictions count as misses and stay out of the matrix.
		if inClassRange(actual) && inClassRange(predicted) {
			ev.Confusion[actual][predicted]++
		}
	}
	if n := set.Len(); n > 0 {
		ev.Accuracy = float64(correct) / float64(n)
	}

	var present []float64
	for i := 0; i < numClasses; i++ {
		total := 0
		for j := 0; j < numClasses; j++ {
			total += ev.Confusion[i][j]
		}
		if total > 0 {
			ev.ClassAccuracy[i] = float64(ev.Confusion[i][i]) / float64(total)
			present = append(present, ev.ClassAccuracy[i])
		}
	}
	if len(present) > 0 {
		ev.MeanClassAccuracy = stat.Mean(present, nil)
	}
	return ev
}

func inClassRange(c int) bool {
	return c >= 0 && c < numClasses
}

// classify must be called with c.mu held.
func (c *Controller) classify(img *tensor.Volume) int {
	if c.exec != nil {
		return activations.Argmax(c.network.ForwardParallel(c.exec, img))
	}
	return c.network.Predict(img)
}

// testData returns the test set, sampling it from the source on first
// use. It must be called with c.mu held.
func (c *Controller) testData() *dataset.Set {
	if c.testSet == nil {
		if c.src == nil {
			c.testSet = &dataset.Set{}
		} else {
			c.testSet = dataset.Generate(c.src, c.cfg.TestSamples, c.cfg.TestNoise)
		}
	}
	return c.testSet
}
