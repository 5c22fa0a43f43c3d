package train

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/FlavioCFOliveira/ConvDigits/internal/activations"
	"github.com/FlavioCFOliveira/ConvDigits/internal/conv"
	"github.com/FlavioCFOliveira/ConvDigits/internal/dataset"
	"github.com/FlavioCFOliveira/ConvDigits/internal/model"
	"github.com/FlavioCFOliveira/ConvDigits/internal/net"
	"github.com/FlavioCFOliveira/ConvDigits/internal/tensor"
)

// ErrAlreadyRunning is returned when an operation needs the controller
// idle but a run is in flight.
var ErrAlreadyRunning = errors.New("train: training already running")

// Controller owns a Network and trains it on a background goroutine.
// The network is guarded by a mutex that the run releases between
// batches, so Predict and Evaluate may be called during training.
type Controller struct {
	cfg  Config
	src  dataset.Source
	exec *conv.Executor

	trainSet *dataset.Set
	testSet  *dataset.Set

	mu      sync.Mutex // guards network and testSet
	network *net.Network

	lmu       sync.RWMutex
	listeners []Listener

	running atomic.Bool
	stop    atomic.Bool

	state sync.Mutex
	done  chan struct{}
	runID string
}

// Option configures a Controller.
type Option func(*Controller)

// WithListener registers a listener.
func WithListener(l Listener) Option {
	return func(c *Controller) { c.listeners = append(c.listeners, l) }
}

// WithExecutor routes evaluation through the parallel executor.
func WithExecutor(exec *conv.Executor) Option {
	return func(c *Controller) { c.exec = exec }
}

// WithTrainingSet trains on set instead of sampling the source.
func WithTrainingSet(set *dataset.Set) Option {
	return func(c *Controller) { c.trainSet = set }
}

// WithTestSet evaluates on set instead of sampling the source.
func WithTestSet(set *dataset.Set) Option {
	return func(c *Controller) { c.testSet = set }
}

// NewController creates an idle controller for n. src may be nil when
// both sets are supplied as options.
func NewController(cfg Config, n *net.Network, src dataset.Source, opts ...Option) *Controller {
	c := &Controller{cfg: cfg, network: n, src: src}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddListener registers a listener. It may be called at any time.
func (c *Controller) AddListener(l Listener) {
	c.lmu.Lock()
	c.listeners = append(c.listeners, l)
	c.lmu.Unlock()
}

// Network returns the network currently owned by the controller.
func (c *Controller) Network() *net.Network {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.network
}

// Start launches a training run. It returns ErrAlreadyRunning if a run is
// in flight. Cancelling ctx has the same effect as Stop.
func (c *Controller) Start(ctx context.Context) error {
	// The stop flag is cleared under state so a Stop racing with Start is
	// never overwritten.
	c.state.Lock()
	if !c.running.CompareAndSwap(false, true) {
		c.state.Unlock()
		return ErrAlreadyRunning
	}
	c.stop.Store(false)
	c.state.Unlock()

	samples := c.cfg.TrainSamples
	if c.trainSet != nil {
		samples = c.trainSet.Len()
	}
	if err := c.cfg.validate(samples); err != nil {
		c.running.Store(false)
		return err
	}
	if c.trainSet == nil && c.src == nil {
		c.running.Store(false)
		return errors.New("train: no image source and no training set")
	}
	if err := c.validateSets(); err != nil {
		c.running.Store(false)
		return err
	}

	done := make(chan struct{})
	c.state.Lock()
	c.done = done
	c.runID = uuid.NewString()
	c.state.Unlock()

	go c.run(ctx, done)
	return nil
}

// validateSets checks caller-supplied sets against the network input.
func (c *Controller) validateSets() error {
	c.mu.Lock()
	topo := c.network.Topology()
	sets := []*dataset.Set{c.trainSet, c.testSet}
	c.mu.Unlock()

	for _, set := range sets {
		if set == nil {
			continue
		}
		if err := set.Validate(topo.Conv1.InChannels, topo.InputSize, topo.InputSize); err != nil {
			return fmt.Errorf("train: %w", err)
		}
	}
	return nil
}

// Stop asks the current run to end. The run notices at the next batch or
// epoch boundary; the sample in progress is finished first.
func (c *Controller) Stop() {
	c.state.Lock()
	c.stop.Store(true)
	c.state.Unlock()
}

// IsRunning reports whether a run is in flight.
func (c *Controller) IsRunning() bool {
	return c.running.Load()
}

// RunID identifies the current or most recent run. It is empty before
// the first Start.
func (c *Controller) RunID() string {
	c.state.Lock()
	defer c.state.Unlock()
	return c.runID
}

// Wait blocks until the current run, if any, has finished.
func (c *Controller) Wait() {
	c.state.Lock()
	done := c.done
	c.state.Unlock()
	if done != nil {
		<-done
	}
}

func (c *Controller) stopping(ctx context.Context) bool {
	if ctx.Err() != nil {
		c.stop.Store(true)
	}
	return c.stop.Load()
}

func (c *Controller) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		if !c.stop.Load() && c.cfg.SavePath != "" {
			c.notifyStatus("Saving model...")
			_ = c.SaveModel(c.cfg.SavePath)
		}
		c.running.Store(false)
		c.notify(func(l Listener) { l.OnCompleted() })
	}()
	defer func() {
		if r := recover(); r != nil {
			c.notifyError(fmt.Errorf("train: training error: %v", r))
		}
	}()

	c.notify(func(l Listener) { l.OnStarted() })
	c.notifyStatus(fmt.Sprintf("Run %s started", c.RunID()))
	set := c.trainingData()
	rng := rand.New(rand.NewSource(c.cfg.Seed))
	augRng := rand.New(rand.NewSource(c.cfg.Seed + 1))

	for epoch := 0; epoch < c.cfg.Epochs && !c.stopping(ctx); epoch++ {
		c.notifyStatus(fmt.Sprintf("Training epoch %d/%d", epoch+1, c.cfg.Epochs))
		c.notifyProgress(epoch * 100 / c.cfg.Epochs)

		set.Shuffle(rng)
		loss := c.trainEpoch(ctx, set, epoch, augRng)

		c.endEpoch()
		c.notify(func(l Listener) { l.OnEpochCompleted(epoch+1, loss) })

		if c.cfg.EvalEvery > 0 && (epoch+1)%c.cfg.EvalEvery == 0 {
			c.Evaluate()
		}
		if c.stopRequested() {
			c.Stop()
		}
	}

	if !c.stopping(ctx) {
		c.notifyStatus("Final evaluation...")
		c.Evaluate()
	}
}

// trainingData returns a private copy of the configured set, or samples a
// fresh one from the source.
func (c *Controller) trainingData() *dataset.Set {
	if c.trainSet != nil {
		return &dataset.Set{
			Images: append([]*tensor.Volume(nil), c.trainSet.Images...),
			Labels: append([]int(nil), c.trainSet.Labels...),
		}
	}

	c.notifyStatus("Generating training data...")
	n := c.cfg.TrainSamples
	set := &dataset.Set{Images: make([]*tensor.Volume, n), Labels: make([]int, n)}
	for i := 0; i < n; i++ {
		digit := i % 10
		set.Images[i] = c.src.Sample(digit, c.cfg.TrainNoise)
		set.Labels[i] = digit
		if i%100 == 0 {
			c.notifyProgress(i * 10 / n)
		}
	}
	return set
}

// trainEpoch returns the mean of the batch mean losses. Samples that do
// not fill a final batch are skipped.
func (c *Controller) trainEpoch(ctx context.Context, set *dataset.Set, epoch int, augRng *rand.Rand) float64 {
	numBatches := set.Len() / c.cfg.BatchSize
	augment := c.cfg.Augment && epoch < c.cfg.Epochs-c.cfg.PlainEpochs

	total := 0.0
	completed := 0
	for batch := 0; batch < numBatches && !c.stopping(ctx); batch++ {
		start := batch * c.cfg.BatchSize
		end := start + c.cfg.BatchSize

		total += c.trainBatch(set, start, end, augment, augRng)
		completed++
		c.notifyProgress((epoch*numBatches + batch) * 100 / (c.cfg.Epochs * numBatches))
	}

	if completed == 0 {
		return 0
	}
	return total / float64(completed)
}

// trainBatch trains on set[start:end] one sample at a time and returns
// the mean loss. The network lock is held for the whole batch.
func (c *Controller) trainBatch(set *dataset.Set, start, end int, augment bool, augRng *rand.Rand) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	loss := 0.0
	for i := start; i < end; i++ {
		img := set.Images[i]
		if augment {
			img = net.Augment(img, augRng)
		}
		loss += c.network.Train(img, set.Labels[i])
	}
	return loss / float64(end-start)
}

func (c *Controller) endEpoch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.network.EndEpoch()
}

func (c *Controller) stopRequested() bool {
	c.lmu.RLock()
	defer c.lmu.RUnlock()
	for _, l := range c.listeners {
		if s, ok := l.(StopRequester); ok && s.StopRequested() {
			return true
		}
	}
	return false
}

// SaveModel writes the network to path, creating parent directories.
// The outcome is also reported to listeners.
func (c *Controller) SaveModel(path string) error {
	c.mu.Lock()
	err := model.SaveFile(path, c.network)
	c.mu.Unlock()

	if err != nil {
		err = fmt.Errorf("train: failed to save model: %w", err)
		c.notifyError(err)
		return err
	}
	c.notify(func(l Listener) { l.OnModelSaved(path) })
	return nil
}

// LoadModel replaces the network with the one stored at path and then
// evaluates it. It fails with ErrAlreadyRunning during a run; on any
// failure the current network is kept.
func (c *Controller) LoadModel(path string) error {
	if c.running.Load() {
		return ErrAlreadyRunning
	}
	if !c.ModelFileExists(path) {
		err := fmt.Errorf("train: model file not found: %s", path)
		c.notifyError(err)
		return err
	}

	n, err := model.LoadFile(path)
	if err != nil {
		err = fmt.Errorf("train: failed to load model: %w", err)
		c.notifyError(err)
		return err
	}

	c.mu.Lock()
	c.network = n
	c.mu.Unlock()
	c.notify(func(l Listener) { l.OnModelLoaded(path) })

	c.Evaluate()
	return nil
}

// ModelFileExists reports whether a file exists at path.
func (c *Controller) ModelFileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Prediction is the classification of one image.
type Prediction struct {
	Class         int
	Probabilities []float64
	Confidence    float64
}

// Predict classifies input.
func (c *Controller) Predict(input *tensor.Volume) Prediction {
	c.mu.Lock()
	probs := c.network.Forward(input)
	c.mu.Unlock()

	class := activations.Argmax(probs)
	return Prediction{Class: class, Probabilities: probs, Confidence: probs[class]}
}

func (c *Controller) notify(fn func(Listener)) {
	c.lmu.RLock()
	listeners := append([]Listener(nil), c.listeners...)
	c.lmu.RUnlock()
	for _, l := range listeners {
		fn(l)
	}
}

func (c *Controller) notifyStatus(s string) {
	c.notify(func(l Listener) { l.OnStatus(s) })
}

func (c *Controller) notifyProgress(p int) {
	c.notify(func(l Listener) { l.OnProgress(p) })
}

func (c *Controller) notifyError(err error) {
	c.notify(func(l Listener) { l.OnError(err) })
}
