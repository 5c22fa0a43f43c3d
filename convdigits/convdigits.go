// Package convdigits is the public entry point to the digit classifier:
// network construction, persistence, training and evaluation.
package convdigits

import (
	"github.com/FlavioCFOliveira/ConvDigits/internal/conv"
	"github.com/FlavioCFOliveira/ConvDigits/internal/dataset"
	"github.com/FlavioCFOliveira/ConvDigits/internal/model"
	"github.com/FlavioCFOliveira/ConvDigits/internal/net"
	"github.com/FlavioCFOliveira/ConvDigits/internal/tensor"
	"github.com/FlavioCFOliveira/ConvDigits/internal/train"
)

// Re-export common types for easier access
type (
	Network    = net.Network
	Topology   = net.Topology
	Volume     = tensor.Volume
	Controller = train.Controller
	Config     = train.Config
	Listener   = train.Listener
	Evaluation = train.Evaluation
	Prediction = train.Prediction
	Source     = dataset.Source
	Set        = dataset.Set
	Pool       = conv.Pool
	Executor   = conv.Executor
)

// Model errors
var (
	ErrBadMagic           = model.ErrBadMagic
	ErrUnsupportedVersion = model.ErrUnsupportedVersion
	ErrTopologyMismatch   = model.ErrTopologyMismatch
	ErrAlreadyRunning     = train.ErrAlreadyRunning
)

// Network creation
func DefaultTopology() Topology {
	return net.DefaultTopology()
}

func NewNetwork(topo Topology) (*Network, error) {
	return net.New(topo)
}

// NewImage allocates a zeroed single-channel size×size image.
func NewImage(size int) *Volume {
	return tensor.NewVolume(1, size, size)
}

// Parallel execution
func NewPool(workers int) *Pool {
	return conv.NewPool(workers)
}

func NewExecutor(pool *Pool) *Executor {
	return conv.NewExecutor(pool)
}

// Training
func DefaultConfig() Config {
	return train.DefaultConfig()
}

func NewController(cfg Config, n *Network, src Source, opts ...train.Option) *Controller {
	return train.NewController(cfg, n, src, opts...)
}

func NewDigitSource(size int, seed int64) Source {
	return dataset.NewSegments(size, seed)
}

// Listeners
type BaseListener = train.BaseListener

func WithListener(l Listener) train.Option {
	return train.WithListener(l)
}

func WithExecutor(exec *Executor) train.Option {
	return train.WithExecutor(exec)
}

func EarlyStopping(patience int, threshold float64) *train.EarlyStopping {
	return train.NewEarlyStopping(patience, threshold)
}

func CSVLogger(filename string, append bool) *train.CSVLogger {
	return train.NewCSVLogger(filename, append)
}

// Model Persistence
func Save(path string, n *Network) error {
	return model.SaveFile(path, n)
}

func Load(path string) (*Network, error) {
	return model.LoadFile(path)
}
