// Package net wires the layers into the fixed digit-classifier pipeline:
//
//	input → conv1 → ReLU → maxpool → conv2 → ReLU → maxpool → flatten
//	      → fc1 → ReLU → dropout → fc2 → softmax
//
// A Network is not safe for concurrent use. Forward and Predict only read
// weights, but Train mutates them and draws dropout masks.
package net

import (
	"math/rand"

	"github.com/FlavioCFOliveira/ConvDigits/internal/activations"
	"github.com/FlavioCFOliveira/ConvDigits/internal/conv"
	"github.com/FlavioCFOliveira/ConvDigits/internal/layer"
	"github.com/FlavioCFOliveira/ConvDigits/internal/loss"
	"github.com/FlavioCFOliveira/ConvDigits/internal/opt"
	"github.com/FlavioCFOliveira/ConvDigits/internal/tensor"
)

// Network is the fixed convolutional classifier.
type Network struct {
	topo Topology

	conv1   *layer.Conv2D
	conv2   *layer.Conv2D
	pool    layer.MaxPool2D
	fc1     *layer.Dense
	dropout *layer.Dropout
	fc2     *layer.Dense

	relu     activations.ReLU
	softmax  activations.Softmax
	loss     loss.CrossEntropy
	schedule *opt.StepLR
}

// pass holds every cache produced by one forward call.
type pass struct {
	conv1 *layer.ConvCache
	act1  *tensor.Volume
	pool1 *layer.PoolCache
	conv2 *layer.ConvCache
	act2  *tensor.Volume
	pool2 *layer.PoolCache
	fc1   *layer.DenseCache
	act3  []float64
	drop  *layer.DropoutMask
	fc2   *layer.DenseCache
}

// New builds a network with freshly initialized weights drawn from a
// generator seeded with topo.Seed.
func New(topo Topology) (*Network, error) {
	if err := topo.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(topo.Seed))
	lr := topo.LearningRate
	c1, c2 := topo.Conv1, topo.Conv2

	return &Network{
		topo:     topo,
		conv1:    layer.NewConv2D(c1.InChannels, c1.OutChannels, c1.KernelSize, c1.Stride, c1.Padding, lr, rng),
		conv2:    layer.NewConv2D(c2.InChannels, c2.OutChannels, c2.KernelSize, c2.Stride, c2.Padding, lr, rng),
		pool:     layer.NewMaxPool2D(topo.PoolSize, topo.PoolStride),
		fc1:      layer.NewDense(topo.FC1.InSize, topo.FC1.OutSize, lr, rng),
		dropout:  layer.NewDropout(topo.DropoutP, rand.New(rand.NewSource(topo.Seed))),
		fc2:      layer.NewDense(topo.FC2.InSize, topo.FC2.OutSize, lr, rng),
		schedule: opt.NewStepLR(lr, topo.DecayEvery, topo.DecayGamma),
	}, nil
}

// Forward runs inference and returns the class probabilities.
func (n *Network) Forward(input *tensor.Volume) []float64 {
	probs, _ := n.forward(input, false)
	return probs
}

// ForwardParallel runs inference with the convolution and pooling stages
// fanned out over exec. The result equals Forward's within floating-point
// tolerance.
func (n *Network) ForwardParallel(exec *conv.Executor, input *tensor.Volume) []float64 {
	x := n.reluVolume(n.conv1.ForwardWith(exec, input))
	x, _ = n.pool.ForwardWith(exec, x)
	x = n.reluVolume(n.conv2.ForwardWith(exec, x))
	x, _ = n.pool.ForwardWith(exec, x)

	h, _ := n.fc1.Forward(x.Data)
	h = activations.Apply(n.relu, h)
	logits, _ := n.fc2.Forward(h)
	return n.softmax.Apply(logits)
}

// Predict returns the most probable class.
func (n *Network) Predict(input *tensor.Volume) int {
	return activations.Argmax(n.Forward(input))
}

func (n *Network) forward(input *tensor.Volume, training bool) ([]float64, *pass) {
	p := &pass{}
	var x *tensor.Volume

	x, p.conv1 = n.conv1.Forward(input)
	p.act1 = x
	x = n.reluVolume(x)
	x, p.pool1 = n.pool.Forward(x)

	x, p.conv2 = n.conv2.Forward(x)
	p.act2 = x
	x = n.reluVolume(x)
	x, p.pool2 = n.pool.Forward(x)

	var h []float64
	h, p.fc1 = n.fc1.Forward(x.Data)
	p.act3 = h
	h = activations.Apply(n.relu, h)
	h, p.drop = n.dropout.Forward(h, training)

	var logits []float64
	logits, p.fc2 = n.fc2.Forward(h)
	return n.softmax.Apply(logits), p
}

// Train runs one sample through the network in training mode, backpropagates
// the cross-entropy loss against label and updates conv1, conv2, fc1 and fc2
// in that order. It returns the loss before the update.
func (n *Network) Train(input *tensor.Volume, label int) float64 {
	probs, p := n.forward(input, true)
	l := n.loss.Forward(probs, label)
	n.backward(p, probs, label)

	for _, t := range n.Layers() {
		t.Update()
	}
	return l
}

// backward accumulates every layer's gradients for one pass and returns the
// gradient with respect to the network input.
func (n *Network) backward(p *pass, probs []float64, label int) *tensor.Volume {
	g := n.loss.Backward(probs, label)
	g = n.fc2.Backward(p.fc2, g)
	g = n.dropout.Backward(p.drop, g)
	g = activations.Backward(n.relu, p.act3, g)
	g = n.fc1.Backward(p.fc1, g)

	pooled := p.pool2.OutputShape()
	gv := tensor.Reshape(g, pooled[0], pooled[1], pooled[2])
	gv = n.pool.Backward(p.pool2, gv)
	gv = n.reluBackward(p.act2, gv)
	gv = n.conv2.Backward(p.conv2, gv)
	gv = n.pool.Backward(p.pool1, gv)
	gv = n.reluBackward(p.act1, gv)
	return n.conv1.Backward(p.conv1, gv)
}

// EndEpoch advances the learning-rate schedule and pushes a changed rate
// to every layer. It returns the rate in effect for the next epoch.
func (n *Network) EndEpoch() float64 {
	lr, changed := n.schedule.Step()
	if changed {
		for _, t := range n.Layers() {
			t.SetLearningRate(lr)
		}
	}
	return lr
}

// LearningRate returns the current shared learning rate.
func (n *Network) LearningRate() float64 {
	return n.schedule.LR()
}

// Epochs returns the number of EndEpoch calls so far.
func (n *Network) Epochs() int {
	return n.schedule.Epoch()
}

// Layers returns the parametric layers in update order.
func (n *Network) Layers() []layer.Trainable {
	return []layer.Trainable{n.conv1, n.conv2, n.fc1, n.fc2}
}

// Topology returns the configuration the network was built from, with
// LearningRate reflecting the current schedule.
func (n *Network) Topology() Topology {
	t := n.topo
	t.LearningRate = n.schedule.LR()
	return t
}

// Conv1 returns the first convolution layer.
func (n *Network) Conv1() *layer.Conv2D { return n.conv1 }

// Conv2 returns the second convolution layer.
func (n *Network) Conv2() *layer.Conv2D { return n.conv2 }

// FC1 returns the hidden fully connected layer.
func (n *Network) FC1() *layer.Dense { return n.fc1 }

// FC2 returns the output layer.
func (n *Network) FC2() *layer.Dense { return n.fc2 }

func (n *Network) reluVolume(v *tensor.Volume) *tensor.Volume {
	return tensor.Reshape(activations.Apply(n.relu, v.Data), v.C, v.H, v.W)
}

func (n *Network) reluBackward(pre, grad *tensor.Volume) *tensor.Volume {
	return tensor.Reshape(activations.Backward(n.relu, pre.Data, grad.Data), grad.C, grad.H, grad.W)
}
