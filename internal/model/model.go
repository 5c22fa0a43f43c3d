// Package model reads and writes trained networks in the JNN1 binary
// format. All values are big-endian:
//
//	int32   magic (0x4A4E4E31, "JNN1")
//	int32   version
//	float64 learning rate
//	int32×5 conv1 in, out, kernel, stride, padding
//	int32×5 conv2 in, out, kernel, stride, padding
//	int32×2 fc1 in, out
//	int32×2 fc2 in, out
//
// followed, for conv1, conv2, fc1 and fc2 in turn, by the weight tensor
// (one int32 per dimension, then the values in row-major order) and the
// bias (int32 length, then the values). Optimizer state is not stored.
package model

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/FlavioCFOliveira/ConvDigits/internal/layer"
	"github.com/FlavioCFOliveira/ConvDigits/internal/net"
)

const (
	// Classes is the number of outputs a stored network must produce.
	Classes = 10
	// Magic identifies a model file.
	Magic int32 = 0x4A4E4E31
	// Version is the only format version this package reads and writes.
	Version int32 = 1
)

var (
	// ErrBadMagic is returned when the stream does not start with Magic.
	ErrBadMagic = errors.New("model: not a JNN1 model file")
	// ErrUnsupportedVersion is returned for any version other than Version.
	ErrUnsupportedVersion = errors.New("model: unsupported format version")
	// ErrTopologyMismatch is returned when the structure block does not
	// describe a valid network or a weight block disagrees with it.
	ErrTopologyMismatch = errors.New("model: weights do not match the declared structure")
)

var order = binary.BigEndian

// Save writes n to w.
func Save(w io.Writer, n *net.Network) error {
	bw := bufio.NewWriter(w)
	topo := n.Topology()

	header := []any{
		Magic,
		Version,
		topo.LearningRate,
		convFields(topo.Conv1),
		convFields(topo.Conv2),
		[]int32{int32(topo.FC1.InSize), int32(topo.FC1.OutSize)},
		[]int32{int32(topo.FC2.InSize), int32(topo.FC2.OutSize)},
	}
	for _, v := range header {
		if err := binary.Write(bw, order, v); err != nil {
			return fmt.Errorf("model: write header: %w", err)
		}
	}

	for i, l := range n.Layers() {
		if err := writeLayer(bw, l); err != nil {
			return fmt.Errorf("model: write layer %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// SaveFile writes n to path, creating parent directories as needed.
func SaveFile(path string, n *net.Network) (err error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("model: create directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("model: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("model: %w", cerr)
		}
	}()
	return Save(f, n)
}

// Load reads a network from r. The header is fully validated before any
// network is built; the returned network starts with fresh optimizer
// state.
func Load(r io.Reader) (*net.Network, error) {
	br := bufio.NewReader(r)

	topo, err := readHeader(br)
	if err != nil {
		return nil, err
	}
	n, err := net.New(topo)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTopologyMismatch, err)
	}

	for i, l := range n.Layers() {
		if err := readLayer(br, l); err != nil {
			return nil, fmt.Errorf("model: read layer %d: %w", i, err)
		}
	}
	return n, nil
}

// LoadFile reads a network from path.
func LoadFile(path string) (*net.Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func readHeader(r io.Reader) (net.Topology, error) {
	var magic, version int32
	if err := binary.Read(r, order, &magic); err != nil {
		return net.Topology{}, fmt.Errorf("model: read magic: %w", eof(err))
	}
	if magic != Magic {
		return net.Topology{}, fmt.Errorf("%w (magic 0x%08X)", ErrBadMagic, uint32(magic))
	}
	if err := binary.Read(r, order, &version); err != nil {
		return net.Topology{}, fmt.Errorf("model: read version: %w", eof(err))
	}
	if version != Version {
		return net.Topology{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	var lr float64
	var conv1, conv2 [5]int32
	var fc1, fc2 [2]int32
	for _, v := range []any{&lr, &conv1, &conv2, &fc1, &fc2} {
		if err := binary.Read(r, order, v); err != nil {
			return net.Topology{}, fmt.Errorf("model: read structure: %w", eof(err))
		}
	}

	topo := net.DefaultTopology()
	topo.LearningRate = lr
	topo.Conv1 = convSpec(conv1)
	topo.Conv2 = convSpec(conv2)
	topo.FC1 = net.DenseSpec{InSize: int(fc1[0]), OutSize: int(fc1[1])}
	topo.FC2 = net.DenseSpec{InSize: int(fc2[0]), OutSize: int(fc2[1])}
	if err := topo.Validate(); err != nil {
		return net.Topology{}, fmt.Errorf("%w: %v", ErrTopologyMismatch, err)
	}
	if topo.FC2.OutSize != Classes {
		return net.Topology{}, fmt.Errorf("%w: fc2 has %d outputs, want %d", ErrTopologyMismatch, topo.FC2.OutSize, Classes)
	}
	return topo, nil
}

func convFields(s net.ConvSpec) []int32 {
	return []int32{int32(s.InChannels), int32(s.OutChannels), int32(s.KernelSize), int32(s.Stride), int32(s.Padding)}
}

func convSpec(f [5]int32) net.ConvSpec {
	return net.ConvSpec{
		InChannels:  int(f[0]),
		OutChannels: int(f[1]),
		KernelSize:  int(f[2]),
		Stride:      int(f[3]),
		Padding:     int(f[4]),
	}
}

// writeLayer writes the weight tensor with its full shape and the bias
// with its length.
func writeLayer(w io.Writer, l layer.Trainable) error {
	params := l.Params()
	weights, bias := params[0], params[1]

	dims := make([]int32, len(weights.Shape))
	for i, d := range weights.Shape {
		dims[i] = int32(d)
	}
	if err := binary.Write(w, order, dims); err != nil {
		return err
	}
	if err := binary.Write(w, order, weights.Data); err != nil {
		return err
	}
	if err := binary.Write(w, order, int32(len(bias.Data))); err != nil {
		return err
	}
	return binary.Write(w, order, bias.Data)
}

func readLayer(r io.Reader, l layer.Trainable) error {
	params := l.Params()
	values := make([][]float64, len(params))

	for i, p := range params {
		dims := make([]int32, len(p.Shape))
		if err := binary.Read(r, order, dims); err != nil {
			return fmt.Errorf("%s dimensions: %w", p.Name, eof(err))
		}
		for j, d := range dims {
			if int(d) != p.Shape[j] {
				return fmt.Errorf("%w: %s shape %v, structure declares %v", ErrTopologyMismatch, p.Name, dims, p.Shape)
			}
		}
		values[i] = make([]float64, len(p.Data))
		if err := binary.Read(r, order, values[i]); err != nil {
			return fmt.Errorf("%s values: %w", p.Name, eof(err))
		}
	}
	return l.LoadParams(values)
}

// eof reports a stream that ends inside a field as unexpected.
func eof(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
