package model

import (
	"bytes"
	"encoding/binary"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FlavioCFOliveira/ConvDigits/internal/net"
	"github.com/FlavioCFOliveira/ConvDigits/internal/tensor"
)

func probes(n int) []*tensor.Volume {
	rng := rand.New(rand.NewSource(99))
	out := make([]*tensor.Volume, n)
	for i := range out {
		v := tensor.NewVolume(1, 32, 32)
		for j := range v.Data {
			v.Data[j] = rng.Float64()
		}
		out[i] = v
	}
	return out
}

func trainedNetwork(t *testing.T) *net.Network {
	t.Helper()
	n, err := net.New(net.DefaultTopology())
	require.NoError(t, err)
	for i, img := range probes(3) {
		n.Train(img, i)
	}
	return n
}

func TestSaveLoadRoundTrip(t *testing.T) {
	n := trainedNetwork(t)
	for i := 0; i < 10; i++ {
		n.EndEpoch()
	}

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, n))

	loaded, err := Load(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	for _, img := range probes(4) {
		assert.Equal(t, n.Forward(img), loaded.Forward(img))
	}
	assert.Equal(t, n.LearningRate(), loaded.LearningRate())
	assert.Equal(t, n.Topology().Conv2, loaded.Topology().Conv2)
	// Optimizer state is not persisted.
	assert.Equal(t, 0, loaded.FC1().Optimizer().StepCount())
}

func TestHeaderLayout(t *testing.T) {
	n, err := net.New(net.DefaultTopology())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, n))

	var header struct {
		Magic, Version int32
		LR             float64
		Conv1, Conv2   [5]int32
		FC1, FC2       [2]int32
		Conv1Dims      [4]int32
	}
	require.NoError(t, binary.Read(bytes.NewReader(buf.Bytes()), binary.BigEndian, &header))

	assert.Equal(t, []byte("JNN1"), buf.Bytes()[:4])
	assert.Equal(t, Version, header.Version)
	assert.Equal(t, 0.001, header.LR)
	assert.Equal(t, [5]int32{1, 16, 3, 1, 1}, header.Conv1)
	assert.Equal(t, [5]int32{16, 32, 3, 1, 1}, header.Conv2)
	assert.Equal(t, [2]int32{2048, 128}, header.FC1)
	assert.Equal(t, [2]int32{128, 10}, header.FC2)
	assert.Equal(t, [4]int32{16, 1, 3, 3}, header.Conv1Dims)

	params := 16*9 + 16 + 32*16*9 + 32 + 2048*128 + 128 + 128*10 + 10
	dims := 4 + 1 + 4 + 1 + 2 + 1 + 2 + 1
	assert.Equal(t, 4+4+8+4*14+4*dims+8*params, buf.Len())
}

func TestLoadRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.BigEndian, []int32{0x12345678, Version}))

	_, err := Load(&buf)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestLoadRejectsVersion(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.BigEndian, []int32{Magic, 2}))

	_, err := Load(&buf)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestLoadRejectsInconsistentStructure(t *testing.T) {
	n, err := net.New(net.DefaultTopology())
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Save(&buf, n))

	data := buf.Bytes()
	// fc1.inputSize sits after magic, version, lr and the two conv blocks.
	binary.BigEndian.PutUint32(data[4+4+8+4*10:], 32*7*7)

	_, err = Load(bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrTopologyMismatch)
}

func TestLoadRejectsDenseSizes(t *testing.T) {
	tests := []struct {
		name     string
		fc1, fc2 [2]int32
	}{
		{"negative fc1 output", [2]int32{2048, -5}, [2]int32{-5, 10}},
		{"zero fc1 output", [2]int32{2048, 0}, [2]int32{0, 10}},
		{"too many classes", [2]int32{2048, 128}, [2]int32{128, 16}},
		{"too few classes", [2]int32{2048, 128}, [2]int32{128, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := net.New(net.DefaultTopology())
			require.NoError(t, err)
			var buf bytes.Buffer
			require.NoError(t, Save(&buf, n))

			data := buf.Bytes()
			off := 4 + 4 + 8 + 4*10
			for i, v := range []int32{tt.fc1[0], tt.fc1[1], tt.fc2[0], tt.fc2[1]} {
				binary.BigEndian.PutUint32(data[off+4*i:], uint32(v))
			}

			assert.NotPanics(t, func() {
				_, err = Load(bytes.NewReader(data))
			})
			assert.ErrorIs(t, err, ErrTopologyMismatch)
		})
	}
}

func TestLoadRejectsWeightDims(t *testing.T) {
	n, err := net.New(net.DefaultTopology())
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Save(&buf, n))

	data := buf.Bytes()
	binary.BigEndian.PutUint32(data[4+4+8+4*14:], 17)

	_, err = Load(bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrTopologyMismatch)
}

func TestLoadTruncated(t *testing.T) {
	n, err := net.New(net.DefaultTopology())
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Save(&buf, n))

	for _, size := range []int{0, 2, 6, 40, buf.Len() / 2, buf.Len() - 1} {
		_, err := Load(bytes.NewReader(buf.Bytes()[:size]))
		if size == 0 {
			assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
			continue
		}
		assert.Error(t, err, "size %d", size)
	}
}

func TestSaveFileCreatesDirectories(t *testing.T) {
	n := trainedNetwork(t)
	path := filepath.Join(t.TempDir(), "outputs", "nested", "cnn.jnn")

	require.NoError(t, SaveFile(path, n))
	_, err := os.Stat(path)
	require.NoError(t, err)

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	img := probes(1)[0]
	assert.Equal(t, n.Forward(img), loaded.Forward(img))
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.jnn"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
