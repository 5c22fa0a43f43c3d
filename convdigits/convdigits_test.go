package convdigits

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoad(t *testing.T) {
	n, err := NewNetwork(DefaultTopology())
	require.NoError(t, err)

	img := NewImage(32)
	img.Data[img.Index(0, 16, 16)] = 1

	path := filepath.Join(t.TempDir(), "cnn.jnn")
	require.NoError(t, Save(path, n))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, n.Forward(img), loaded.Forward(img))
}

func TestParallelForward(t *testing.T) {
	n, err := NewNetwork(DefaultTopology())
	require.NoError(t, err)
	pool := NewPool(2)
	defer pool.Close()

	img := NewDigitSource(32, 1).Sample(5, 0)
	assert.InDeltaSlice(t, n.Forward(img), n.ForwardParallel(NewExecutor(pool), img), 1e-12)
}
