package train

import (
	"bytes"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogListener(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogListener(log.New(&buf, "", 0), 2)

	l.OnEpochCompleted(1, 0.5)
	l.OnEpochCompleted(2, 0.25)
	l.OnAccuracy(0.875)
	l.OnError(errors.New("boom"))

	out := buf.String()
	assert.NotContains(t, out, "Epoch 1:")
	assert.Contains(t, out, "Epoch 2: loss = 0.250000")
	assert.Contains(t, out, "Accuracy: 87.50%")
	assert.Contains(t, out, "error: boom")
}

func TestEarlyStopping(t *testing.T) {
	es := NewEarlyStopping(2, 0.01)
	es.OnStarted()

	es.OnEpochCompleted(1, 1.0)
	es.OnEpochCompleted(2, 0.5)
	assert.False(t, es.StopRequested())

	es.OnEpochCompleted(3, 0.495)
	assert.False(t, es.StopRequested())
	es.OnEpochCompleted(4, 0.6)
	assert.True(t, es.StopRequested())

	es.OnStarted()
	assert.False(t, es.StopRequested())
}

type countingSaver struct{ paths []string }

func (s *countingSaver) SaveModel(path string) error {
	s.paths = append(s.paths, path)
	return nil
}

func TestModelCheckpoint(t *testing.T) {
	s := &countingSaver{}
	cp := NewModelCheckpoint("best.jnn", s)

	for epoch, loss := range []float64{1.0, 0.8, 0.9, 0.7, 0.7} {
		cp.OnEpochCompleted(epoch+1, loss)
	}
	assert.Equal(t, []string{"best.jnn", "best.jnn", "best.jnn"}, s.paths)
}

func TestBaseListenerSatisfiesListener(t *testing.T) {
	var l Listener = BaseListener{}
	l.OnStarted()
	l.OnCompleted()

	var _ Listener = &LogListener{}
	var _ Listener = &CSVLogger{}
	var _ StopRequester = &EarlyStopping{}
}
