package train

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"time"
)

// Listener observes a Controller. Every method is called from the
// goroutine that produced the event; none of them affects training
// except through a StopRequester.
type Listener interface {
	OnStarted()
	OnStatus(status string)
	OnProgress(percent int)
	OnEpochCompleted(epoch int, loss float64)
	OnAccuracy(accuracy float64)
	OnCompleted()
	OnError(err error)
	OnModelSaved(path string)
	OnModelLoaded(path string)
}

// StopRequester is implemented by listeners that can end a run early.
// The controller polls it after every epoch.
type StopRequester interface {
	StopRequested() bool
}

// BaseListener provides default empty implementations for Listener.
type BaseListener struct{}

func (BaseListener) OnStarted()                               {}
func (BaseListener) OnStatus(status string)                   {}
func (BaseListener) OnProgress(percent int)                   {}
func (BaseListener) OnEpochCompleted(epoch int, loss float64) {}
func (BaseListener) OnAccuracy(accuracy float64)              {}
func (BaseListener) OnCompleted()                             {}
func (BaseListener) OnError(err error)                        {}
func (BaseListener) OnModelSaved(path string)                 {}
func (BaseListener) OnModelLoaded(path string)                {}

// LogListener logs training progress with the standard logger.
type LogListener struct {
	BaseListener
	Logger   *log.Logger
	Interval int // log every Interval epochs; 0 or 1 logs all
}

// NewLogListener logs through l, or the standard logger when l is nil.
func NewLogListener(l *log.Logger, interval int) *LogListener {
	if l == nil {
		l = log.Default()
	}
	return &LogListener{Logger: l, Interval: interval}
}

func (c *LogListener) OnStatus(status string) {
	c.Logger.Print(status)
}

func (c *LogListener) OnEpochCompleted(epoch int, loss float64) {
	if c.Interval <= 1 || epoch%c.Interval == 0 {
		c.Logger.Printf("Epoch %d: loss = %.6f", epoch, loss)
	}
}

func (c *LogListener) OnAccuracy(accuracy float64) {
	c.Logger.Printf("Accuracy: %.2f%%", accuracy*100)
}

func (c *LogListener) OnError(err error) {
	c.Logger.Printf("error: %v", err)
}

func (c *LogListener) OnModelSaved(path string) {
	c.Logger.Printf("Model saved to %s", path)
}

func (c *LogListener) OnModelLoaded(path string) {
	c.Logger.Printf("Model loaded from %s", path)
}

// EarlyStopping requests a stop when the epoch loss has not improved by
// more than Threshold for Patience consecutive epochs.
type EarlyStopping struct {
	BaseListener
	Patience  int
	Threshold float64

	bestLoss     float64
	numBadEpochs int
	stopped      bool
}

// NewEarlyStopping creates an EarlyStopping listener.
func NewEarlyStopping(patience int, threshold float64) *EarlyStopping {
	return &EarlyStopping{
		Patience:  patience,
		Threshold: threshold,
		bestLoss:  math.Inf(1),
	}
}

func (c *EarlyStopping) OnStarted() {
	c.bestLoss = math.Inf(1)
	c.numBadEpochs = 0
	c.stopped = false
}

func (c *EarlyStopping) OnEpochCompleted(epoch int, loss float64) {
	if loss < c.bestLoss-c.Threshold {
		c.bestLoss = loss
		c.numBadEpochs = 0
	} else {
		c.numBadEpochs++
	}
	if c.numBadEpochs >= c.Patience {
		c.stopped = true
	}
}

// StopRequested reports whether patience has run out.
func (c *EarlyStopping) StopRequested() bool {
	return c.stopped
}

// Saver persists the current model.
type Saver interface {
	SaveModel(path string) error
}

// ModelCheckpoint saves the model after every epoch whose loss is the
// best so far.
type ModelCheckpoint struct {
	BaseListener
	Filename string
	Saver    Saver

	bestLoss float64
}

// NewModelCheckpoint creates a checkpoint listener writing through saver.
func NewModelCheckpoint(filename string, saver Saver) *ModelCheckpoint {
	return &ModelCheckpoint{
		Filename: filename,
		Saver:    saver,
		bestLoss: math.Inf(1),
	}
}

func (c *ModelCheckpoint) OnEpochCompleted(epoch int, loss float64) {
	if loss < c.bestLoss {
		c.bestLoss = loss
		// Failures reach listeners through the saver's own OnError.
		_ = c.Saver.SaveModel(c.Filename)
	}
}

// CSVLogger writes one row per epoch: epoch, loss, accuracy (empty when
// no evaluation followed the epoch) and elapsed seconds.
type CSVLogger struct {
	BaseListener
	Filename string
	Append   bool

	file    *os.File
	writer  *csv.Writer
	start   time.Time
	pending []string
}

// NewCSVLogger creates a new CSVLogger.
func NewCSVLogger(filename string, append bool) *CSVLogger {
	return &CSVLogger{
		Filename: filename,
		Append:   append,
	}
}

func (c *CSVLogger) OnStarted() {
	mode := os.O_CREATE | os.O_WRONLY
	if c.Append {
		mode |= os.O_APPEND
	} else {
		mode |= os.O_TRUNC
	}

	file, err := os.OpenFile(c.Filename, mode, 0644)
	if err != nil {
		log.Printf("CSVLogger: failed to open file %s: %v", c.Filename, err)
		return
	}
	c.file = file
	c.writer = csv.NewWriter(file)
	c.start = time.Now()
	c.pending = nil

	info, err := file.Stat()
	if err == nil && (info.Size() == 0 || !c.Append) {
		c.write([]string{"epoch", "loss", "accuracy", "time_seconds"})
	}
}

func (c *CSVLogger) OnEpochCompleted(epoch int, loss float64) {
	if c.writer == nil {
		return
	}
	c.flushPending()
	c.pending = []string{
		strconv.Itoa(epoch),
		fmt.Sprintf("%.6f", loss),
		"",
		fmt.Sprintf("%.2f", time.Since(c.start).Seconds()),
	}
}

func (c *CSVLogger) OnAccuracy(accuracy float64) {
	if c.pending != nil {
		c.pending[2] = fmt.Sprintf("%.4f", accuracy)
	}
}

func (c *CSVLogger) OnCompleted() {
	if c.file == nil {
		return
	}
	c.flushPending()
	c.file.Close()
	c.file = nil
	c.writer = nil
}

func (c *CSVLogger) flushPending() {
	if c.pending != nil {
		c.write(c.pending)
		c.pending = nil
	}
}

func (c *CSVLogger) write(record []string) {
	if err := c.writer.Write(record); err != nil {
		log.Printf("CSVLogger: failed to write record: %v", err)
	}
	c.writer.Flush()
}
