package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"strings"

	"github.com/FlavioCFOliveira/ConvDigits/internal/conv"
	"github.com/FlavioCFOliveira/ConvDigits/internal/dataset"
	"github.com/FlavioCFOliveira/ConvDigits/internal/model"
	"github.com/FlavioCFOliveira/ConvDigits/internal/net"
	"github.com/FlavioCFOliveira/ConvDigits/internal/train"
)

const usage = `usage: convdigits <command> [flags]

commands:
  train    train a network and save it
  eval     evaluate a saved network
  predict  classify digits with a saved network`

func main() {
	log.SetFlags(log.LstdFlags)
	log.SetPrefix("convdigits: ")

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "train":
		err = runTrain(os.Args[2:])
	case "eval":
		err = runEval(os.Args[2:])
	case "predict":
		err = runPredict(os.Args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func runTrain(args []string) error {
	cfg := train.DefaultConfig()
	topo := net.DefaultTopology()

	fs := flag.NewFlagSet("train", flag.ExitOnError)
	fs.IntVar(&cfg.Epochs, "epochs", cfg.Epochs, "Number of training epochs")
	fs.IntVar(&cfg.BatchSize, "batch", cfg.BatchSize, "Batch size")
	fs.IntVar(&cfg.TrainSamples, "samples", cfg.TrainSamples, "Generated training samples")
	fs.IntVar(&cfg.TestSamples, "test-samples", cfg.TestSamples, "Generated test samples")
	fs.BoolVar(&cfg.Augment, "augment", cfg.Augment, "Augment training samples")
	fs.IntVar(&cfg.EvalEvery, "eval-every", cfg.EvalEvery, "Evaluate every N epochs (0 disables)")
	fs.StringVar(&cfg.SavePath, "out", cfg.SavePath, "Model output path")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "Shuffle and augmentation seed")
	fs.Float64Var(&topo.LearningRate, "lr", topo.LearningRate, "Learning rate for Adam optimizer")
	resume := fs.String("resume", "", "Continue training from a saved model")
	csvPath := fs.String("data", "", "CSV training data (label + 32x32 pixels in 0-255); generated digits when empty")
	logCSV := fs.String("log", "", "Write per-epoch loss and accuracy to this CSV file")
	patience := fs.Int("patience", 0, "Stop after N epochs without improvement (0 disables)")
	workers := fs.Int("workers", runtime.GOMAXPROCS(0), "Evaluation worker count")
	im2col := fs.Bool("im2col", false, "Evaluate convolutions as a single matrix product")
	fs.Parse(args)

	n, err := net.New(topo)
	if err != nil {
		return err
	}
	if *resume != "" {
		if n, err = model.LoadFile(*resume); err != nil {
			return err
		}
	}

	pool := conv.NewPool(*workers)
	defer pool.Close()

	opts := []train.Option{
		train.WithListener(train.NewLogListener(log.Default(), 1)),
		train.WithExecutor(newExecutor(pool, *im2col)),
	}
	if *csvPath != "" {
		set, err := loadCSV(*csvPath, topo.InputSize)
		if err != nil {
			return err
		}
		trainSet, testSet := set.Split(0.9)
		opts = append(opts, train.WithTrainingSet(trainSet), train.WithTestSet(testSet))
	}
	if *logCSV != "" {
		opts = append(opts, train.WithListener(train.NewCSVLogger(*logCSV, false)))
	}
	if *patience > 0 {
		opts = append(opts, train.WithListener(train.NewEarlyStopping(*patience, 1e-4)))
	}

	errs := &errorListener{}
	opts = append(opts, train.WithListener(errs))
	c := train.NewController(cfg, n, dataset.NewSegments(topo.InputSize, cfg.Seed), opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := c.Start(ctx); err != nil {
		return err
	}
	c.Wait()
	return errs.err
}

func runEval(args []string) error {
	fs := flag.NewFlagSet("eval", flag.ExitOnError)
	path := fs.String("model", train.DefaultConfig().SavePath, "Model file")
	samples := fs.Int("samples", 1000, "Generated test samples")
	seed := fs.Int64("seed", 2, "Test data seed")
	im2col := fs.Bool("im2col", false, "Evaluate convolutions as a single matrix product")
	fs.Parse(args)

	cfg := train.DefaultConfig()
	cfg.TestSamples = *samples

	n, err := model.LoadFile(*path)
	if err != nil {
		return err
	}
	pool := conv.NewPool(0)
	defer pool.Close()

	c := train.NewController(cfg, n, dataset.NewSegments(n.Topology().InputSize, *seed),
		train.WithExecutor(newExecutor(pool, *im2col)))
	ev := c.EvaluateDetailed()

	fmt.Printf("Accuracy: %.2f%% (mean per class %.2f%%)\n", ev.Accuracy*100, ev.MeanClassAccuracy*100)
	fmt.Println("Confusion matrix (rows: actual, columns: predicted):")
	var b strings.Builder
	for i, row := range ev.Confusion {
		fmt.Fprintf(&b, "  %d |", i)
		for _, v := range row {
			fmt.Fprintf(&b, " %4d", v)
		}
		fmt.Fprintf(&b, " | %.1f%%\n", ev.ClassAccuracy[i]*100)
	}
	fmt.Print(b.String())
	return nil
}

func runPredict(args []string) error {
	fs := flag.NewFlagSet("predict", flag.ExitOnError)
	path := fs.String("model", train.DefaultConfig().SavePath, "Model file")
	csvPath := fs.String("data", "", "CSV digits to classify (label + 32x32 pixels in 0-255)")
	seed := fs.Int64("seed", 3, "Seed for generated digits when -data is empty")
	fs.Parse(args)

	n, err := model.LoadFile(*path)
	if err != nil {
		return err
	}
	size := n.Topology().InputSize

	var set *dataset.Set
	if *csvPath != "" {
		if set, err = loadCSV(*csvPath, size); err != nil {
			return err
		}
	} else {
		set = dataset.Generate(dataset.NewSegments(size, *seed), 10, 0.05)
	}

	c := train.NewController(train.DefaultConfig(), n, nil)
	for i, img := range set.Images {
		p := c.Predict(img)
		fmt.Printf("sample %3d: label %d, predicted %d (%.1f%%)\n", i, set.Labels[i], p.Class, p.Confidence*100)
	}
	return nil
}

func newExecutor(pool *conv.Pool, im2col bool) *conv.Executor {
	exec := conv.NewExecutor(pool)
	if im2col {
		exec = exec.WithIm2col()
	}
	return exec
}

// loadCSV reads labelled size×size digits with 0-255 pixels.
func loadCSV(path string, size int) (*dataset.Set, error) {
	set, err := dataset.LoadCSVFile(path, dataset.CSVOptions{Size: size, HasHeader: true, Scale: 1.0 / 255})
	if err != nil {
		return nil, err
	}
	if err := set.Validate(1, size, size); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// errorListener keeps the first error reported during a run.
type errorListener struct {
	train.BaseListener
	err error
}

func (l *errorListener) OnError(err error) {
	if l.err == nil {
		l.err = err
	}
}
