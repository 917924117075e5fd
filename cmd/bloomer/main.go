package main

// Command bloomer runs the full transfer-learning pipeline over a dataset
// described by an annotations CSV and a split-tags CSV: it trains the
// classification head on the train split, evaluates on the valid split after
// each epoch, then runs inference over the test split and writes a
// predictions CSV that can be uploaded to the visualization service for a
// side-by-side comparison with ground truth.
//
// It can also generate the annotations CSV from a directory tree laid out as
// images/<class name>/<files> via -scan-dir.

import (
	"bufio"
	"flag"
	"fmt"
	"image/color"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Noofbiz/bloomer/classify"
	"github.com/Noofbiz/bloomer/datasets"
)

func main() {
	labelsPath := flag.String("labels", "assets/annotations.csv", "path to the annotations CSV (file_name,class_name)")
	splitsPath := flag.String("splits", "assets/splits.csv", "path to the split-tags CSV (file_name,tag)")
	imagesRoot := flag.String("images", "assets/images", "root directory the file_name column is relative to")
	classesPath := flag.String("classes", "", "optional path to a class-names file, one name per line; line i is class id i. If empty, class_name values are parsed as integer ids")
	outCSV := flag.String("out-csv", "output/predictions.csv", "path for the predictions CSV")
	plotsDir := flag.String("plots", "plots", "output directory for loss/accuracy curves; empty disables plotting")

	epochs := flag.Int("epochs", 3, "number of training epochs")
	batchSize := flag.Int("batch-size", 32, "batch size for all splits")
	learningRate := flag.Float64("learning-rate", 0.001, "learning rate")
	optimizer := flag.String("optimizer", "sgd", "optimizer to use: 'adam' or 'sgd'")
	clipNorm := flag.Float64("clip-norm", 0, "global gradient clipping threshold (0 disables)")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed for init and shuffling")
	workers := flag.Int("workers", runtime.NumCPU(), "worker goroutines for per-batch image decoding (1 = sequential)")
	imageSize := flag.Int("image-size", 224, "side length images are cropped to before training")
	augment := flag.Bool("augment", true, "apply random horizontal flips to the training split")
	verbose := flag.Bool("verbose", false, "show a progress bar during training")

	scanDir := flag.String("scan-dir", "", "if set, scan this directory tree (root/<class>/<image>) and write an annotations CSV to -labels, then exit")
	flag.Parse()

	if *scanDir != "" {
		records, err := datasets.ScanImageDir(*scanDir)
		if err != nil {
			log.Fatalf("[Scan] %v", err)
		}
		if err := ensureParentDir(*labelsPath); err != nil {
			log.Fatalf("[Scan] %v", err)
		}
		if err := datasets.WriteLabels(*labelsPath, records); err != nil {
			log.Fatalf("[Scan] %v", err)
		}
		log.Printf("[Scan] wrote %d annotation rows to %s", len(records), *labelsPath)
		return
	}

	var mapping *datasets.ClassMapping
	var classNames []string
	if *classesPath != "" {
		var err error
		classNames, err = readClassNames(*classesPath)
		if err != nil {
			log.Fatalf("[Setup] failed to read class names: %v", err)
		}
		mapping = datasets.NewClassMapping(classNames)
		log.Printf("[Setup] loaded %d class names from %s", len(classNames), *classesPath)
	}

	rng := rand.New(rand.NewSource(*seed))
	size := *imageSize

	trainSteps := []datasets.Step{
		datasets.Resize(size+32, size+32),
		datasets.CenterCrop(size, size),
	}
	if *augment {
		trainSteps = append(trainSteps, datasets.RandomHorizontalFlip(rng))
	}
	trainPipeline := datasets.NewPipeline(trainSteps...)
	evalPipeline := datasets.NewPipeline(
		datasets.Resize(size+32, size+32),
		datasets.CenterCrop(size, size),
	)

	newLoader := func(split datasets.Split, pipeline *datasets.Pipeline, shuffle, keepNames bool) *datasets.Loader {
		entries, err := datasets.BuildIndex(*labelsPath, *splitsPath, split)
		if err != nil {
			log.Fatalf("[Setup] failed to build %s index: %v", split, err)
		}
		log.Printf("[Setup] %s split: %d examples", split, len(entries))
		ds := datasets.NewImageDataset(entries, *imagesRoot, mapping, pipeline, keepNames)
		return datasets.NewLoader(string(split), ds, *batchSize, shuffle, rng, *workers)
	}

	trainLoader := newLoader(datasets.TrainSplit, trainPipeline, true, false)
	validLoader := newLoader(datasets.ValidSplit, evalPipeline, false, false)
	testLoader := newLoader(datasets.TestSplit, evalPipeline, false, true)

	numClasses := len(classNames)
	if numClasses == 0 {
		numClasses = countClasses(*labelsPath)
	}

	head, err := classify.NewHead(classify.Config{
		NumClasses:   numClasses,
		FeatureDim:   size * size * 3,
		LearningRate: *learningRate,
		Epochs:       *epochs,
		Seed:         *seed,
		Optimizer:    *optimizer,
		ClipNorm:     *clipNorm,
		Verbose:      *verbose,
	})
	if err != nil {
		log.Fatalf("[Setup] failed to create head: %v", err)
	}
	trainer, err := classify.NewTrainer(head, classify.Flatten{Dim: size * size * 3})
	if err != nil {
		log.Fatalf("[Setup] failed to create trainer: %v", err)
	}

	log.Printf("[Train] starting: %d epochs, batch size %d, optimizer %s, lr %g",
		*epochs, *batchSize, *optimizer, *learningRate)
	metrics, err := trainer.Fit(trainLoader, validLoader)
	if err != nil {
		log.Fatalf("[Train] %v", err)
	}
	for _, m := range metrics {
		log.Printf("[Train] epoch %d: train loss %.4f, valid loss %.4f, valid accuracy %.2f%%",
			m.Epoch, m.TrainLoss, m.ValidLoss, m.ValidAccuracy)
	}

	if *plotsDir != "" {
		if err := plotMetrics(*plotsDir, metrics); err != nil {
			log.Printf("warning: failed to plot metrics: %v", err)
		}
	}

	records, accuracy, err := trainer.Infer(testLoader, classNames)
	if err != nil {
		log.Fatalf("[Infer] %v", err)
	}
	if err := ensureParentDir(*outCSV); err != nil {
		log.Fatalf("[Infer] %v", err)
	}
	if err := datasets.WritePredictions(*outCSV, records); err != nil {
		log.Fatalf("[Infer] %v", err)
	}
	log.Printf("[Infer] test accuracy %.2f%%, wrote %d predictions to %s", accuracy, len(records), *outCSV)
}

// readClassNames reads one class name per line, id being the line number.
func readClassNames(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var names []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name != "" {
			names = append(names, name)
		}
	}
	return names, scanner.Err()
}

// countClasses derives the class count from the annotations when no
// class-names file was given: class names must then be integer ids, and the
// count is the largest id seen plus one.
func countClasses(labelsPath string) int {
	labels, err := datasets.LoadLabels(labelsPath)
	if err != nil {
		log.Fatalf("[Setup] failed to load labels for class count: %v", err)
	}
	maxID := -1
	for _, l := range labels {
		var id int
		if _, err := fmt.Sscanf(l.ClassName, "%d", &id); err != nil {
			log.Fatalf("[Setup] class name %q is not an integer id; provide -classes", l.ClassName)
		}
		if id > maxID {
			maxID = id
		}
	}
	return maxID + 1
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}

// plotMetrics writes loss and accuracy curves as PNGs under outDir.
func plotMetrics(outDir string, metrics []classify.EpochMetrics) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}

	trainXY := make(plotter.XYs, 0, len(metrics))
	validXY := make(plotter.XYs, 0, len(metrics))
	accXY := make(plotter.XYs, 0, len(metrics))
	for _, m := range metrics {
		trainXY = append(trainXY, plotter.XY{X: float64(m.Epoch), Y: m.TrainLoss})
		validXY = append(validXY, plotter.XY{X: float64(m.Epoch), Y: m.ValidLoss})
		accXY = append(accXY, plotter.XY{X: float64(m.Epoch), Y: m.ValidAccuracy})
	}

	lossPlot := plot.New()
	lossPlot.Title.Text = "Loss per epoch"
	lossPlot.X.Label.Text = "epoch"
	lossPlot.Y.Label.Text = "loss"

	trainLine, err := plotter.NewLine(trainXY)
	if err != nil {
		return err
	}
	trainLine.Color = color.RGBA{R: 20, G: 80, B: 200, A: 255}
	trainLine.Width = vg.Points(1.2)
	lossPlot.Add(trainLine)
	lossPlot.Legend.Add("train", trainLine)

	validLine, err := plotter.NewLine(validXY)
	if err != nil {
		return err
	}
	validLine.Color = color.RGBA{R: 200, G: 30, B: 30, A: 255}
	validLine.Width = vg.Points(1.2)
	lossPlot.Add(validLine)
	lossPlot.Legend.Add("valid", validLine)
	lossPlot.Add(plotter.NewGrid())

	if err := lossPlot.Save(8*vg.Inch, 6*vg.Inch, filepath.Join(outDir, "loss.png")); err != nil {
		return err
	}

	accPlot := plot.New()
	accPlot.Title.Text = "Validation accuracy per epoch"
	accPlot.X.Label.Text = "epoch"
	accPlot.Y.Label.Text = "accuracy (%)"

	accLine, err := plotter.NewLine(accXY)
	if err != nil {
		return err
	}
	accLine.Color = color.RGBA{R: 40, G: 120, B: 40, A: 255}
	accLine.Width = vg.Points(1.2)
	accPlot.Add(accLine)
	accPlot.Add(plotter.NewGrid())

	return accPlot.Save(8*vg.Inch, 6*vg.Inch, filepath.Join(outDir, "accuracy.png"))
}
