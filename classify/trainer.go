package classify

import (
	"io"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"

	"github.com/Noofbiz/bloomer/datasets"
)

// EpochMetrics reports the losses and validation accuracy of one epoch.
type EpochMetrics struct {
	Epoch         int
	TrainLoss     float64
	ValidLoss     float64
	ValidAccuracy float64
}

// Trainer drives the head's parameters through forward/backward/update steps.
// The backbone is never updated.
type Trainer struct {
	Head     *Head
	Backbone Backbone

	// Optim overrides the optimizer built from Head.Config when non-nil.
	Optim Optimizer
}

// NewTrainer creates a trainer for the given head and backbone.
func NewTrainer(head *Head, backbone Backbone) (*Trainer, error) {
	if head == nil {
		return nil, errors.New("head is nil")
	}
	if backbone == nil {
		return nil, errors.New("backbone is nil")
	}
	if backbone.FeatureDim() != head.Config.FeatureDim {
		return nil, errors.Errorf("backbone produces %d features, head expects %d",
			backbone.FeatureDim(), head.Config.FeatureDim)
	}
	return &Trainer{Head: head, Backbone: backbone}, nil
}

func (t *Trainer) optimizer() (Optimizer, error) {
	if t.Optim != nil {
		return t.Optim, nil
	}
	return newOptimizer(t.Head.Config)
}

// Fit runs Config.Epochs training passes over train, each followed by an
// evaluation pass over valid, and returns the per-epoch metrics. Any batch
// failure aborts the run; there is no checkpointing or retry.
func (t *Trainer) Fit(train, valid *datasets.Loader) ([]EpochMetrics, error) {
	optim, err := t.optimizer()
	if err != nil {
		return nil, err
	}

	cfg := t.Head.Config
	metrics := make([]EpochMetrics, 0, cfg.Epochs)
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		trainLoss, err := t.trainEpoch(train, optim)
		if err != nil {
			return nil, errors.Wrapf(err, "epoch %d training pass", epoch)
		}
		validLoss, validAcc, err := t.Evaluate(valid)
		if err != nil {
			return nil, errors.Wrapf(err, "epoch %d validation pass", epoch)
		}
		metrics = append(metrics, EpochMetrics{
			Epoch:         epoch,
			TrainLoss:     trainLoss,
			ValidLoss:     validLoss,
			ValidAccuracy: validAcc,
		})
	}
	return metrics, nil
}

// trainEpoch runs one full training pass. The reported loss is the sum of
// per-batch mean losses divided by the number of samples seen, matching the
// usual running-loss bookkeeping of reference training loops.
func (t *Trainer) trainEpoch(train *datasets.Loader, optim Optimizer) (float64, error) {
	cfg := t.Head.Config
	train.Reset()

	var pBar *progressbar.ProgressBar
	if cfg.Verbose {
		pBar = progressbar.NewOptions(train.NumBatches(),
			progressbar.OptionSetDescription("Training"),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("batches"),
			progressbar.OptionSetTheme(progressbar.ThemeUnicode),
		)
	}

	numClasses := cfg.NumClasses
	featDim := cfg.FeatureDim
	gradW := make([][]float32, numClasses)
	for j := range gradW {
		gradW[j] = make([]float32, featDim)
	}
	gradB := make([]float32, numClasses)

	var runningLoss float64
	var numSamples int
	for {
		batch, err := train.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		if batch.Len() == 0 {
			continue
		}

		// Zero the accumulated gradients before this batch's backward pass.
		for j := range gradW {
			for i := range gradW[j] {
				gradW[j][i] = 0
			}
			gradB[j] = 0
		}

		var batchLoss float64
		for ex := range batch.Len() {
			features, err := t.Backbone.Features(batch.Inputs[ex])
			if err != nil {
				return 0, err
			}
			logits, err := t.Head.Forward(features)
			if err != nil {
				return 0, err
			}
			loss, dLogits := crossEntropy(logits, batch.Labels[ex])
			batchLoss += loss

			for j, d := range dLogits {
				gradB[j] += d
				row := gradW[j]
				for i, f := range features {
					row[i] += d * f
				}
			}
		}

		// Average over the minibatch, clip and apply one update step.
		bInv := float32(1.0 / float64(batch.Len()))
		for j := range gradW {
			for i := range gradW[j] {
				gradW[j][i] *= bInv
			}
			gradB[j] *= bInv
		}
		clipGradients(gradW, gradB, cfg.ClipNorm)
		optim.Step(t.Head.weights, t.Head.bias, gradW, gradB)

		runningLoss += batchLoss / float64(batch.Len())
		numSamples += batch.Len()
		if pBar != nil {
			_ = pBar.Add(1)
		}
	}
	if pBar != nil {
		_ = pBar.Close()
	}
	if numSamples == 0 {
		return 0, errors.New("training pass yielded no samples")
	}
	return runningLoss / float64(numSamples), nil
}

// Evaluate runs a forward-only pass and returns the loss (same bookkeeping as
// training) and the accuracy percentage of argmax predictions.
func (t *Trainer) Evaluate(loader *datasets.Loader) (loss float64, accuracy float64, err error) {
	loader.Reset()

	var runningLoss float64
	var numSamples, correct int
	for {
		batch, err := loader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, 0, err
		}
		if batch.Len() == 0 {
			continue
		}

		var batchLoss float64
		for ex := range batch.Len() {
			features, err := t.Backbone.Features(batch.Inputs[ex])
			if err != nil {
				return 0, 0, err
			}
			logits, err := t.Head.Forward(features)
			if err != nil {
				return 0, 0, err
			}
			sampleLoss, _ := crossEntropy(logits, batch.Labels[ex])
			batchLoss += sampleLoss
			if argmax(logits) == batch.Labels[ex] {
				correct++
			}
		}
		runningLoss += batchLoss / float64(batch.Len())
		numSamples += batch.Len()
	}
	if numSamples == 0 {
		return 0, 0, errors.New("evaluation pass yielded no samples")
	}
	return runningLoss / float64(numSamples), 100.0 * float64(correct) / float64(numSamples), nil
}
