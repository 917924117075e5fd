// Package classify trains and evaluates a linear classification head on top
// of a frozen feature extractor. The backbone stands in for a pretrained
// convolutional network with its final layer removed and its parameters
// frozen; only the head's weights are updated during training.
package classify

import (
	"math"
	"math/rand"
	"time"

	"github.com/pkg/errors"
)

// Config holds configurable hyperparameters for the head and training.
type Config struct {
	// NumClasses is the number of output classes. Required.
	NumClasses int

	// FeatureDim is the dimensionality of the backbone's feature vector.
	// Required.
	FeatureDim int

	// LearningRate used by the optimizer (default 0.001).
	LearningRate float64

	// Epochs to train for (default 3).
	Epochs int

	// Seed controls RNG for weight init and shuffling. If zero, a
	// time-based seed is used.
	Seed int64

	// Optimizer selects the optimizer to use: "adam" or "sgd".
	// Default: "sgd".
	Optimizer string

	// Adam hyperparameters (used when Optimizer == "adam"; defaults below
	// if zero).
	Beta1   float64
	Beta2   float64
	Epsilon float64

	// ClipNorm is the global gradient clipping threshold. Zero disables
	// clipping.
	ClipNorm float64

	// Verbose enables a progress bar during training.
	Verbose bool
}

func (cfg Config) withDefaults() Config {
	if cfg.LearningRate == 0 {
		cfg.LearningRate = 0.001
	}
	if cfg.Epochs == 0 {
		cfg.Epochs = 3
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if cfg.Optimizer == "" {
		cfg.Optimizer = "sgd"
	}
	if cfg.Beta1 == 0 {
		cfg.Beta1 = 0.9
	}
	if cfg.Beta2 == 0 {
		cfg.Beta2 = 0.999
	}
	if cfg.Epsilon == 0 {
		cfg.Epsilon = 1e-8
	}
	return cfg
}

// Backbone maps transformed pixels to a feature vector. It is the frozen part
// of the model: implementations must be deterministic and are never updated.
type Backbone interface {
	// Features returns the feature vector for one sample's pixels.
	Features(pixels []float32) ([]float32, error)

	// FeatureDim returns the length of the vectors Features produces.
	FeatureDim() int
}

// Flatten is the identity backbone: the normalized pixels themselves are the
// features. Useful for small images and as the default seam where a real
// pretrained extractor would plug in.
type Flatten struct {
	// Dim is the expected pixel-buffer length.
	Dim int
}

// Features implements Backbone.
func (f Flatten) Features(pixels []float32) ([]float32, error) {
	if len(pixels) != f.Dim {
		return nil, errors.Errorf("expected %d pixel values, got %d", f.Dim, len(pixels))
	}
	return pixels, nil
}

// FeatureDim implements Backbone.
func (f Flatten) FeatureDim() int { return f.Dim }

// Head is the trainable classification layer: logits = W*features + b.
type Head struct {
	// Config used for initialization and training.
	Config Config

	// weights is a matrix of shape [classes][features].
	weights [][]float32

	// bias is a vector of length classes.
	bias []float32

	rng *rand.Rand
}

// NewHead creates a head with Xavier-initialized weights and zero biases.
func NewHead(cfg Config) (*Head, error) {
	if cfg.NumClasses <= 0 {
		return nil, errors.New("Config.NumClasses must be positive")
	}
	if cfg.FeatureDim <= 0 {
		return nil, errors.New("Config.FeatureDim must be positive")
	}
	cfg = cfg.withDefaults()

	h := &Head{
		Config: cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}
	limit := float32(math.Sqrt(6.0 / float64(cfg.FeatureDim+cfg.NumClasses)))
	h.weights = make([][]float32, cfg.NumClasses)
	for j := range cfg.NumClasses {
		row := make([]float32, cfg.FeatureDim)
		for i := range row {
			row[i] = (h.rng.Float32()*2.0 - 1.0) * limit * 0.5
		}
		h.weights[j] = row
	}
	h.bias = make([]float32, cfg.NumClasses)
	return h, nil
}

// Forward computes the logits for one feature vector.
func (h *Head) Forward(features []float32) ([]float32, error) {
	if len(features) != h.Config.FeatureDim {
		return nil, errors.Errorf("feature vector has dimension %d, head expects %d",
			len(features), h.Config.FeatureDim)
	}
	logits := make([]float32, h.Config.NumClasses)
	for j, row := range h.weights {
		sum := h.bias[j]
		for i, f := range features {
			sum += row[i] * f
		}
		logits[j] = sum
	}
	return logits, nil
}

// SetBias overwrites the bias vector. Mostly useful to construct heads with a
// known decision behavior in tests and examples.
func (h *Head) SetBias(bias []float32) error {
	if len(bias) != h.Config.NumClasses {
		return errors.Errorf("bias has length %d, head expects %d", len(bias), h.Config.NumClasses)
	}
	copy(h.bias, bias)
	return nil
}

// ZeroParameters resets all weights and biases to zero, making the head
// predict a uniform distribution.
func (h *Head) ZeroParameters() {
	for _, row := range h.weights {
		for i := range row {
			row[i] = 0
		}
	}
	for i := range h.bias {
		h.bias[i] = 0
	}
}

func argmax(values []float32) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
