package classify

import (
	"math"

	"github.com/pkg/errors"
)

// Optimizer applies one update step to the head's parameters given averaged
// minibatch gradients.
type Optimizer interface {
	Step(weights [][]float32, bias []float32, gradW [][]float32, gradB []float32)
}

// newOptimizer builds the optimizer selected by the config.
func newOptimizer(cfg Config) (Optimizer, error) {
	switch cfg.Optimizer {
	case "sgd":
		return &sgd{lr: float32(cfg.LearningRate)}, nil
	case "adam":
		return &adam{
			lr:    cfg.LearningRate,
			beta1: cfg.Beta1,
			beta2: cfg.Beta2,
			eps:   cfg.Epsilon,
		}, nil
	}
	return nil, errors.Errorf("unknown optimizer %q (want \"sgd\" or \"adam\")", cfg.Optimizer)
}

// sgd is plain stochastic gradient descent over the averaged minibatch
// gradients.
type sgd struct {
	lr float32
}

func (o *sgd) Step(weights [][]float32, bias []float32, gradW [][]float32, gradB []float32) {
	for j := range weights {
		for i := range weights[j] {
			weights[j][i] -= o.lr * gradW[j][i]
		}
		bias[j] -= o.lr * gradB[j]
	}
}

// adam keeps per-parameter first and second moment estimates with bias
// correction.
type adam struct {
	lr, beta1, beta2, eps float64

	t      int
	mW, vW [][]float64
	mB, vB []float64
}

func (o *adam) ensureState(weights [][]float32) {
	if o.mW != nil {
		return
	}
	o.mW = make([][]float64, len(weights))
	o.vW = make([][]float64, len(weights))
	for j := range weights {
		o.mW[j] = make([]float64, len(weights[j]))
		o.vW[j] = make([]float64, len(weights[j]))
	}
	o.mB = make([]float64, len(weights))
	o.vB = make([]float64, len(weights))
}

func (o *adam) Step(weights [][]float32, bias []float32, gradW [][]float32, gradB []float32) {
	o.ensureState(weights)
	o.t++
	c1 := 1.0 - math.Pow(o.beta1, float64(o.t))
	c2 := 1.0 - math.Pow(o.beta2, float64(o.t))

	update := func(m, v *float64, g float64) float64 {
		*m = o.beta1**m + (1.0-o.beta1)*g
		*v = o.beta2**v + (1.0-o.beta2)*g*g
		mHat := *m / c1
		vHat := *v / c2
		return o.lr * mHat / (math.Sqrt(vHat) + o.eps)
	}

	for j := range weights {
		for i := range weights[j] {
			weights[j][i] -= float32(update(&o.mW[j][i], &o.vW[j][i], float64(gradW[j][i])))
		}
		bias[j] -= float32(update(&o.mB[j], &o.vB[j], float64(gradB[j])))
	}
}

// clipGradients scales the gradients in place so their global L2 norm does
// not exceed clipNorm. No-op when clipNorm <= 0 or the norm is within bounds.
func clipGradients(gradW [][]float32, gradB []float32, clipNorm float64) {
	if clipNorm <= 0 {
		return
	}
	var sumSq float64
	for _, row := range gradW {
		for _, g := range row {
			sumSq += float64(g) * float64(g)
		}
	}
	for _, g := range gradB {
		sumSq += float64(g) * float64(g)
	}
	norm := math.Sqrt(sumSq)
	if norm <= clipNorm {
		return
	}
	scale := float32(clipNorm / norm)
	for _, row := range gradW {
		for i := range row {
			row[i] *= scale
		}
	}
	for i := range gradB {
		gradB[i] *= scale
	}
}
