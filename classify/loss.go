package classify

import "math"

// softmax computes the softmax of the logits with the usual max-subtraction
// for numeric stability.
func softmax(logits []float32) []float32 {
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}
	probs := make([]float32, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxLogit))
		probs[i] = float32(e)
		sum += e
	}
	for i := range probs {
		probs[i] = float32(float64(probs[i]) / sum)
	}
	return probs
}

// crossEntropy returns the cross-entropy loss of the logits against the true
// label and the gradient of the loss with respect to the logits
// (softmax - one_hot).
func crossEntropy(logits []float32, label int) (loss float64, grad []float32) {
	probs := softmax(logits)
	p := float64(probs[label])
	if p < 1e-12 {
		p = 1e-12
	}
	loss = -math.Log(p)
	grad = probs
	grad[label] -= 1.0
	return loss, grad
}
