package classify

import (
	"context"
	"errors"
	"math"
)

var ErrClassifierUnavailable = errors.New("type classifier unavailable")

// Result is a single-label classification. Confidence is the probability of
// Type under the softmax of the model logits.
type Result struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// TypeClassifier assigns one label from a fixed label set to a document.
type TypeClassifier interface {
	Classify(ctx context.Context, text string) (Result, error)
}

// softmax converts logits to probabilities, shifting by the max logit to stay
// finite for large inputs.
func softmax(logits []float32) []float64 {
	if len(logits) == 0 {
		return nil
	}
	maxLogit := float64(logits[0])
	for _, l := range logits[1:] {
		maxLogit = math.Max(maxLogit, float64(l))
	}
	out := make([]float64, len(logits))
	sum := 0.0
	for i, l := range logits {
		out[i] = math.Exp(float64(l) - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// argmax returns the index of the largest value; ties go to the lowest index.
func argmax[T float32 | float64](values []T) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
