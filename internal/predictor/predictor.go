// Package predictor provides next-character predictors: functions from a
// fixed-length window of vocabulary codes to a probability distribution over
// the vocabulary.
package predictor

import (
	"context"
	"fmt"
	"math"
)

// Predictor maps a padded code window to the probabilities of the next code,
// Null included. Implementations must be safe for concurrent use and must not
// keep state between calls.
type Predictor interface {
	Predict(ctx context.Context, window []int) ([]float64, error)
}

// Func adapts an ordinary function to the Predictor interface.
type Func func(ctx context.Context, window []int) ([]float64, error)

// Predict calls f(ctx, window).
func (f Func) Predict(ctx context.Context, window []int) ([]float64, error) {
	return f(ctx, window)
}

// Error codes carried by Error.
const (
	BadArtifact = "BadArtifact"
	BadInput    = "BadInput"
	BadOutput   = "BadOutput"
	Unavailable = "Unavailable"
)

// Error is returned by predictors and by output validation.
type Error struct {
	Code string
	Msg  string
}

func (e Error) Error() string {
	return fmt.Sprintf("predictor: %s - %s", e.Code, e.Msg)
}

// CanonicalCode returns the code of a predictor Error, or "Unknown".
func CanonicalCode(err error) string {
	e, ok := err.(Error)
	if ok {
		return e.Code
	}
	return "Unknown"
}

// probabilityTolerance bounds how far a distribution may drift from 1.
const probabilityTolerance = 1e-3

// ValidateOutput checks that probs is a distribution over size codes.
func ValidateOutput(probs []float64, size int) error {
	if len(probs) != size {
		return Error{Code: BadOutput, Msg: fmt.Sprintf("got %d probabilities, want %d", len(probs), size)}
	}
	sum := 0.0
	for i, p := range probs {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			return Error{Code: BadOutput, Msg: fmt.Sprintf("probability %d is %v", i, p)}
		}
		sum += p
	}
	if math.Abs(sum-1) > probabilityTolerance {
		return Error{Code: BadOutput, Msg: fmt.Sprintf("probabilities sum to %v", sum)}
	}
	return nil
}

// ValidateWindow checks a window against the vocabulary size and length
// expected by a local model. A non-positive length skips the length check.
func ValidateWindow(window []int, length, vocabSize int) error {
	if length > 0 && len(window) != length {
		return Error{Code: BadInput, Msg: fmt.Sprintf("window has %d codes, want %d", len(window), length)}
	}
	for i, code := range window {
		if code < 0 || code >= vocabSize {
			return Error{Code: BadInput, Msg: fmt.Sprintf("code %d at position %d outside vocabulary of size %d", code, i, vocabSize)}
		}
	}
	return nil
}

func softmax(logits []float64) []float64 {
	maxVal := math.Inf(-1)
	for _, l := range logits {
		if l > maxVal {
			maxVal = l
		}
	}
	probs := make([]float64, len(logits))
	total := 0.0
	for i, l := range logits {
		probs[i] = math.Exp(l - maxVal)
		total += probs[i]
	}
	for i := range probs {
		probs[i] /= total
	}
	return probs
}
