package classifier

import (
	"fmt"
	"math"

	"github.com/example/mri-check/internal/session"
)

// Labels is the model's output order.
var Labels = []string{"Glioma Tumor", "Meningioma Tumor", "No Tumor", "Pituitary Tumor"}

// Prediction is the interpreted model output.
type Prediction struct {
	Index         int
	Label         string
	Confidence    float64
	Probabilities []float32
}

// Interpret picks the arg-max class. Confidence is its probability as a percentage in [0,100];
// on ties the first class wins.
func Interpret(probs []float32) (Prediction, error) {
	if len(probs) != len(Labels) {
		return Prediction{}, fmt.Errorf("%w: expected %d probabilities, got %d", session.ErrClassification, len(Labels), len(probs))
	}
	best := 0
	for i, p := range probs {
		if math.IsNaN(float64(p)) || math.IsInf(float64(p), 0) {
			return Prediction{}, fmt.Errorf("%w: probability %d is not finite", session.ErrClassification, i)
		}
		if p > probs[best] {
			best = i
		}
	}

	confidence := float64(probs[best]) * 100
	confidence = math.Max(0, math.Min(100, confidence))

	out := make([]float32, len(probs))
	copy(out, probs)
	return Prediction{
		Index:         best,
		Label:         Labels[best],
		Confidence:    confidence,
		Probabilities: out,
	}, nil
}
