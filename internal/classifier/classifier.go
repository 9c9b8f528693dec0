// Package classifier turns uploaded MRI images into tumor category predictions.
package classifier

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/mri-check/internal/logging"
	"github.com/example/mri-check/internal/session"
)

// Classifier preprocesses an image, runs the shared model and interprets the output.
type Classifier struct {
	models *Lazy
	logger *zap.Logger
}

// New constructs a Classifier backed by models.
func New(models *Lazy, logger *zap.Logger) *Classifier {
	return &Classifier{models: models, logger: logger.Named("classifier")}
}

// Predict returns the full prediction including per-class probabilities.
func (c *Classifier) Predict(ctx context.Context, image []byte) (Prediction, error) {
	input, err := Preprocess(image)
	if err != nil {
		c.logger.Info("rejected upload", zap.Error(err), zap.Int("bytes", len(image)))
		return Prediction{}, err
	}

	model, err := c.models.Get(ctx)
	if err != nil {
		wrapped := logging.NewOperationError("classifier.load_model", "", err)
		c.logger.Error("model unavailable", zap.Error(wrapped))
		return Prediction{}, wrapped
	}

	probs, err := model.Predict(ctx, input)
	if err != nil {
		if !errors.Is(err, session.ErrClassification) {
			err = fmt.Errorf("%w: %v", session.ErrClassification, err)
		}
		wrapped := logging.NewOperationError("classifier.predict", "", err)
		c.logger.Error("model prediction failed", zap.Error(wrapped))
		return Prediction{}, wrapped
	}

	prediction, err := Interpret(probs)
	if err != nil {
		c.logger.Error("unusable model output", zap.Error(err), zap.Float32s("probabilities", probs))
		return Prediction{}, err
	}
	c.logger.Debug("classified image",
		zap.String("label", prediction.Label),
		zap.Float64("confidence", prediction.Confidence),
	)
	return prediction, nil
}

// Classify satisfies session.Classifier.
func (c *Classifier) Classify(ctx context.Context, image []byte) (string, float64, error) {
	prediction, err := c.Predict(ctx, image)
	if err != nil {
		return "", 0, err
	}
	return prediction.Label, prediction.Confidence, nil
}
