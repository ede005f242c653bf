package classify

import (
	"context"
	"fmt"
	"path/filepath"

	"tasknlp/internal/inference"
	"tasknlp/internal/models"
	"tasknlp/internal/tokenize"
)

// Encoder turns raw text into model inputs.
type Encoder interface {
	Encode(text string) tokenize.Encoding
}

type ONNXClassifierConfig struct {
	ModelDir string
	Session  inference.Config
}

// ONNXClassifier is a TypeClassifier over an ONNX sequence classification
// model. It is read-only after construction and safe for concurrent use.
type ONNXClassifier struct {
	encoder Encoder
	session inference.Session
	labels  map[int]string
}

// LoadONNXClassifier opens the model in cfg.ModelDir.
func LoadONNXClassifier(cfg ONNXClassifierConfig, encoder Encoder) (*ONNXClassifier, error) {
	labels, err := models.LoadLabels(cfg.ModelDir)
	if err != nil {
		return nil, err
	}
	session, err := inference.Open(filepath.Join(cfg.ModelDir, "model.onnx"), cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}
	return NewONNXClassifier(encoder, session, labels), nil
}

func NewONNXClassifier(encoder Encoder, session inference.Session, labels map[int]string) *ONNXClassifier {
	return &ONNXClassifier{encoder: encoder, session: session, labels: labels}
}

func (c *ONNXClassifier) Classify(ctx context.Context, text string) (Result, error) {
	if c.session == nil || c.encoder == nil {
		return Result{}, ErrClassifierUnavailable
	}
	enc := c.encoder.Encode(text)
	rows, err := c.session.Run(ctx, inference.Inputs{
		InputIDs:      enc.InputIDs,
		AttentionMask: enc.AttentionMask,
		TokenTypeIDs:  enc.TokenTypeIDs,
	})
	if err != nil {
		return Result{}, fmt.Errorf("classify: %w", err)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return Result{}, fmt.Errorf("classify: model returned no logits")
	}
	probs := softmax(rows[0])
	best := argmax(probs)
	return Result{Type: models.LabelName(c.labels, best), Confidence: probs[best]}, nil
}

func (c *ONNXClassifier) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}
