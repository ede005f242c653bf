package ner

import (
	"context"
	"fmt"
	"path/filepath"

	"tasknlp/internal/inference"
	"tasknlp/internal/models"
	"tasknlp/internal/tokenize"
)

// WordEncoder encodes pre-split words into model inputs.
type WordEncoder interface {
	EncodeWords(words []tokenize.Word) tokenize.Encoding
}

type ONNXTaggerConfig struct {
	ModelDir string
	Session  inference.Config
}

// ONNXTagger is an EntityTagger over an ONNX token classification model. Only
// the argmax label of each position is kept.
type ONNXTagger struct {
	encoder WordEncoder
	session inference.Session
	labels  map[int]string
}

func LoadONNXTagger(cfg ONNXTaggerConfig, encoder WordEncoder) (*ONNXTagger, error) {
	labels, err := models.LoadLabels(cfg.ModelDir)
	if err != nil {
		return nil, err
	}
	session, err := inference.Open(filepath.Join(cfg.ModelDir, "model.onnx"), cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTaggerUnavailable, err)
	}
	return NewONNXTagger(encoder, session, labels), nil
}

func NewONNXTagger(encoder WordEncoder, session inference.Session, labels map[int]string) *ONNXTagger {
	return &ONNXTagger{encoder: encoder, session: session, labels: labels}
}

func (t *ONNXTagger) TagSubwords(ctx context.Context, words []tokenize.Word) (Tagging, error) {
	if t.session == nil || t.encoder == nil {
		return Tagging{}, ErrTaggerUnavailable
	}
	enc := t.encoder.EncodeWords(words)
	rows, err := t.session.Run(ctx, inference.Inputs{
		InputIDs:      enc.InputIDs,
		AttentionMask: enc.AttentionMask,
		TokenTypeIDs:  enc.TokenTypeIDs,
	})
	if err != nil {
		return Tagging{}, fmt.Errorf("tag subwords: %w", err)
	}
	if len(rows) != enc.Len() {
		return Tagging{}, fmt.Errorf("tag subwords: model returned %d rows for %d positions", len(rows), enc.Len())
	}
	labels := make([]string, len(rows))
	for i, row := range rows {
		labels[i] = models.LabelName(t.labels, argmax(row))
	}
	return Tagging{WordIndex: enc.WordIndex, Labels: labels}, nil
}

func (t *ONNXTagger) Close() error {
	if t.session == nil {
		return nil
	}
	return t.session.Close()
}

func argmax(row []float32) int {
	best := 0
	for i, v := range row {
		if v > row[best] {
			best = i
		}
	}
	return best
}
