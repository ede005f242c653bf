package analyze

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"tasknlp/internal/classify"
	"tasknlp/internal/ner"
	"tasknlp/internal/trace"
)

var ErrEmptyText = errors.New("text must not be empty")

// EntityExtractor turns raw text into entities grouped by type.
type EntityExtractor interface {
	Extract(ctx context.Context, text string) (ner.EntityCollection, error)
}

// Result is the combined outcome of classification and entity extraction.
type Result struct {
	Type       string               `json:"type"`
	Confidence float64              `json:"confidence"`
	Entities   ner.EntityCollection `json:"entities"`
}

// Orchestrator composes the type classifier and the entity extractor. Both
// are shared read-only across requests.
type Orchestrator struct {
	classifier classify.TypeClassifier
	extractor  EntityExtractor
}

func New(classifier classify.TypeClassifier, extractor EntityExtractor) *Orchestrator {
	return &Orchestrator{classifier: classifier, extractor: extractor}
}

func (o *Orchestrator) PredictType(ctx context.Context, text string) (classify.Result, error) {
	if err := validate(text); err != nil {
		return classify.Result{}, err
	}
	return o.classify(ctx, text)
}

func (o *Orchestrator) ExtractEntities(ctx context.Context, text string) (ner.EntityCollection, error) {
	if err := validate(text); err != nil {
		return nil, err
	}
	return o.extract(ctx, text)
}

// Analyze classifies and extracts concurrently. If either fails, the other
// is canceled and no result is returned.
func (o *Orchestrator) Analyze(ctx context.Context, text string) (Result, error) {
	if err := validate(text); err != nil {
		return Result{}, err
	}
	var (
		typ      classify.Result
		entities ner.EntityCollection
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		typ, err = o.classify(gctx, text)
		return err
	})
	g.Go(func() error {
		var err error
		entities, err = o.extract(gctx, text)
		return err
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	return Result{Type: typ.Type, Confidence: typ.Confidence, Entities: entities}, nil
}

func (o *Orchestrator) classify(ctx context.Context, text string) (classify.Result, error) {
	if o.classifier == nil {
		return classify.Result{}, classify.ErrClassifierUnavailable
	}
	tr, _ := trace.FromContext(ctx)
	if tr != nil {
		tr.ClassifyStart = time.Now()
		defer func() { tr.ClassifyEnd = time.Now() }()
	}
	return o.classifier.Classify(ctx, text)
}

func (o *Orchestrator) extract(ctx context.Context, text string) (ner.EntityCollection, error) {
	if o.extractor == nil {
		return nil, ner.ErrTaggerUnavailable
	}
	tr, _ := trace.FromContext(ctx)
	if tr != nil {
		tr.ExtractStart = time.Now()
		defer func() { tr.ExtractEnd = time.Now() }()
	}
	entities, err := o.extractor.Extract(ctx, text)
	if err != nil {
		return nil, err
	}
	if entities == nil {
		entities = ner.EntityCollection{}
	}
	return entities, nil
}

func validate(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	return nil
}
