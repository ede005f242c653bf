package ner

import (
	"context"
	"errors"

	"tasknlp/internal/tokenize"
)

var ErrTaggerUnavailable = errors.New("entity tagger unavailable")

// EntityTagger labels every subword of a word sequence.
type EntityTagger interface {
	TagSubwords(ctx context.Context, words []tokenize.Word) (Tagging, error)
}

// Extractor is the entity extraction pipeline: segmentation, subword tagging,
// word alignment and BIO decoding.
type Extractor struct {
	segmenter tokenize.Segmenter
	tagger    EntityTagger
}

// NewExtractor builds an Extractor. A nil segmenter selects
// tokenize.DefaultSegmenter.
func NewExtractor(segmenter tokenize.Segmenter, tagger EntityTagger) *Extractor {
	if segmenter == nil {
		segmenter = tokenize.DefaultSegmenter{}
	}
	return &Extractor{segmenter: segmenter, tagger: tagger}
}

func (e *Extractor) Extract(ctx context.Context, text string) (EntityCollection, error) {
	if e.tagger == nil {
		return nil, ErrTaggerUnavailable
	}
	words := e.segmenter.Segment(text)
	if len(words) == 0 {
		return EntityCollection{}, nil
	}
	tagging, err := e.tagger.TagSubwords(ctx, words)
	if err != nil {
		return nil, err
	}
	return decodeWords(words, AlignWords(tagging)), nil
}

func decodeWords(words []tokenize.Word, aligned []WordLabel) EntityCollection {
	d := NewDecoder()
	for _, wl := range aligned {
		if wl.Word >= len(words) {
			continue
		}
		d.Step(ParseLabel(wl.Label), words[wl.Word].Text)
	}
	return d.Finish()
}
