package ner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasknlp/internal/inference"
	"tasknlp/internal/tokenize"
)

func TestAlignWordsFirstSubwordWins(t *testing.T) {
	tagging := Tagging{
		WordIndex: []int{tokenize.NoWord, 0, 1, 1, 2, tokenize.NoWord},
		Labels:    []string{"O", "B-PER", "I-PER", "B-LOC", "O", "I-PER"},
	}
	got := AlignWords(tagging)
	assert.Equal(t, []WordLabel{{Word: 0, Label: "B-PER"}, {Word: 1, Label: "I-PER"}, {Word: 2, Label: "O"}}, got)
}

func TestAlignWordsNonContiguousRepeat(t *testing.T) {
	got := AlignWords(Tagging{WordIndex: []int{0, 1, 0}, Labels: []string{"B-PER", "O", "B-LOC"}})
	assert.Equal(t, []WordLabel{{Word: 0, Label: "B-PER"}, {Word: 1, Label: "O"}}, got)
}

func TestAlignWordsDeterministic(t *testing.T) {
	tagging := Tagging{WordIndex: []int{-1, 0, 0, 1, 2, 2, -1}, Labels: []string{"O", "B-X", "I-X", "I-X", "B-Y", "O", "O"}}
	first := AlignWords(tagging)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, AlignWords(tagging))
	}
}

func TestAlignWordsTruncatedWordsAbsent(t *testing.T) {
	got := AlignWords(Tagging{WordIndex: []int{-1, 0, 1, -1}, Labels: []string{"O", "B-PER", "I-PER", "O"}})
	assert.Len(t, got, 2)
}

func TestAlignWordsShortLabels(t *testing.T) {
	got := AlignWords(Tagging{WordIndex: []int{0, 1, 2}, Labels: []string{"B-PER"}})
	assert.Equal(t, []WordLabel{{Word: 0, Label: "B-PER"}}, got)
}

// stubTagger labels subwords from a fixed word-level label list, splitting
// every word into two subwords.
type stubTagger struct {
	labels []string
	limit  int
	err    error
}

func (s stubTagger) TagSubwords(_ context.Context, words []tokenize.Word) (Tagging, error) {
	if s.err != nil {
		return Tagging{}, s.err
	}
	out := Tagging{WordIndex: []int{tokenize.NoWord}, Labels: []string{"O"}}
	for i := range words {
		if s.limit > 0 && i >= s.limit {
			break
		}
		out.WordIndex = append(out.WordIndex, i, i)
		out.Labels = append(out.Labels, s.labels[i], "O")
	}
	out.WordIndex = append(out.WordIndex, tokenize.NoWord)
	out.Labels = append(out.Labels, "O")
	return out, nil
}

func TestExtractorExtract(t *testing.T) {
	e := NewExtractor(nil, stubTagger{labels: []string{"B-PER", "I-PER", "O", "B-LOC"}})
	got, err := e.Extract(context.Background(), "Jean Dupont habite Paris")
	require.NoError(t, err)
	assert.Equal(t, EntityCollection{"PER": {"Jean Dupont"}, "LOC": {"Paris"}}, got)
}

func TestExtractorTruncationIsLossy(t *testing.T) {
	e := NewExtractor(nil, stubTagger{labels: []string{"B-PER", "I-PER", "O", "B-LOC"}, limit: 2})
	got, err := e.Extract(context.Background(), "Jean Dupont habite Paris")
	require.NoError(t, err)
	assert.Equal(t, EntityCollection{"PER": {"Jean Dupont"}}, got)
}

func TestExtractorEmptyText(t *testing.T) {
	e := NewExtractor(nil, stubTagger{err: errors.New("must not be called")})
	got, err := e.Extract(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExtractorPropagatesTaggerFailure(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewExtractor(nil, stubTagger{err: boom}).Extract(context.Background(), "Jean")
	assert.ErrorIs(t, err, boom)

	_, err = NewExtractor(nil, nil).Extract(context.Background(), "Jean")
	assert.ErrorIs(t, err, ErrTaggerUnavailable)
}

type fakeSession struct {
	rows [][]float32
	err  error
}

func (s fakeSession) Run(context.Context, inference.Inputs) ([][]float32, error) {
	return s.rows, s.err
}

func (s fakeSession) Close() error { return nil }

const testTokenizer = `{"model":{"vocab":{"[PAD]":0,"[UNK]":1,"[CLS]":2,"[SEP]":3,"jean":4,"dup":5,"##ont":6,"habite":7,"paris":8}}}`

func TestONNXTaggerWithWordPiece(t *testing.T) {
	tok, err := tokenize.ParseWordPiece([]byte(testTokenizer), 0)
	require.NoError(t, err)

	labels := map[int]string{0: "O", 1: "B-PER", 2: "I-PER", 3: "B-LOC"}
	// [CLS] jean dup ##ont habite paris [SEP]
	rows := [][]float32{
		{9, 0, 0, 0},
		{0, 9, 0, 0},
		{0, 0, 9, 0},
		{0, 0, 0, 9},
		{9, 0, 0, 0},
		{0, 0, 0, 9},
		{9, 0, 0, 0},
	}
	tagger := NewONNXTagger(tok, fakeSession{rows: rows}, labels)
	got, err := NewExtractor(nil, tagger).Extract(context.Background(), "Jean Dupont habite Paris")
	require.NoError(t, err)
	assert.Equal(t, EntityCollection{"PER": {"Jean Dupont"}, "LOC": {"Paris"}}, got)
}

const camembertTokenizer = `{"model":{"type":"Unigram","unk_id":3,"vocab":[
["<s>NOTUSED",0],["<pad>",0],["</s>NOTUSED",0],["<unk>",0],["<s>",0],["</s>",0],
["▁Jean",-8],["▁Du",-9],["pont",-9],["▁habite",-9],["▁Paris",-8]]}}`

func TestONNXTaggerWithUnigram(t *testing.T) {
	tok, err := tokenize.Parse([]byte(camembertTokenizer), 0)
	require.NoError(t, err)

	labels := map[int]string{0: "O", 1: "B-PER", 2: "I-PER", 3: "B-LOC"}
	// <s> ▁Jean ▁Du pont ▁habite ▁Paris </s>
	rows := [][]float32{
		{9, 0, 0, 0},
		{0, 9, 0, 0},
		{0, 0, 9, 0},
		{9, 0, 0, 0},
		{9, 0, 0, 0},
		{0, 0, 0, 9},
		{9, 0, 0, 0},
	}
	tagger := NewONNXTagger(tok, fakeSession{rows: rows}, labels)
	got, err := NewExtractor(nil, tagger).Extract(context.Background(), "Jean Dupont habite Paris")
	require.NoError(t, err)
	assert.Equal(t, EntityCollection{"PER": {"Jean Dupont"}, "LOC": {"Paris"}}, got)
}

func TestONNXTaggerRowMismatch(t *testing.T) {
	tok, err := tokenize.ParseWordPiece([]byte(testTokenizer), 0)
	require.NoError(t, err)

	tagger := NewONNXTagger(tok, fakeSession{rows: [][]float32{{1}}}, nil)
	_, err = tagger.TagSubwords(context.Background(), tokenize.Segment("Jean Paris"))
	assert.ErrorContains(t, err, "model returned 1 rows")
}

func TestONNXTaggerSessionError(t *testing.T) {
	tok, err := tokenize.ParseWordPiece([]byte(testTokenizer), 0)
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = NewONNXTagger(tok, fakeSession{err: boom}, nil).TagSubwords(context.Background(), tokenize.Segment("Jean"))
	assert.ErrorIs(t, err, boom)

	_, err = (&ONNXTagger{}).TagSubwords(context.Background(), nil)
	assert.ErrorIs(t, err, ErrTaggerUnavailable)
}

func TestLoadONNXTaggerModelMissing(t *testing.T) {
	_, err := LoadONNXTagger(ONNXTaggerConfig{ModelDir: t.TempDir()}, nil)
	assert.ErrorIs(t, err, ErrTaggerUnavailable)
}
