package tokenize

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

type WordPiece struct {
	vocab      map[string]int
	unkID      int
	startID    int
	endID      int
	prefix     string
	maxWordLen int
	maxSeqLen  int
	lowercase  bool
}

type tokenizerJSON struct {
	Model struct {
		Vocab                   map[string]int `json:"vocab"`
		UnkToken                string         `json:"unk_token"`
		ContinuingSubwordPrefix *string        `json:"continuing_subword_prefix"`
	} `json:"model"`
	Normalizer struct {
		Lowercase *bool `json:"lowercase"`
	} `json:"normalizer"`
}

// specialSets are tried in order; BERT-style vocabularies first, then
// RoBERTa/CamemBERT-style ones.
var specialSets = [][3]string{
	{"[CLS]", "[SEP]", "[UNK]"},
	{"<s>", "</s>", "<unk>"},
}

// LoadWordPiece reads a tokenizer.json file. maxSeqLen <= 0 selects
// DefaultMaxSeqLen.
func LoadWordPiece(path string, maxSeqLen int) (*WordPiece, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseWordPiece(raw, maxSeqLen)
}

func ParseWordPiece(raw []byte, maxSeqLen int) (*WordPiece, error) {
	var cfg tokenizerJSON
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTokenizer, err)
	}
	vocab := cfg.Model.Vocab
	if len(vocab) == 0 {
		return nil, fmt.Errorf("%w: model.vocab is empty", ErrInvalidTokenizer)
	}
	maxSeqLen, err := checkSeqLen(maxSeqLen)
	if err != nil {
		return nil, err
	}
	t := &WordPiece{vocab: vocab, prefix: "##", maxWordLen: 100, maxSeqLen: maxSeqLen, lowercase: true}
	if cfg.Model.ContinuingSubwordPrefix != nil {
		t.prefix = *cfg.Model.ContinuingSubwordPrefix
	}
	if cfg.Normalizer.Lowercase != nil {
		t.lowercase = *cfg.Normalizer.Lowercase
	}
	found := false
	for _, set := range specialSets {
		start, okStart := vocab[set[0]]
		end, okEnd := vocab[set[1]]
		unk, okUnk := vocab[set[2]]
		if okStart && okEnd && okUnk {
			t.startID, t.endID, t.unkID = start, end, unk
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: vocab is missing sequence markers", ErrInvalidTokenizer)
	}
	if cfg.Model.UnkToken != "" {
		if id, ok := vocab[cfg.Model.UnkToken]; ok {
			t.unkID = id
		}
	}
	return t, nil
}

func (t *WordPiece) MaxSeqLen() int {
	return t.maxSeqLen
}

// Encode segments text and encodes the resulting words.
func (t *WordPiece) Encode(text string) Encoding {
	return t.EncodeWords(Segment(text))
}

// EncodeWords encodes pre-split words.
func (t *WordPiece) EncodeWords(words []Word) Encoding {
	return encodeWords(words, t.maxSeqLen, t.startID, t.endID, func(wi int) []int {
		return t.wordToPieces(words[wi].Text)
	})
}

func (t *WordPiece) wordToPieces(word string) []int {
	if word == "" {
		return []int{t.unkID}
	}
	normalized := word
	if t.lowercase {
		normalized = strings.ToLower(word)
	}
	runes := []rune(normalized)
	if len(runes) > t.maxWordLen {
		return []int{t.unkID}
	}
	if id, ok := t.vocab[normalized]; ok {
		return []int{id}
	}
	ids := make([]int, 0)
	start := 0
	for start < len(runes) {
		end := len(runes)
		found := -1
		for end > start {
			piece := string(runes[start:end])
			if start > 0 {
				piece = t.prefix + piece
			}
			if id, ok := t.vocab[piece]; ok {
				found = id
				break
			}
			end--
		}
		if found == -1 {
			return []int{t.unkID}
		}
		ids = append(ids, found)
		start = end
	}
	return ids
}
