package tokenize

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// NoWord is the word index of subwords that belong to no word, such as the
// sequence start and end markers.
const NoWord = -1

const DefaultMaxSeqLen = 512

var ErrInvalidTokenizer = errors.New("invalid tokenizer")

// Tokenizer turns words into model input while tracking which word every
// input position came from.
type Tokenizer interface {
	Encode(text string) Encoding
	EncodeWords(words []Word) Encoding
	MaxSeqLen() int
}

var (
	_ Tokenizer = (*WordPiece)(nil)
	_ Tokenizer = (*Unigram)(nil)
)

// Encoding is the model input for one sequence. WordIndex has one entry per
// input position, NoWord for special tokens.
type Encoding struct {
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
	WordIndex     []int
}

func (e *Encoding) Len() int {
	return len(e.InputIDs)
}

func (e *Encoding) push(id int, word int) {
	e.InputIDs = append(e.InputIDs, int64(id))
	e.AttentionMask = append(e.AttentionMask, 1)
	e.TokenTypeIDs = append(e.TokenTypeIDs, 0)
	e.WordIndex = append(e.WordIndex, word)
}

// Load reads a tokenizer.json file and builds the tokenizer its model.type
// names. maxSeqLen <= 0 selects DefaultMaxSeqLen.
func Load(path string, maxSeqLen int) (Tokenizer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw, maxSeqLen)
}

// Parse dispatches on model.type. Files without a type are WordPiece when the
// vocab is an object and Unigram when it is a list of scored pieces.
func Parse(raw []byte, maxSeqLen int) (Tokenizer, error) {
	var head struct {
		Model struct {
			Type  string          `json:"type"`
			Vocab json.RawMessage `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTokenizer, err)
	}
	switch head.Model.Type {
	case "WordPiece":
		return ParseWordPiece(raw, maxSeqLen)
	case "Unigram":
		return ParseUnigram(raw, maxSeqLen)
	case "":
		if strings.HasPrefix(strings.TrimSpace(string(head.Model.Vocab)), "[") {
			return ParseUnigram(raw, maxSeqLen)
		}
		return ParseWordPiece(raw, maxSeqLen)
	default:
		return nil, fmt.Errorf("%w: unsupported model type %q", ErrInvalidTokenizer, head.Model.Type)
	}
}

func checkSeqLen(maxSeqLen int) (int, error) {
	if maxSeqLen <= 0 {
		maxSeqLen = DefaultMaxSeqLen
	}
	if maxSeqLen < 3 {
		return 0, fmt.Errorf("%w: max sequence length %d leaves no room for words", ErrInvalidTokenizer, maxSeqLen)
	}
	return maxSeqLen, nil
}

// encodeWords frames the pieces of each word with the sequence markers.
// Pieces past maxSeqLen are dropped, so trailing words may have no position
// at all.
func encodeWords(words []Word, maxSeqLen, startID, endID int, pieces func(wi int) []int) Encoding {
	out := Encoding{}
	out.push(startID, NoWord)
	limit := maxSeqLen - 1
	for wi := range words {
		if out.Len() >= limit {
			break
		}
		for _, id := range pieces(wi) {
			if out.Len() >= limit {
				break
			}
			out.push(id, wi)
		}
	}
	out.push(endID, NoWord)
	return out
}
