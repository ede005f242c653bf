package tokenize

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// unkPenalty is subtracted from the lowest piece score to price a rune that
// no piece covers.
const unkPenalty = 10.0

const defaultMetaspace = "▁"

// Unigram is a SentencePiece unigram model as exported in tokenizer.json by
// CamemBERT-family checkpoints. Words are segmented with Viterbi over the
// piece log probabilities.
type Unigram struct {
	pieces      []scoredPiece
	index       map[string]int
	unkID       int
	unkScore    float64
	startID     int
	endID       int
	metaspace   string
	maxPieceLen int
	maxSeqLen   int
	lowercase   bool
}

type scoredPiece struct {
	Text  string
	Score float64
}

// UnmarshalJSON reads the [piece, score] pair form of the vocab.
func (p *scoredPiece) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("vocab entry has %d fields, want 2", len(pair))
	}
	if err := json.Unmarshal(pair[0], &p.Text); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &p.Score)
}

type metaspaceJSON struct {
	Type          string          `json:"type"`
	Replacement   string          `json:"replacement"`
	Pretokenizers []metaspaceJSON `json:"pretokenizers"`
}

func (m metaspaceJSON) replacement() string {
	if m.Type == "Metaspace" && m.Replacement != "" {
		return m.Replacement
	}
	for _, p := range m.Pretokenizers {
		if r := p.replacement(); r != "" {
			return r
		}
	}
	return ""
}

type unigramJSON struct {
	Model struct {
		Vocab []scoredPiece `json:"vocab"`
		UnkID *int          `json:"unk_id"`
	} `json:"model"`
	AddedTokens []struct {
		ID      int    `json:"id"`
		Content string `json:"content"`
	} `json:"added_tokens"`
	PreTokenizer metaspaceJSON `json:"pre_tokenizer"`
	Normalizer   struct {
		Lowercase *bool `json:"lowercase"`
	} `json:"normalizer"`
}

func LoadUnigram(path string, maxSeqLen int) (*Unigram, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseUnigram(raw, maxSeqLen)
}

func ParseUnigram(raw []byte, maxSeqLen int) (*Unigram, error) {
	var cfg unigramJSON
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTokenizer, err)
	}
	if len(cfg.Model.Vocab) == 0 {
		return nil, fmt.Errorf("%w: model.vocab is empty", ErrInvalidTokenizer)
	}
	maxSeqLen, err := checkSeqLen(maxSeqLen)
	if err != nil {
		return nil, err
	}
	t := &Unigram{
		pieces:    cfg.Model.Vocab,
		index:     make(map[string]int, len(cfg.Model.Vocab)),
		metaspace: defaultMetaspace,
		maxSeqLen: maxSeqLen,
	}
	if r := cfg.PreTokenizer.replacement(); r != "" {
		t.metaspace = r
	}
	if cfg.Normalizer.Lowercase != nil {
		t.lowercase = *cfg.Normalizer.Lowercase
	}
	minScore := math.Inf(1)
	for id, p := range t.pieces {
		// The first id wins for pieces listed twice.
		if _, dup := t.index[p.Text]; !dup {
			t.index[p.Text] = id
		}
		if n := len([]rune(p.Text)); n > t.maxPieceLen {
			t.maxPieceLen = n
		}
		if p.Score < minScore {
			minScore = p.Score
		}
	}
	t.unkScore = minScore - unkPenalty
	t.maxPieceLen = max(t.maxPieceLen, 1)

	special := make(map[string]int, len(cfg.AddedTokens))
	for _, tok := range cfg.AddedTokens {
		special[tok.Content] = tok.ID
	}
	lookup := func(name string) (int, bool) {
		if id, ok := special[name]; ok {
			return id, true
		}
		id, ok := t.index[name]
		return id, ok
	}
	start, okStart := lookup("<s>")
	end, okEnd := lookup("</s>")
	if !okStart || !okEnd {
		return nil, fmt.Errorf("%w: vocab is missing sequence markers", ErrInvalidTokenizer)
	}
	t.startID, t.endID = start, end
	switch unk, ok := lookup("<unk>"); {
	case cfg.Model.UnkID != nil:
		t.unkID = *cfg.Model.UnkID
	case ok:
		t.unkID = unk
	default:
		return nil, fmt.Errorf("%w: vocab has no unknown piece", ErrInvalidTokenizer)
	}
	if t.unkID < 0 || t.unkID >= len(t.pieces) {
		return nil, fmt.Errorf("%w: unk_id %d out of range", ErrInvalidTokenizer, t.unkID)
	}
	return t, nil
}

func (t *Unigram) MaxSeqLen() int {
	return t.maxSeqLen
}

func (t *Unigram) Encode(text string) Encoding {
	return t.EncodeWords(Segment(text))
}

// EncodeWords encodes pre-split words. A word gets the metaspace marker when
// it starts the text or follows whitespace, which the segmenter reports as a
// gap between offsets. Words without offsets are treated as spaced.
func (t *Unigram) EncodeWords(words []Word) Encoding {
	return encodeWords(words, t.maxSeqLen, t.startID, t.endID, func(wi int) []int {
		w := words[wi]
		spaced := wi == 0 || w.End == 0 || w.Start > words[wi-1].End
		return t.wordToPieces(w.Text, spaced)
	})
}

func (t *Unigram) wordToPieces(word string, spaced bool) []int {
	s := norm.NFKC.String(word)
	if t.lowercase {
		s = strings.ToLower(s)
	}
	if spaced {
		s = t.metaspace + s
	}
	if s == "" {
		return []int{t.unkID}
	}

	// offs[i] is the byte offset of rune i; offs[n] is len(s).
	offs := make([]int, 0, len(s)+1)
	for i := range s {
		offs = append(offs, i)
	}
	n := len(offs)
	offs = append(offs, len(s))

	best := make([]float64, n+1)
	from := make([]int, n+1)
	ids := make([]int, n+1)
	for i := 1; i <= n; i++ {
		best[i] = math.Inf(-1)
	}
	for end := 1; end <= n; end++ {
		for start := max(0, end-t.maxPieceLen); start < end; start++ {
			if math.IsInf(best[start], -1) {
				continue
			}
			id, ok := t.index[s[offs[start]:offs[end]]]
			score := 0.0
			switch {
			case ok:
				score = t.pieces[id].Score
			case end-start == 1:
				id, score = t.unkID, t.unkScore
			default:
				continue
			}
			if cand := best[start] + score; cand > best[end] {
				best[end], from[end], ids[end] = cand, start, id
			}
		}
	}

	out := make([]int, 0)
	for end := n; end > 0; end = from[end] {
		out = append(out, ids[end])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return fuseUnknown(out, t.unkID)
}

// fuseUnknown collapses runs of the unknown piece into one.
func fuseUnknown(ids []int, unk int) []int {
	out := make([]int, 0, len(ids))
	for i, id := range ids {
		if id == unk && i > 0 && ids[i-1] == unk {
			continue
		}
		out = append(out, id)
	}
	return out
}
