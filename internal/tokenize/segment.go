package tokenize

import (
	"unicode"
	"unicode/utf8"
)

// Word is a linguistic unit of the source text. Start and End are byte offsets.
type Word struct {
	Text       string
	Index      int
	Start, End int
}

// Segmenter splits raw text into words.
type Segmenter interface {
	Segment(text string) []Word
}

// DefaultSegmenter implements Segmenter with Segment.
type DefaultSegmenter struct{}

func (DefaultSegmenter) Segment(text string) []Word {
	return Segment(text)
}

// Segment splits text into runs of letters and digits, keeping every other
// non-space rune as a word of its own. Hyphens between letters stay inside the
// word ("Jean-Pierre") and an elided article keeps its apostrophe ("l'").
func Segment(text string) []Word {
	words := make([]Word, 0)
	start := -1
	emit := func(from, to int) {
		words = append(words, Word{Text: text[from:to], Index: len(words), Start: from, End: to})
	}
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		next, _ := utf8.DecodeRuneInString(text[i+size:])
		switch {
		case isWordRune(r):
			if start < 0 {
				start = i
			}
		case start >= 0 && r == '-' && isWordRune(next):
		case start >= 0 && isApostrophe(r) && unicode.IsLetter(next):
			emit(start, i+size)
			start = -1
		default:
			if start >= 0 {
				emit(start, i)
				start = -1
			}
			if !unicode.IsSpace(r) {
				emit(i, i+size)
			}
		}
		i += size
	}
	if start >= 0 {
		emit(start, len(text))
	}
	return words
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}

func isApostrophe(r rune) bool {
	return r == '\'' || r == '’'
}
