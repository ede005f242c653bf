package ner

// Tagging is the tagger output for one sequence: a label and a word index per
// model input position. WordIndex entries equal to tokenize.NoWord mark
// special tokens.
type Tagging struct {
	WordIndex []int
	Labels    []string
}

// WordLabel is the label chosen for one word.
type WordLabel struct {
	Word  int
	Label string
}

// AlignWords reduces subword labels to one label per word, using the first
// subword seen for each word. Words whose subwords were truncated away do not
// appear in the result.
func AlignWords(t Tagging) []WordLabel {
	n := len(t.WordIndex)
	if len(t.Labels) < n {
		n = len(t.Labels)
	}
	out := make([]WordLabel, 0, n)
	seen := make(map[int]struct{}, n)
	for i := 0; i < n; i++ {
		w := t.WordIndex[i]
		// tokenize.NoWord and any other negative index carry no word.
		if w < 0 {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, WordLabel{Word: w, Label: t.Labels[i]})
	}
	return out
}
