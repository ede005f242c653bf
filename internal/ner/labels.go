package ner

import "strings"

// Prefix is the boundary part of a BIO label.
type Prefix uint8

const (
	Outside Prefix = iota
	Begin
	Inside
)

func (p Prefix) String() string {
	switch p {
	case Begin:
		return "B"
	case Inside:
		return "I"
	default:
		return "O"
	}
}

// Tag is a parsed word label. Type is empty for Outside.
type Tag struct {
	Prefix Prefix
	Type   string
}

func (t Tag) String() string {
	if t.Prefix == Outside {
		return "O"
	}
	return t.Prefix.String() + "-" + t.Type
}

// ParseLabel converts a raw model label into a Tag. Anything that is not a
// well-formed "B-<TYPE>" or "I-<TYPE>" is Outside.
func ParseLabel(label string) Tag {
	prefix, typ, ok := strings.Cut(strings.TrimSpace(label), "-")
	if !ok || typ == "" {
		return Tag{Prefix: Outside}
	}
	switch prefix {
	case "B":
		return Tag{Prefix: Begin, Type: typ}
	case "I":
		return Tag{Prefix: Inside, Type: typ}
	default:
		return Tag{Prefix: Outside}
	}
}

func ParseLabels(labels []string) []Tag {
	out := make([]Tag, len(labels))
	for i, l := range labels {
		out[i] = ParseLabel(l)
	}
	return out
}
