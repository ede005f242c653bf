package ner

import "strings"

// EntityCollection maps an entity type to the texts of its entities in order
// of appearance. Order across types is not defined.
type EntityCollection map[string][]string

func (c EntityCollection) add(typ, text string) {
	c[typ] = append(c[typ], text)
}

// Count returns the number of entities of every type.
func (c EntityCollection) Count() int {
	n := 0
	for _, texts := range c {
		n += len(texts)
	}
	return n
}

// CountByType returns the number of entities per type.
func (c EntityCollection) CountByType() map[string]int {
	out := make(map[string]int, len(c))
	for typ, texts := range c {
		out[typ] = len(texts)
	}
	return out
}

// Decoder is a left-to-right BIO reducer. It is either idle or holds one open
// span; a span is flushed to the collection as soon as it closes.
type Decoder struct {
	open  bool
	typ   string
	words []string
	out   EntityCollection
}

func NewDecoder() *Decoder {
	return &Decoder{out: EntityCollection{}}
}

// Step consumes the tag of the next word.
func (d *Decoder) Step(tag Tag, word string) {
	switch {
	case tag.Prefix == Begin:
		d.flush()
		d.open = true
		d.typ = tag.Type
		d.words = append(d.words[:0], word)
	case tag.Prefix == Inside && d.open && tag.Type == d.typ:
		d.words = append(d.words, word)
	default:
		// O, or an I- that does not continue the open span.
		d.flush()
	}
}

// Finish closes any open span and returns the collected entities. The
// decoder is reset and may be reused.
func (d *Decoder) Finish() EntityCollection {
	d.flush()
	out := d.out
	d.out = EntityCollection{}
	return out
}

func (d *Decoder) flush() {
	if !d.open {
		return
	}
	d.out.add(d.typ, strings.Join(d.words, " "))
	d.open = false
	d.typ = ""
	d.words = d.words[:0]
}

// Decode runs a Decoder over parallel word and tag sequences. Extra entries in
// the longer slice are ignored.
func Decode(words []string, tags []Tag) EntityCollection {
	n := len(words)
	if len(tags) < n {
		n = len(tags)
	}
	d := NewDecoder()
	for i := 0; i < n; i++ {
		d.Step(tags[i], words[i])
	}
	return d.Finish()
}
