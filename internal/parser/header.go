package parser

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Header is the header row with a normalised name index.
type Header struct {
	Names []string
	index map[string]int
}

// NewHeader indexes names by their normalised form. When a name repeats,
// the first occurrence wins.
func NewHeader(names []string) *Header {
	h := &Header{Names: names, index: make(map[string]int, len(names))}
	for i, n := range names {
		key := NormalizeName(n)
		if _, dup := h.index[key]; !dup {
			h.index[key] = i
		}
	}
	return h
}

// Lookup returns the column position of name.
func (h *Header) Lookup(name string) (int, bool) {
	i, ok := h.index[NormalizeName(name)]
	return i, ok
}

// Has reports whether name is a column of the header.
func (h *Header) Has(name string) bool {
	_, ok := h.Lookup(name)
	return ok
}

// Len returns the number of columns.
func (h *Header) Len() int { return len(h.Names) }

// NormalizeName folds a column name for matching: case, surrounding
// whitespace, and diacritics are ignored; inner spaces and hyphens become "_".
// "Año Fundación" -> "ano_fundacion".
func NormalizeName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(strings.TrimSpace(folded))
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '\t':
			return '_'
		}
		return r
	}, folded)
}
