package router

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// minTokenLen is the shortest token kept for corpus matching.
const minTokenLen = 3

// Tokens is the result of normalizing a request.
type Tokens struct {
	// All holds every word in order, duplicates kept. Intent signals are
	// extracted from this stream.
	All []string
	// Filtered is All without stop words and tokens shorter than three
	// characters. Order and duplicates are kept.
	Filtered []string
}

// Normalize lower-cases text and splits it into word tokens. A word is a
// maximal run of letters, digits and underscores; everything else separates.
func (t *Tables) Normalize(text string) Tokens {
	all := tokenize(text)
	return Tokens{All: all, Filtered: t.filter(all)}
}

func (t *Tables) filter(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if t.keep(tok) {
			out = append(out, tok)
		}
	}
	return out
}

// keep reports whether tok is meaningful for corpus matching.
func (t *Tables) keep(tok string) bool {
	return utf8.RuneCountInString(tok) >= minTokenLen && !t.IsStopWord(tok)
}

func tokenize(text string) []string {
	if text == "" {
		return nil
	}
	return strings.FieldsFunc(lower(text), func(r rune) bool {
		return !isWordRune(r)
	})
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func lower(s string) string {
	return strings.ToLower(s)
}
