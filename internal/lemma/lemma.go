// Package lemma reduces words to canonical base forms so that inflected
// variants of a keyword compare equal.
package lemma

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/kljensen/snowball/russian"
)

var wordRe = regexp.MustCompile(`[\p{L}\p{N}_-]+`)

// Normalizer maps a single word to its canonical form. Implementations
// must be pure: same input, same output, no errors. Unrecognized input
// degrades to a lower-cased passthrough.
type Normalizer interface {
	Normalize(word string) string
}

// Russian normalizes Cyrillic tokens with the Snowball Russian stemmer.
// Tokens without Cyrillic letters pass through lower-cased, so mixed
// Russian/English keyword sets still compare by equality.
type Russian struct{}

// Normalize implements Normalizer.
func (Russian) Normalize(word string) string {
	w := strings.ToLower(strings.TrimSpace(word))
	if w == "" {
		return ""
	}
	if !hasCyrillic(w) {
		return w
	}
	return russian.Stem(w, false)
}

func hasCyrillic(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Cyrillic, r) {
			return true
		}
	}
	return false
}

// Tokenize splits text into word tokens, dropping punctuation.
// Hyphens and underscores are kept inside tokens.
func Tokenize(text string) []string {
	return wordRe.FindAllString(text, -1)
}

// Extract tokenizes text and normalizes every token with n,
// preserving token order. Empty input yields nil.
func Extract(text string, n Normalizer) []string {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	lemmas := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if l := n.Normalize(tok); l != "" {
			lemmas = append(lemmas, l)
		}
	}
	return lemmas
}

// Set is a lookup set of lemmas.
type Set map[string]struct{}

// NewSet builds a Set from a lemma slice.
func NewSet(lemmas []string) Set {
	s := make(Set, len(lemmas))
	for _, l := range lemmas {
		s[l] = struct{}{}
	}
	return s
}

// Contains reports whether the set holds the given lemma.
func (s Set) Contains(l string) bool {
	_, ok := s[l]
	return ok
}

// ContainsAll reports whether every lemma in the sequence is present.
// An empty sequence never matches.
func (s Set) ContainsAll(lemmas []string) bool {
	if len(lemmas) == 0 {
		return false
	}
	for _, l := range lemmas {
		if !s.Contains(l) {
			return false
		}
	}
	return true
}
