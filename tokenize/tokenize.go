// Package tokenize splits mixed Latin and CJK text into index terms.
//
// Latin words are lowercased with stop words removed. Scripts written without
// spaces are cut into overlapping character bigrams, which matches Chinese
// compounds well without a dictionary.
package tokenize

import (
	"strings"
	"unicode"
)

// Stop words to filter out of indexes and queries
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true,
	"的": true, "了": true, "是": true, "在": true, "和": true, "吗": true, "呢": true,
}

// isCJK reports whether r belongs to a script written without spaces.
func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

// Terms splits text into index terms. Runs of CJK characters become overlapping
// bigrams, or a single character when the run is one rune long.
func Terms(text string) []string {
	var (
		terms []string
		word  strings.Builder
		run   []rune
	)

	flushWord := func() {
		if word.Len() == 0 {
			return
		}
		w := strings.ToLower(word.String())
		word.Reset()
		if !stopWords[w] {
			terms = append(terms, w)
		}
	}
	flushRun := func() {
		switch len(run) {
		case 0:
			return
		case 1:
			if !stopWords[string(run)] {
				terms = append(terms, string(run))
			}
		default:
			for i := 0; i+1 < len(run); i++ {
				terms = append(terms, string(run[i:i+2]))
			}
		}
		run = run[:0]
	}

	for _, r := range text {
		switch {
		case isCJK(r):
			flushWord()
			run = append(run, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			flushRun()
			word.WriteRune(r)
		default:
			flushWord()
			flushRun()
		}
	}
	flushWord()
	flushRun()
	return terms
}

// Frequencies counts terms, keeping first-occurrence order.
func Frequencies(terms []string) ([]string, map[string]int) {
	freq := make(map[string]int, len(terms))
	order := make([]string, 0, len(terms))
	for _, t := range terms {
		if freq[t] == 0 {
			order = append(order, t)
		}
		freq[t]++
	}
	return order, freq
}
