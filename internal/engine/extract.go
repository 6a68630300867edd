package engine

import (
	"strings"
	"unicode"
)

// extraction tuning; the heuristic favours precision over recall since every
// accepted token becomes a graph entity.
const (
	minASCIIEntityLen     = 3
	minKatakanaEntityLen  = 3
	maxEntitiesPerSnippet = 8
)

// stopwords are capitalised English words that are never entities.
var stopwords = map[string]bool{
	"The": true, "And": true, "For": true, "With": true, "From": true,
	"This": true, "That": true, "What": true, "How": true, "Why": true,
	"New": true, "About": true, "Best": true, "Top": true, "Your": true,
}

// ExtractEntities pulls candidate entity names out of free text with a
// cheap heuristic: capitalised ASCII words and katakana runs. Katakana is
// scanned as contiguous runs because Japanese text has no word separators.
// The heuristic is deliberately naive; the entity store merges repeated
// discoveries, so a noisy candidate costs little.
func ExtractEntities(text string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		if s == "" || seen[strings.ToLower(s)] || len(out) >= maxEntitiesPerSnippet {
			return
		}
		seen[strings.ToLower(s)] = true
		out = append(out, s)
	}

	var run []rune
	var kind int // 0 none, 1 ascii word, 2 katakana run
	flush := func() {
		switch kind {
		case 1:
			word := string(run)
			if len(run) >= minASCIIEntityLen && unicode.IsUpper(run[0]) && !stopwords[word] {
				add(word)
			}
		case 2:
			if len(run) >= minKatakanaEntityLen {
				add(string(run))
			}
		}
		run = run[:0]
		kind = 0
	}

	for _, r := range text {
		var k int
		switch {
		case r <= unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			k = 1
		case r == 'ー' || unicode.In(r, unicode.Katakana):
			k = 2
		}
		if k != kind {
			flush()
			kind = k
		}
		if k != 0 {
			run = append(run, r)
		}
	}
	flush()
	return out
}

// splitQueryTerms breaks a search query into keyword terms.
func splitQueryTerms(query string) []string {
	return strings.Fields(query)
}
