package session

import (
	"strings"
	"time"

	"github.com/antzucaro/matchr"
)

// temporalConstant is the fixed temporal similarity applied to every
// candidate inside the related window. Time-decay scoring was planned but
// never shipped; the constant keeps the weighted sum stable.
const temporalConstant = 0.5

// similarity computes the weighted similarity between the session being
// created and an existing record:
//
//	theme*Wt + keywordOverlap*Wk + entity*We + temporal*Wtime
//
// Entity similarity has no data source yet and contributes 0; temporal
// similarity is the constant above.
func (p Policy) similarity(meta Meta, candidate *Relationship) float64 {
	theme := themeSimilarity(meta.Theme, candidate.FocusAreas)
	keywords := overlapRatio(focusTerms(meta), candidate.FocusAreas)
	const entity = 0.0

	return p.ThemeWeight*theme +
		p.KeywordWeight*keywords +
		p.EntityWeight*entity +
		p.TemporalWeight*temporalConstant
}

// themeSimilarity returns the best Jaro-Winkler similarity between theme
// and any of the candidate's focus areas, case-insensitively.
func themeSimilarity(theme string, focusAreas []string) float64 {
	if theme == "" || len(focusAreas) == 0 {
		return 0
	}
	lower := strings.ToLower(theme)
	best := 0.0
	for _, area := range focusAreas {
		score := matchr.JaroWinkler(lower, strings.ToLower(area), false)
		if score > best {
			best = score
		}
	}
	return best
}

// overlapRatio is |a ∩ b| / |a| with case-insensitive membership.
// Returns 0 when a is empty.
func overlapRatio(a, b []string) float64 {
	if len(a) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(b))
	for _, s := range b {
		set[strings.ToLower(s)] = struct{}{}
	}
	hits := 0
	for _, s := range a {
		if _, ok := set[strings.ToLower(s)]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(a))
}

// focusTerms is the term set a session contributes for keyword overlap:
// theme, learning type, and tags.
func focusTerms(meta Meta) []string {
	terms := make([]string, 0, 2+len(meta.Tags))
	if meta.Theme != "" {
		terms = append(terms, meta.Theme)
	}
	if meta.LearningType != "" {
		terms = append(terms, meta.LearningType)
	}
	terms = append(terms, meta.Tags...)
	return dedupe(terms)
}

// dedupe removes duplicates preserving first-seen order.
func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// withinWindow reports whether t falls inside the related-session window
// ending at now.
func (p Policy) withinWindow(t, now time.Time) bool {
	window := time.Duration(p.RelatedWindowDays) * 24 * time.Hour
	return now.Sub(t) <= window
}
