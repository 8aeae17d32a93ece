package analysis

import (
	"regexp"
	"sort"
	"strings"
)

// Commitment markers, strongest first. Explicit task phrasing outranks
// firm obligation, which outranks suggestion.
var actionMarkers = []struct {
	pattern  *regexp.Regexp
	strength int
}{
	{regexp.MustCompile(`(?i)\baction items?\b`), 3},
	{regexp.MustCompile(`(?i)\btodo\b`), 3},
	{regexp.MustCompile(`(?i)\btask:`), 3},
	{regexp.MustCompile(`(?i)\bwill\b`), 2},
	{regexp.MustCompile(`(?i)\bneeds? to\b`), 2},
	{regexp.MustCompile(`(?i)\bhave to\b`), 2},
	{regexp.MustCompile(`(?i)\bmust\b`), 2},
	{regexp.MustCompile(`(?i)\bfollow[- ]up\b`), 2},
	{regexp.MustCompile(`(?i)\bshould\b`), 1},
}

const (
	minActionLen = 10
	maxActionLen = 200
)

// ExtractActionItems scans transcript sentences for commitment markers and
// returns at most k candidates, strongest marker first, ties broken by
// order of first appearance. Candidates are trimmed and deduplicated
// case-insensitively. The function is deterministic for a fixed input.
func ExtractActionItems(text string, k int) []string {
	if k <= 0 {
		k = DefaultMaxActionItems
	}

	type candidate struct {
		text     string
		strength int
		position int
	}

	var candidates []candidate
	seen := make(map[string]bool)

	for i, sentence := range splitSentences(text) {
		strength := 0
		for _, m := range actionMarkers {
			if m.pattern.MatchString(sentence) {
				strength = m.strength
				break
			}
		}
		if strength == 0 {
			continue
		}

		item := strings.TrimSpace(strings.TrimRight(sentence, ".!?"))
		if len(item) <= minActionLen || len(item) >= maxActionLen {
			continue
		}

		key := strings.ToLower(item)
		if seen[key] {
			continue
		}
		seen[key] = true
		candidates = append(candidates, candidate{text: item, strength: strength, position: i})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].strength != candidates[j].strength {
			return candidates[i].strength > candidates[j].strength
		}
		return candidates[i].position < candidates[j].position
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}

	items := make([]string, len(candidates))
	for i, c := range candidates {
		items[i] = c.text
	}
	return items
}

// normalizeActionItems trims, deduplicates and caps an externally produced
// action item list, preserving order. Used to sanitize model output.
func normalizeActionItems(items []string, k int) []string {
	if k <= 0 {
		k = DefaultMaxActionItems
	}
	seen := make(map[string]bool)
	var out []string
	for _, item := range items {
		item = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(item), ".!?"))
		if item == "" {
			continue
		}
		key := strings.ToLower(item)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
		if len(out) == k {
			break
		}
	}
	return out
}

var sentenceEnd = regexp.MustCompile(`[.!?]+\s+|\n+`)

// splitSentences breaks text on sentence-ending punctuation and newlines.
func splitSentences(text string) []string {
	parts := sentenceEnd.Split(text, -1)
	var sentences []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			sentences = append(sentences, p)
		}
	}
	return sentences
}
