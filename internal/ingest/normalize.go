package ingest

import "strings"

const (
	minIdeaLength = 5
	maxIdeaLength = 320
)

// Normalize collapses internal whitespace to single spaces, trims the
// result, and appends a period if the text does not already end in a
// sentence terminator. It is idempotent: Normalize(Normalize(x)) ==
// Normalize(x).
func Normalize(text string) string {
	collapsed := collapseWhitespace(strings.TrimSpace(text))
	if collapsed == "" {
		return collapsed
	}
	last := collapsed[len(collapsed)-1]
	if last != '.' && last != '!' && last != '?' {
		collapsed += "."
	}
	return collapsed
}

func collapseWhitespace(s string) string {
	var b strings.Builder
	prevSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			if !prevSpace {
				b.WriteByte(' ')
			}
			prevSpace = true
			continue
		}
		prevSpace = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// ValidateLength reports whether a normalized idea's length falls
// within [minIdeaLength, maxIdeaLength].
func ValidateLength(normalized string) bool {
	n := len(normalized)
	return n >= minIdeaLength && n <= maxIdeaLength
}

// DedupeKey computes the normalized duplicate-detection key: lowercase,
// trailing terminators stripped, internal whitespace collapsed, and
// trimmed. Two texts that normalize to the same surface form but carry
// different trailing punctuation still collide on this key.
func DedupeKey(text string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(text), ".!?")
	collapsed := collapseWhitespace(trimmed)
	return strings.ToLower(collapsed)
}
