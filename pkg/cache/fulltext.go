package cache

import "strings"

// stripPunctuation is the small fixed punctuation set the original
// full-text tokenizer strips before splitting, beyond bare whitespace
// splitting: spec.md's contract ("whitespace-tokenized, lowercase") is kept
// exactly, but normalization is a named, testable unit so MatchesAll/
// MatchesAny queries tolerate trailing punctuation the way the source
// system does.
const stripPunctuation = ".,;:!?\"'()[]{}"

// Tokenize lowercases s, strips a small punctuation set, and splits on
// whitespace, returning the ordered list of terms (with duplicates, so
// callers that need a distinct term set should dedupe).
func Tokenize(s string) []string {
	lowered := strings.ToLower(s)
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(stripPunctuation, r) {
			return -1
		}
		return r
	}, lowered)
	fields := strings.Fields(cleaned)
	return fields
}
