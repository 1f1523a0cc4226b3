// Package tokenizer turns documentation text into index terms. It splits on
// anything that is not a letter, digit or underscore, lower-cases, removes
// English stop-words and applies a suffix-stripping stemmer, so "extractors"
// and "extractor" share the term "extractor".
package tokenizer

import (
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"a": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "but": {}, "by": {}, "for": {}, "if": {}, "in": {},
	"into": {}, "is": {}, "it": {}, "near": {}, "no": {}, "not": {},
	"of": {}, "on": {}, "or": {}, "such": {}, "that": {}, "the": {},
	"their": {}, "then": {}, "there": {}, "these": {}, "they": {},
	"this": {}, "to": {}, "was": {}, "will": {}, "with": {},
}

// Token is one normalised term and its position among the kept terms of the
// text.
type Token struct {
	Term     string
	Position int
}

// IsWordRune reports whether r belongs to a word. Underscores are word
// characters so identifiers such as __init__ survive intact.
func IsWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// Tokenize breaks text into stemmed, lower-cased tokens with stop-words
// removed.
func Tokenize(text string) []Token {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !IsWordRune(r)
	})
	tokens := make([]Token, 0, len(words))
	pos := 0
	for _, word := range words {
		if IsStopWord(word) {
			continue
		}
		stemmed := Stem(word)
		if stemmed == "" {
			continue
		}
		tokens = append(tokens, Token{Term: stemmed, Position: pos})
		pos++
	}
	return tokens
}

// Terms returns the distinct terms of text in first-seen order.
func Terms(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range Tokenize(text) {
		if _, ok := seen[tok.Term]; ok {
			continue
		}
		seen[tok.Term] = struct{}{}
		out = append(out, tok.Term)
	}
	return out
}

// Normalize maps a single query word to the term it would be indexed
// under. Stop-words normalise to "".
func Normalize(word string) string {
	w := strings.ToLower(strings.TrimSpace(word))
	if w == "" || IsStopWord(w) {
		return ""
	}
	return Stem(w)
}

// IsStopWord reports whether the lower-cased word is skipped when indexing.
func IsStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}

var suffixRules = []struct {
	suffix      string
	replacement string
	minLen      int
}{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"ying", "y", 2},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"ed", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}

// Stem strips one common English suffix from a lower-cased word. Words with
// digits or underscores are identifiers or numbers and are kept as is.
func Stem(word string) string {
	if strings.ContainsFunc(word, func(r rune) bool { return unicode.IsDigit(r) || r == '_' }) {
		return word
	}
	for _, rule := range suffixRules {
		if strings.HasSuffix(word, rule.suffix) {
			stemmed := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(stemmed) >= rule.minLen {
				return stemmed
			}
		}
	}
	return word
}
