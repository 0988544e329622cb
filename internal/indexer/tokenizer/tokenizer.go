// Package tokenizer provides text tokenisation for the search engine.
// It NFKC-normalises and lower-cases input, splits on non-alphanumeric
// boundaries, removes stop-words, and applies a simple suffix-based stemmer.
//
// Stop-word removal affects recall: a query made only of stop-words (for
// example "to") tokenises to nothing and therefore matches nothing.
package tokenizer

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/corpus"
)

const minTermLength = 2

// itemGap separates the positions of consecutive items of a list field so a
// phrase can never match across two items.
const itemGap = 1

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Token is a single normalised term, the field it came from, and its
// position among the kept tokens of that field.
type Token struct {
	Term     string
	Field    corpus.Field
	Position int
}

// Tokenize breaks text into stemmed, lower-cased Tokens with stop-words
// removed. It is pure: the same input always yields the same tokens.
func Tokenize(text string, field corpus.Field) []Token {
	return appendTokens(nil, text, field, 0)
}

// TokenizeAll tokenises the items of a list field as one position space,
// leaving a gap between items.
func TokenizeAll(parts []string, field corpus.Field) []Token {
	var tokens []Token
	next := 0
	for _, part := range parts {
		tokens = appendTokens(tokens, part, field, next)
		if len(tokens) > 0 {
			next = tokens[len(tokens)-1].Position + 1 + itemGap
		}
	}
	return tokens
}

// Terms returns just the terms of Tokenize(text), in order.
func Terms(text string) []string {
	tokens := appendTokens(nil, text, corpus.FieldTitle, 0)
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	return terms
}

// Normalize returns the normalised form of a single word, or "" when the word
// is dropped (too short, a stop-word, or not alphanumeric).
func Normalize(word string) string {
	terms := Terms(word)
	if len(terms) == 0 {
		return ""
	}
	return terms[0]
}

// StopWords returns the fixed stop-word list in sorted order.
func StopWords() []string {
	words := make([]string, 0, len(stopWords))
	for w := range stopWords {
		words = append(words, w)
	}
	sort.Strings(words)
	return words
}

// IsStopWord reports whether word (already lower-cased) is a stop-word.
func IsStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}

func appendTokens(tokens []Token, text string, field corpus.Field, pos int) []Token {
	if text == "" {
		return tokens
	}
	text = strings.ToLower(norm.NFKC.String(text))
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, word := range words {
		if !keep(word) {
			continue
		}
		stemmed := stem(word)
		if !keep(stemmed) {
			continue
		}
		tokens = append(tokens, Token{
			Term:     stemmed,
			Field:    field,
			Position: pos,
		})
		pos++
	}
	return tokens
}

func keep(word string) bool {
	if utf8.RuneCountInString(word) < minTermLength {
		return false
	}
	_, isStop := stopWords[word]
	return !isStop
}

type suffixRule struct {
	suffix      string
	replacement string
	minLen      int
}

var suffixRules = []suffixRule{
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
	{"eness", "ene", 2},
	{"tion", "t", 3},
	{"sion", "s", 3},
	{"ying", "y", 2},
	{"ling", "l", 3},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"est", "", 3},
	{"ful", "", 3},
	{"ous", "", 3},
	{"ess", "", 3},
	{"ble", "", 3},
	{"ed", "", 3},
	{"er", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}

// stem applies the suffix rules until the word stops changing, so that
// stem(stem(w)) == stem(w). Every rule either shortens the word or leaves it
// unchanged, which bounds the loop.
func stem(word string) string {
	for {
		next := stemOnce(word)
		if next == word {
			return word
		}
		word = next
	}
}

func stemOnce(word string) string {
	for _, rule := range suffixRules {
		if strings.HasSuffix(word, rule.suffix) {
			newWord := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(newWord) >= rule.minLen {
				return newWord
			}
		}
	}
	return word
}
