package text

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kljensen/snowball/english"
)

// isWordRune matches the characters of a regexp \w class, extended to
// Unicode letters and digits.
func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Tokenize lowercases text and splits it on runs of non-word characters.
// Tokens are not stemmed.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isWordRune(r)
	})
}

// Stem reduces a single lowercased token to its Porter2 English stem.
// Stop words are stemmed too so that every token maps through the same function.
func Stem(token string) string {
	return english.Stem(token, true)
}

// Normalize tokenizes and stems text, preserving token order and duplicates.
// Empty or non-linguistic input yields an empty slice.
func Normalize(text string) []string {
	return NormalizeMinLength(text, 0)
}

// NormalizeMinLength is Normalize but discards tokens shorter than minLength
// runes before stemming.
func NormalizeMinLength(text string, minLength int) []string {
	tokens := Tokenize(text)
	stems := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if minLength > 0 && utf8.RuneCountInString(token) < minLength {
			continue
		}
		if stem := Stem(token); stem != "" {
			stems = append(stems, stem)
		}
	}
	return stems
}

// UniqueStems returns the distinct stems of text in first-seen order.
func UniqueStems(text string) []string {
	stems := Normalize(text)
	seen := make(map[string]bool, len(stems))
	unique := stems[:0]
	for _, stem := range stems {
		if seen[stem] {
			continue
		}
		seen[stem] = true
		unique = append(unique, stem)
	}
	return unique
}

// UniqueTokens returns the distinct unstemmed tokens of text in first-seen order.
func UniqueTokens(text string) []string {
	tokens := Tokenize(text)
	seen := make(map[string]bool, len(tokens))
	unique := tokens[:0]
	for _, token := range tokens {
		if seen[token] {
			continue
		}
		seen[token] = true
		unique = append(unique, token)
	}
	return unique
}

// TermFrequencies counts the occurrences of every stem in text.
func TermFrequencies(text string) map[string]int {
	freqs := make(map[string]int)
	for _, stem := range Normalize(text) {
		freqs[stem]++
	}
	return freqs
}
