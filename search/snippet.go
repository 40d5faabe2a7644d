package search

import (
	"strings"
	"unicode"
)

const (
	// SnippetLength is the maximum number of runes of document text in a snippet.
	SnippetLength = 200

	snippetLead     = 40 // runes kept before the first match
	boundaryReach   = 20 // how far back the end may move to a sentence boundary
	snippetEllipsis = "..."
)

// GenerateSnippet returns up to SnippetLength runes of text around the first
// case-insensitive occurrence of any of tokens. Without a match it returns the
// start of the text. An ellipsis marks each side where text was cut.
func GenerateSnippet(text string, tokens []string) string {
	runes := []rune(text)
	if len(runes) == 0 {
		return ""
	}
	lower := lowerRunes(runes)

	pos, matchLen := -1, 0
	for _, token := range tokens {
		needle := lowerRunes([]rune(token))
		if len(needle) == 0 {
			continue
		}
		if i := indexRunes(lower, needle); i >= 0 && (pos < 0 || i < pos) {
			pos, matchLen = i, len(needle)
		}
	}

	if pos < 0 {
		if len(runes) <= SnippetLength {
			return text
		}
		return strings.TrimSpace(string(runes[:SnippetLength])) + snippetEllipsis
	}

	start := max(0, pos-snippetLead)
	end := min(len(runes), start+SnippetLength)
	if end < len(runes) {
		end = snapToSentence(runes, end, pos+matchLen)
	}

	var b strings.Builder
	if start > 0 {
		b.WriteString(snippetEllipsis)
	}
	b.WriteString(strings.TrimSpace(string(runes[start:end])))
	if end < len(runes) {
		b.WriteString(snippetEllipsis)
	}
	return b.String()
}

// snapToSentence moves end back to the closest sentence boundary within
// boundaryReach runes, never cutting before floor. It returns end unchanged
// when no boundary is in reach.
func snapToSentence(runes []rune, end, floor int) int {
	for b := end; b >= end-boundaryReach && b >= floor && b > 0; b-- {
		if isSentenceBoundary(runes, b) {
			return b
		}
	}
	return end
}

// isSentenceBoundary reports whether a cut before runes[i] ends a sentence:
// after ". ", "! " or "? " punctuation, or right before a line break.
func isSentenceBoundary(runes []rune, i int) bool {
	if i >= len(runes) {
		return false
	}
	if runes[i] == '\n' {
		return true
	}
	if runes[i] != ' ' {
		return false
	}
	switch runes[i-1] {
	case '.', '!', '?':
		return true
	}
	return false
}

func lowerRunes(runes []rune) []rune {
	out := make([]rune, len(runes))
	for i, r := range runes {
		out[i] = unicode.ToLower(r)
	}
	return out
}

func indexRunes(haystack, needle []rune) int {
	n := len(needle)
	for i := 0; i+n <= len(haystack); i++ {
		match := true
		for j := 0; j < n; j++ {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
