package search

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestGenerateSnippet(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		tokens []string
		want   string
	}{
		{
			name: "empty text",
			text: "",
			want: "",
		},
		{
			name:   "short text without match",
			text:   "nothing relevant here",
			tokens: []string{"alpha"},
			want:   "nothing relevant here",
		},
		{
			name:   "match at start",
			text:   "Alpha and beta.",
			tokens: []string{"alpha"},
			want:   "Alpha and beta.",
		},
		{
			name:   "case insensitive",
			text:   "The QUICK brown fox",
			tokens: []string{"quick"},
			want:   "The QUICK brown fox",
		},
		{
			name:   "empty tokens ignored",
			text:   "plain words",
			tokens: []string{"", "words"},
			want:   "plain words",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GenerateSnippet(tt.text, tt.tokens))
		})
	}
}

func TestGenerateSnippet_NoMatchLongText(t *testing.T) {
	body := strings.Repeat("z", 300)
	got := GenerateSnippet(body, []string{"alpha"})
	assert.Equal(t, strings.Repeat("z", SnippetLength)+"...", got)
}

func TestGenerateSnippet_LeadingContext(t *testing.T) {
	body := strings.Repeat("x", 100) + " needle " + strings.Repeat("y", 20)
	got := GenerateSnippet(body, []string{"needle"})

	assert.True(t, strings.HasPrefix(got, "..."))
	assert.False(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, "..."+strings.Repeat("x", 39)+" needle "+strings.Repeat("y", 20), got)
}

func TestGenerateSnippet_NearEndStaysInBounds(t *testing.T) {
	body := strings.Repeat("x", 450) + "needle" + strings.Repeat("y", 44)
	assert.Equal(t, 500, utf8.RuneCountInString(body))

	got := GenerateSnippet(body, []string{"needle"})

	assert.True(t, strings.HasPrefix(got, "..."))
	assert.Contains(t, got, "needle")
	assert.True(t, strings.HasSuffix(got, strings.Repeat("y", 44)))
	assert.Equal(t, "..."+body[410:], got)
}

func TestGenerateSnippet_EarliestToken(t *testing.T) {
	body := strings.Repeat("a ", 100) + "second " + strings.Repeat("b ", 10) + "first"
	got := GenerateSnippet(body, []string{"first", "second"})
	assert.Contains(t, got, "second")
}

func TestGenerateSnippet_SnapsToSentenceBoundary(t *testing.T) {
	// The sentence ends at rune 189; its trailing space is at 190.
	body := "match " + strings.Repeat("b", 183) + ". " + strings.Repeat("c", 100)

	got := GenerateSnippet(body, []string{"match"})
	assert.Equal(t, "match "+strings.Repeat("b", 183)+"....", got)
}

func TestGenerateSnippet_NoBoundaryInReach(t *testing.T) {
	body := "match " + strings.Repeat("b", 300)
	got := GenerateSnippet(body, []string{"match"})

	assert.Equal(t, SnippetLength+3, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestGenerateSnippet_NeverCutsMatch(t *testing.T) {
	// The token itself contains a sentence boundary inside the reach window.
	token := strings.Repeat("w", 150) + ". " + strings.Repeat("v", 5)
	body := strings.Repeat("p", 50) + "! " + token + strings.Repeat("q", 100)

	got := GenerateSnippet(body, []string{token})
	assert.Contains(t, got, token)
}

func TestGenerateSnippet_Multibyte(t *testing.T) {
	body := strings.Repeat("é", 300)
	got := GenerateSnippet(body, []string{"é"})

	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, SnippetLength+3, utf8.RuneCountInString(got))
}

func TestGenerateSnippet_EndNeverMovesForward(t *testing.T) {
	// The only boundary sits five runes past the computed end.
	body := "match " + strings.Repeat("b", 199) + ". " + strings.Repeat("c", 100)

	got := GenerateSnippet(body, []string{"match"})
	assert.Equal(t, "match "+strings.Repeat("b", 194)+"...", got)
}
