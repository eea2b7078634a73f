// Package tokens estimates token counts for prompt budgeting.
//
// The counts are advisory: providers bill with their own tokenizers and are
// not required to match. The estimator is tuned to overcount slightly so
// budget checks err on the safe side.
package tokens

import (
	"strings"
	"unicode"
)

// Counter estimates token counts for a given model family.
type Counter struct {
	charsPerToken float64
	perMessage    int
}

// encodings maps model name prefixes to average characters per token.
// Longest prefix wins. Unknown models fall back to the conservative
// chars/4 estimate.
var encodings = []struct {
	prefix        string
	charsPerToken float64
}{
	{"gpt-4o", 4.2},
	{"gpt-4", 4.0},
	{"gpt-3.5", 4.0},
	{"gemini-2", 4.1},
	{"gemini-1.5", 4.1},
	{"gemini", 4.0},
	{"claude-3", 3.8},
	{"claude", 3.8},
}

const (
	fallbackCharsPerToken = 4.0

	// perMessageOverhead accounts for role markers and message framing the
	// providers add around each chat message.
	perMessageOverhead = 4
)

// ForModel returns a Counter for the named model, falling back to the
// conservative estimator when the model is unknown.
func ForModel(model string) *Counter {
	model = strings.ToLower(strings.TrimSpace(model))
	best := ""
	cpt := fallbackCharsPerToken
	for _, enc := range encodings {
		if strings.HasPrefix(model, enc.prefix) && len(enc.prefix) > len(best) {
			best = enc.prefix
			cpt = enc.charsPerToken
		}
	}
	return &Counter{charsPerToken: cpt, perMessage: perMessageOverhead}
}

// Count estimates the number of tokens in text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}

	// Whitespace-delimited words plus punctuation runs approximate the
	// tokenizer's word splits; the char ratio catches long unbroken runs.
	byChars := int(float64(len(text))/c.charsPerToken) + 1
	byWords := wordishCount(text)

	if byWords > byChars {
		return byWords
	}
	return byChars
}

// CountMessage estimates tokens for one chat message including framing.
func (c *Counter) CountMessage(role, content string) int {
	return c.Count(content) + c.Count(role) + c.perMessage
}

// wordishCount counts word and punctuation clusters as a lower bound.
func wordishCount(text string) int {
	n := 0
	inWord := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			inWord = false
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			n++
			inWord = false
		default:
			if !inWord {
				n++
				inWord = true
			}
		}
	}
	return n
}
