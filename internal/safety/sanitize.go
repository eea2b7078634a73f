// Package safety screens user input before it reaches the model: control
// character stripping, prompt injection heuristics, and optional content
// moderation.
package safety

import (
	"strings"
	"unicode"
)

// MaxInputLength bounds raw user input before any other processing.
const MaxInputLength = 5000

// Sanitize strips control characters except newline and tab and collapses
// runs of blank lines. The text content is otherwise preserved; meaning is
// the model's problem, transport artifacts are ours.
func Sanitize(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			continue
		}
		b.WriteRune(r)
	}

	out := b.String()
	for strings.Contains(out, "\n\n\n") {
		out = strings.ReplaceAll(out, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(out)
}
