package tokens

import (
	"strings"
	"testing"
)

func TestCount(t *testing.T) {
	c := ForModel("gpt-4o")

	if got := c.Count(""); got != 0 {
		t.Errorf("Count(\"\") = %d, want 0", got)
	}
	if got := c.Count("hello"); got < 1 {
		t.Errorf("Count(hello) = %d, want >= 1", got)
	}

	// Roughly four characters per token for prose.
	text := strings.Repeat("the quick brown fox ", 50) // 1000 chars
	got := c.Count(text)
	if got < 200 || got > 300 {
		t.Errorf("Count(prose) = %d, want within [200, 300]", got)
	}
}

func TestCount_PunctuationHeavyText(t *testing.T) {
	c := ForModel("gpt-4o")

	// Dense punctuation tokenizes worse than the char ratio suggests; the
	// word-and-symbol count becomes the estimate.
	code := `{"a":1,"b":[2,3],"c":{"d":4}}`
	if got, chars := c.Count(code), len(code)/4+1; got <= chars {
		t.Errorf("Count(json) = %d, want > %d", got, chars)
	}
}

func TestCountMessage_IncludesOverhead(t *testing.T) {
	c := ForModel("gpt-4o")

	content := c.Count("hello there")
	msg := c.CountMessage("user", "hello there")
	if msg <= content {
		t.Errorf("CountMessage = %d, want > bare content %d", msg, content)
	}
}

func TestForModel_PrefixSelection(t *testing.T) {
	models := []string{
		"gpt-4o-2024-08-06",
		"gpt-3.5-turbo",
		"gemini-2.0-flash",
		"claude-sonnet-4-20250514",
		"some-unknown-model",
		"",
	}
	for _, model := range models {
		c := ForModel(model)
		if c == nil {
			t.Fatalf("ForModel(%q) = nil", model)
		}
		if got := c.Count("hello world"); got < 1 {
			t.Errorf("ForModel(%q).Count = %d, want >= 1", model, got)
		}
	}
}

func TestCount_EstimatesAreStable(t *testing.T) {
	a := ForModel("gpt-4o")
	b := ForModel("GPT-4O") // case-insensitive model match
	text := "add two mechanical keyboards to my cart"
	if a.Count(text) != b.Count(text) {
		t.Errorf("case-sensitive model lookup: %d != %d", a.Count(text), b.Count(text))
	}
}
