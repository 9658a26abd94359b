package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"basic title", "Hello World! 2024", "hello-world-2024"},
		{"already a slug", "hello-world-2024", "hello-world-2024"},
		{"uppercase", "GoLang Tips", "golang-tips"},
		{"punctuation stripped", "What's New, Really?", "whats-new-really"},
		{"whitespace runs collapse", "too   many    spaces", "too-many-spaces"},
		{"hyphen runs collapse", "a--b---c", "a-b-c"},
		{"leading and trailing trimmed", "  -- edge case -- ", "edge-case"},
		{"unicode stripped", "café olé", "caf-ol"},
		{"digits kept", "2024 review", "2024-review"},
		{"empty", "", ""},
		{"only symbols", "!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.input))
		})
	}
}

func TestSlugifyIdempotent(t *testing.T) {
	inputs := []string{
		"Hello World! 2024",
		"What's New, Really?",
		"  -- edge case -- ",
		"a--b---c",
		"CAFÉ olé 42",
	}
	for _, in := range inputs {
		once := Slugify(in)
		assert.Equal(t, once, Slugify(once), "Slugify must be idempotent for %q", in)
	}
}
