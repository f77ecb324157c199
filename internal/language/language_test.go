package language

import (
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"und", ""},
		{"en", "en"},
		{"EN", "en"},
		{"eng", "en"},
		{"spa", "es"},
		{"fra", "fr"},
		{"fre", "fr"},
		{"deu", "de"},
		{"ger", "de"},
		{"chi", "zh"},
		{"dut", "nl"},
		{"jpn", "ja"},
		{"en-US", "en-US"},
		{"pt-br", "pt-BR"},
		{"not a language", "not a language"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.input); got != tt.expected {
			t.Fatalf("Normalize(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestFromTags(t *testing.T) {
	tests := []struct {
		name     string
		tags     map[string]string
		expected string
	}{
		{"nil", nil, ""},
		{"legacy", map[string]string{"language": "eng"}, "en"},
		{"uppercase key", map[string]string{"LANGUAGE": "ger"}, "de"},
		{"ietf wins", map[string]string{"language": "por", "language_ietf": "pt-BR"}, "pt-BR"},
		{"und skipped", map[string]string{"language_ietf": "und", "language": "jpn"}, "ja"},
		{"nul padded", map[string]string{"lang": "fre\u0000"}, "fr"},
		{"no language", map[string]string{"title": "Commentary"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromTags(tt.tags); got != tt.expected {
				t.Fatalf("FromTags(%v) = %q, want %q", tt.tags, got, tt.expected)
			}
		})
	}
}

func TestISO3(t *testing.T) {
	tests := map[string]string{
		"en":    "eng",
		"ger":   "deu",
		"fr-CA": "fra",
		"":      "und",
		"und":   "und",
	}
	for in, want := range tests {
		if got := ISO3(in); got != want {
			t.Fatalf("ISO3(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDisplayName(t *testing.T) {
	tests := map[string]string{
		"":    "Unknown",
		"eng": "English",
		"ger": "German",
		"ja":  "Japanese",
		"x!":  "X!",
	}
	for in, want := range tests {
		if got := DisplayName(in); got != want {
			t.Fatalf("DisplayName(%q) = %q, want %q", in, got, want)
		}
	}
}
