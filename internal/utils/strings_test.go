package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: nil,
		},
		{
			name:     "single value",
			input:    "PLUGIN_ADDED",
			expected: []string{"PLUGIN_ADDED"},
		},
		{
			name:     "varied spacing",
			input:    "PLUGIN_ADDED,  PLUGIN_DELETED ",
			expected: []string{"PLUGIN_ADDED", "PLUGIN_DELETED"},
		},
		{
			name:     "empty segments dropped",
			input:    ",,PLUGIN_UPDATED,,",
			expected: []string{"PLUGIN_UPDATED"},
		},
		{
			name:     "only separators",
			input:    " , ",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseCSV(tt.input))
		})
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "two words", input: "Copper Price", expected: "copper_price"},
		{name: "punctuation stripped", input: "S&P 500 (Index)", expected: "sp_500_index"},
		{name: "whitespace runs collapse", input: "Boom   Cycle\tRegime", expected: "boom_cycle_regime"},
		{name: "accents stripped", input: "Croissance Économique", expected: "croissance_conomique"},
		{name: "already a slug", input: "gdp_growth", expected: "gdp_growth"},
		{name: "empty", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Slugify(tt.input))
		})
	}
}

func TestSlugify_Truncates(t *testing.T) {
	slug := Slugify(strings.Repeat("abc ", 30))
	assert.Len(t, slug, MaxSlugLength)
	assert.Regexp(t, `^[a-z0-9_]+$`, slug)
}
