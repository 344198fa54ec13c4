package utils

import (
	"regexp"
	"strings"
)

// ParseCSV splits a comma-separated string and returns trimmed non-empty values.
// Returns nil for empty/whitespace-only input.
// Used for query-string filters such as ?types=PLUGIN_ADDED,PLUGIN_DELETED.
func ParseCSV(s string) []string {
	if s == "" {
		return nil
	}

	var result []string
	for _, v := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return nil
	}

	return result
}

var (
	slugStrip      = regexp.MustCompile(`[^a-z0-9\s]`)
	slugWhitespace = regexp.MustCompile(`\s+`)
)

// MaxSlugLength bounds the length of generated identifiers.
const MaxSlugLength = 50

// Slugify derives an identifier from a display name: lowercase, characters outside
// [a-z0-9] and whitespace removed, whitespace runs collapsed to "_", truncated to 50.
func Slugify(name string) string {
	slug := slugStrip.ReplaceAllString(strings.ToLower(name), "")
	slug = slugWhitespace.ReplaceAllString(slug, "_")
	if len(slug) > MaxSlugLength {
		slug = slug[:MaxSlugLength]
	}
	return slug
}
