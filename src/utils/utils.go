package utils

import (
	"encoding/json"
	"strings"
)

// RemoveDuplicates removes duplicate values from a slice of strings, keeping
// the first occurrence of each.
func RemoveDuplicates(slice []string) []string {
	seen := make(map[string]bool)
	result := []string{}

	for _, val := range slice {
		if _, ok := seen[val]; !ok {
			seen[val] = true
			result = append(result, val)
		}
	}

	return result
}

// NormalizeTag trims and lowercases a tag name.
func NormalizeTag(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NormalizeTags normalizes every name, drops empty ones and removes duplicates.
func NormalizeTags(names []string) []string {
	normalized := make([]string, 0, len(names))
	for _, n := range names {
		if n = NormalizeTag(n); n != "" {
			normalized = append(normalized, n)
		}
	}
	return RemoveDuplicates(normalized)
}

// ParseTagField reads the tags of a form submission. Repeated fields are taken
// as the list itself; a single field is decoded as a JSON array of strings and
// yields nothing when it is not one.
func ParseTagField(values []string) []string {
	switch len(values) {
	case 0:
		return nil
	case 1:
		return ParseTagJSON([]byte(values[0]))
	default:
		return values
	}
}

// ParseTagJSON decodes a JSON array of strings, or a JSON string that itself
// holds such an array. Anything else yields no tags.
func ParseTagJSON(raw []byte) []string {
	var tags []string
	if err := json.Unmarshal(raw, &tags); err == nil {
		return tags
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		if err := json.Unmarshal([]byte(encoded), &tags); err == nil {
			return tags
		}
	}
	return nil
}
