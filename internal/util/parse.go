package util

import (
	"errors"
	"strconv"
	"strings"
)

var ErrFileTooLarge = errors.New("file too large")

// ParseInt parses a string to an integer, returning defaultValue if parsing fails
func ParseInt(s string, defaultValue int) int {
	if val, err := strconv.Atoi(s); err == nil {
		return val
	}
	return defaultValue
}

// ParseBool accepts the usual strconv forms, returning defaultValue otherwise
func ParseBool(s string, defaultValue bool) bool {
	if val, err := strconv.ParseBool(s); err == nil {
		return val
	}
	return defaultValue
}

// ParseTags splits a comma-separated list, lowercasing, trimming and
// de-duplicating entries. At most max tags of up to 30 chars are kept.
func ParseTags(s string, max int) []string {
	tags := []string{}
	seen := make(map[string]bool)
	for _, t := range strings.Split(s, ",") {
		t = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "#")))
		if t == "" || len(t) > 30 || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
		if len(tags) == max {
			break
		}
	}
	return tags
}
