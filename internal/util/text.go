package util

import (
	"regexp"
	"strings"
)

var mentionPattern = regexp.MustCompile(`(?:^|[^\w@])@([A-Za-z0-9_]{3,30})\b`)

// ExtractMentions extracts @username mentions from text content.
// Returns unique lowercase usernames without the @, in order of appearance.
func ExtractMentions(content string) []string {
	var mentions []string
	seen := make(map[string]bool)
	for _, m := range mentionPattern.FindAllStringSubmatch(content, -1) {
		username := strings.ToLower(m[1])
		if seen[username] {
			continue
		}
		seen[username] = true
		mentions = append(mentions, username)
	}
	return mentions
}
