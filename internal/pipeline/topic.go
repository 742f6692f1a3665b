package pipeline

import (
	"strings"
	"unicode/utf8"
)

const maxTopicLen = 40

// FallbackTopic picks a title from the opening text when no model is
// available to name the conversation.
func FallbackTopic(text string) string {
	switch {
	case strings.TrimSpace(text) == "":
		return "Untitled Chat"
	case strings.Contains(text, "비"):
		return "Rainy Night Jazz"
	case strings.Contains(text, "산책"):
		return "Chill Walk Mood"
	default:
		return "Mood-based Chat"
	}
}

func cleanTopic(s string) string {
	s = strings.Trim(strings.TrimSpace(s), `"'.#*`)
	if utf8.RuneCountInString(s) > maxTopicLen {
		s = string([]rune(s)[:maxTopicLen])
	}
	return strings.TrimSpace(s)
}
