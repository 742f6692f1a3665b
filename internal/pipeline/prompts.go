package pipeline

import (
	"fmt"
	"strings"
)

const mergeSystem = `You combine what a user said and what their photo shows into one English sentence.
Keep the user's tone. When the two disagree, follow the most recent intent.
Respond with the single merged sentence only.`

const mergeTemplate = `Conversation so far:
%s

Sentence 1 (what the user said): %s
Sentence 2 (what the photo shows): %s

Merge sentence 1 and sentence 2 into one natural English sentence that reflects the current mood.`

const keywordSystem = `You extract mood adjectives for music recommendation.
Respond with a JSON object of the form {"keywords": ["word", ...]} and nothing else.`

const keywordTemplate = `Extract exactly %d concise single-word English adjectives that describe the mood of this sentence:

%s`

const topicSystem = `You name conversations like playlists.`

const topicTemplate = `Give a short title of at most five words for a conversation that starts with:

%s

Respond with the title only.`

func mergePrompt(hist, english, caption string) string {
	return fmt.Sprintf(mergeTemplate, hist, orNone(english), orNone(caption))
}

func keywordPrompt(k int, merged string) string {
	return fmt.Sprintf(keywordTemplate, k, merged)
}

func topicPrompt(opener string) string {
	return fmt.Sprintf(topicTemplate, opener)
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
