// Package history renders past turns as prompt context.
package history

import (
	"fmt"
	"strings"

	"github.com/daeunpk/wink/internal/models"
)

// Empty is returned for a session with no turns.
const Empty = "No past conversation history."

// Build returns one line per turn, oldest first:
//
//	Turn 1: <merged sentence> (Extracted Keywords: a, b)
//
// The keyword suffix is left out when a turn has no keywords.
func Build(sess *models.Session) string {
	if sess == nil || len(sess.MergedSentence) == 0 {
		return Empty
	}

	var b strings.Builder
	for i, sentence := range sess.MergedSentence {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "Turn %d: %s", i+1, sentence)
		if i < len(sess.EnglishKeywords) && len(sess.EnglishKeywords[i]) > 0 {
			fmt.Fprintf(&b, " (Extracted Keywords: %s)", strings.Join(sess.EnglishKeywords[i], ", "))
		}
	}
	return b.String()
}
