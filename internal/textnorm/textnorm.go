// Package textnorm turns raw model responses into the sentences and keyword
// sets the pipeline stores.
package textnorm

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	json "github.com/goccy/go-json"
)

const (
	MinKeywordLen = 2
	MaxKeywordLen = 15
)

// ErrMalformedOutput reports a keyword response that yielded nothing usable
// after both strict parsing and fallback cleanup.
var ErrMalformedOutput = errors.New("malformed keyword output")

// DefaultDenylist holds tokens models tend to echo back from the prompt.
var DefaultDenylist = []string{"keywords", "keyword", "text", "sentence", "output", "다음", "영어"}

var (
	doubleQuoted = regexp.MustCompile(`["“]([^"“”]+)["”]`)
	fence        = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
)

// ExtractSentence reduces a model response to the single sentence it carries.
// Double-quoted text wins; a response wrapped entirely in single quotes is
// unwrapped; otherwise the last non-empty line is used.
func ExtractSentence(raw string) string {
	text := StripFences(raw)
	if m := doubleQuoted.FindStringSubmatch(text); m != nil {
		if s := strings.TrimSpace(m[1]); s != "" {
			return s
		}
	}
	if len(text) >= 2 && (text[0] == '\'' && text[len(text)-1] == '\'') {
		return strings.TrimSpace(text[1 : len(text)-1])
	}
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// StripFences trims whitespace and removes a surrounding markdown code fence.
func StripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if m := fence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// ParseKind records which path produced a keyword parse.
type ParseKind int

const (
	Parsed ParseKind = iota
	Fallback
)

func (k ParseKind) String() string {
	if k == Parsed {
		return "parsed"
	}
	return "fallback"
}

// KeywordParse is the outcome of reading a keyword response.
type KeywordParse struct {
	Kind   ParseKind
	Tokens []string
	// Err holds the strict decoding error when Kind is Fallback.
	Err error
}

// ParseKeywords reads a {"keywords": [...]} document. When that fails the raw
// text is reduced to letters, hyphens, commas and whitespace and split.
func ParseKeywords(raw string) KeywordParse {
	var doc struct {
		Keywords []string `json:"keywords"`
	}
	err := json.Unmarshal([]byte(StripFences(raw)), &doc)
	if err == nil && doc.Keywords != nil {
		return KeywordParse{Kind: Parsed, Tokens: doc.Keywords}
	}
	if err == nil {
		err = errors.New(`missing "keywords" array`)
	}

	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), r == '-', r == ',', unicode.IsSpace(r):
			return r
		default:
			return -1
		}
	}, raw)
	tokens := strings.FieldsFunc(cleaned, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	return KeywordParse{Kind: Fallback, Tokens: tokens, Err: err}
}

// FilterKeywords lowercases and trims tokens, keeps those between
// MinKeywordLen and MaxKeywordLen runes that are not denied, drops duplicates
// and returns at most k of them in original order.
func FilterKeywords(tokens []string, k int, denylist []string) []string {
	denied := make(map[string]struct{}, len(denylist))
	for _, d := range denylist {
		denied[strings.ToLower(d)] = struct{}{}
	}

	out := make([]string, 0, k)
	seen := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		if len(out) == k {
			break
		}
		tok = strings.ToLower(strings.Trim(strings.TrimSpace(tok), "-"))
		n := utf8.RuneCountInString(tok)
		if n < MinKeywordLen || n > MaxKeywordLen {
			continue
		}
		if _, ok := denied[tok]; ok {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}
