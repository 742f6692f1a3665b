package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSentence(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "quoted sentence after preamble",
			raw:  "Here is the translation:\n\"It is raining and I feel calm.\"",
			want: "It is raining and I feel calm.",
		},
		{
			name: "curly quotes",
			raw:  "“A quiet street glows under soft lamps.”",
			want: "A quiet street glows under soft lamps.",
		},
		{
			name: "single quoted whole response",
			raw:  "'A calm walk in the rain.'",
			want: "A calm walk in the rain.",
		},
		{
			name: "apostrophes are not quotes",
			raw:  "It's raining, isn't it",
			want: "It's raining, isn't it",
		},
		{
			name: "last line wins",
			raw:  "Sure!\n\nThe night feels warm and slow.\n",
			want: "The night feels warm and slow.",
		},
		{
			name: "fenced",
			raw:  "```\nA bright morning.\n```",
			want: "A bright morning.",
		},
		{
			name: "empty",
			raw:  "  \n ",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractSentence(tt.raw))
		})
	}
}

func TestParseKeywords(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		kind   ParseKind
		tokens []string
	}{
		{
			name:   "strict json",
			raw:    `{"keywords": ["Calm", "rainy", "cozy"]}`,
			kind:   Parsed,
			tokens: []string{"Calm", "rainy", "cozy"},
		},
		{
			name:   "fenced json",
			raw:    "```json\n{\"keywords\": [\"warm\"]}\n```",
			kind:   Parsed,
			tokens: []string{"warm"},
		},
		{
			name:   "comma list",
			raw:    "calm, dreamy, soft-spoken",
			kind:   Fallback,
			tokens: []string{"calm", "dreamy", "soft-spoken"},
		},
		{
			name:   "truncated json",
			raw:    `{"keywords": ["calm", "dreamy"`,
			kind:   Fallback,
			tokens: []string{"keywords", "calm", "dreamy"},
		},
		{
			name:   "json without keywords",
			raw:    `{"words": ["calm"]}`,
			kind:   Fallback,
			tokens: []string{"words", "calm"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseKeywords(tt.raw)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.tokens, got.Tokens)
			if tt.kind == Fallback {
				assert.Error(t, got.Err)
			}
		})
	}
}

func TestFilterKeywords(t *testing.T) {
	tests := []struct {
		name   string
		tokens []string
		k      int
		want   []string
	}{
		{
			name:   "length bounds",
			tokens: []string{"ok", "a", "wonderfully-long-token-that-exceeds-limit", "mellow"},
			k:      5,
			want:   []string{"ok", "mellow"},
		},
		{
			name:   "lowercase and dedupe",
			tokens: []string{"Calm", "calm", " CALM ", "Rainy"},
			k:      5,
			want:   []string{"calm", "rainy"},
		},
		{
			name:   "truncate to k",
			tokens: []string{"one", "two", "three", "four"},
			k:      2,
			want:   []string{"one", "two"},
		},
		{
			name:   "denylist",
			tokens: []string{"keywords", "calm", "Output", "영어"},
			k:      5,
			want:   []string{"calm"},
		},
		{
			name:   "multibyte length counts runes",
			tokens: []string{"잔잔한", "비"},
			k:      5,
			want:   []string{"잔잔한"},
		},
		{
			name:   "nothing usable",
			tokens: []string{"a", "-"},
			k:      5,
			want:   []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterKeywords(tt.tokens, tt.k, DefaultDenylist))
		})
	}
}

func TestFallbackThenFilter(t *testing.T) {
	parse := ParseKeywords("Keywords: calm, rainy, a, wonderfully-long-token-that-exceeds-limit")
	got := FilterKeywords(parse.Tokens, 5, DefaultDenylist)
	assert.Equal(t, []string{"calm", "rainy"}, got)
}
