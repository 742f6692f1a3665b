package embedding

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
)

// DefaultHashingDimension is used when NewHashing is given a non-positive size.
const DefaultHashingDimension = 512

var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’-]\p{L}+)*`)

// Hashing is a deterministic bag-of-words embedder based on feature hashing.
// It needs no model or corpus, which makes it the offline default.
type Hashing struct {
	dim       int
	stopwords map[string]struct{}
}

// NewHashing returns a Hashing embedder producing dim-sized vectors.
func NewHashing(dim int) *Hashing {
	if dim <= 0 {
		dim = DefaultHashingDimension
	}
	return &Hashing{dim: dim, stopwords: defaultStopwords()}
}

func (h *Hashing) Name() string { return "hashing" }

// Dimension returns the vector size.
func (h *Hashing) Dimension() int { return h.dim }

// Embed hashes every non-stopword token into a signed bucket and returns the
// L2-normalised result.
func (h *Hashing) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, h.dim)
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if _, stop := h.stopwords[tok]; stop {
			continue
		}
		f := fnv.New64a()
		_, _ = f.Write([]byte(tok))
		sum := f.Sum64()
		idx := int(sum % uint64(h.dim))
		if sum&(1<<63) != 0 {
			v[idx]--
		} else {
			v[idx]++
		}
	}
	return Normalize(v), nil
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "and", "are", "as", "at", "be", "but", "by", "for", "from", "has",
		"have", "i", "in", "is", "it", "its", "of", "on", "or", "so", "that", "the",
		"this", "to", "was", "were", "will", "with", "my", "me", "we", "you",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
