package models

import "time"

// Session is one conversation. The seven turn sequences are index-aligned:
// entry i of every sequence belongs to turn i.
type Session struct {
	Name      string    `json:"session_name" yaml:"session_name"`
	StartedAt time.Time `json:"session_start" yaml:"session_start"`
	Topic     string    `json:"session_topic,omitempty" yaml:"session_topic,omitempty"`

	KoreanText      []string       `json:"korean_text" yaml:"korean_text"`
	ImagePath       []string       `json:"image_path" yaml:"image_path"`
	EnglishText     []string       `json:"english_text" yaml:"english_text"`
	EnglishCaption  []string       `json:"english_caption" yaml:"english_caption"`
	MergedSentence  []string       `json:"merged_sentence" yaml:"merged_sentence"`
	EnglishKeywords [][]string     `json:"english_keywords" yaml:"english_keywords"`
	Recommendations [][]RankedItem `json:"recommendations" yaml:"recommendations"`

	// KeywordEmbeddings is filled by the backfill job and may lag behind the
	// turn sequences.
	KeywordEmbeddings [][]float32 `json:"english_keyword_embeddings,omitempty" yaml:"-"`

	// Extra holds keys this version does not recognise, so they survive a rewrite.
	Extra map[string][]byte `json:"-" yaml:"-"`
}

// Turn is a single user submission and everything derived from it.
type Turn struct {
	Timestamp       time.Time    `json:"timestamp" yaml:"timestamp" validate:"required"`
	KoreanText      string       `json:"korean_text" yaml:"korean_text" validate:"required_without=ImagePath"`
	ImagePath       string       `json:"image_path" yaml:"image_path" validate:"required_without=KoreanText"`
	EnglishText     string       `json:"english_text" yaml:"english_text"`
	EnglishCaption  string       `json:"english_caption" yaml:"english_caption"`
	MergedSentence  string       `json:"merged_sentence" yaml:"merged_sentence"`
	Keywords        []string     `json:"english_keywords" yaml:"english_keywords" validate:"dive,min=2,max=15"`
	Recommendations []RankedItem `json:"recommendations" yaml:"recommendations" validate:"dive"`
}

// CatalogItem is one entry of the retrieval corpus.
type CatalogItem struct {
	ID            string            `json:"id" yaml:"id"`
	EmbeddingText string            `json:"embedding_text" yaml:"embedding_text"`
	Metadata      map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// RankedItem is a catalog hit with its similarity to the query.
type RankedItem struct {
	ID       string            `json:"id" yaml:"id" validate:"required"`
	Score    float64           `json:"score" yaml:"score"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// TurnCount returns the number of turns recorded in s.
func (s *Session) TurnCount() int {
	return len(s.MergedSentence)
}

// Turn returns a view of turn i. It panics if i is out of range.
func (s *Session) Turn(i int) Turn {
	return Turn{
		KoreanText:      s.KoreanText[i],
		ImagePath:       s.ImagePath[i],
		EnglishText:     s.EnglishText[i],
		EnglishCaption:  s.EnglishCaption[i],
		MergedSentence:  s.MergedSentence[i],
		Keywords:        s.EnglishKeywords[i],
		Recommendations: s.Recommendations[i],
	}
}
