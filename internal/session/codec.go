package session

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/daeunpk/wink/internal/models"
)

// SchemaVersion is written to every persisted session. Files without a
// version predate it and are migrated on load.
const SchemaVersion = 2

const (
	keyVersion    = "schema_version"
	keyName       = "session_name"
	keyStart      = "session_start"
	keyTopic      = "session_topic"
	keyKorean     = "korean_text"
	keyImage      = "image_path"
	keyEnglish    = "english_text"
	keyCaption    = "english_caption"
	keyMerged     = "merged_sentence"
	keyKeywords   = "english_keywords"
	keyRecs       = "recommendations"
	keyEmbeddings = "english_keyword_embeddings"
)

// turnKeys lists the index-aligned sequences in storage order.
var turnKeys = []string{keyKorean, keyImage, keyEnglish, keyCaption, keyMerged, keyKeywords, keyRecs}

var legacyTimeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"}

// decode parses a session document. Keys it does not know are kept in
// Extra. The returned slice names the turn sequences that were absent.
func decode(data []byte) (*models.Session, []string, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if doc == nil {
		return nil, nil, fmt.Errorf("%w: document is null", ErrCorrupted)
	}

	sess := &models.Session{}
	var missing []string
	field := func(key string, dst any) error {
		raw, ok := doc[key]
		delete(doc, key)
		if !ok || bytes.Equal(raw, []byte("null")) {
			return errAbsent
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("%w: key %q: %v", ErrCorrupted, key, err)
		}
		return nil
	}
	optional := func(key string, dst any) error {
		if err := field(key, dst); err != nil && err != errAbsent {
			return err
		}
		return nil
	}

	var version int
	if err := optional(keyVersion, &version); err != nil {
		return nil, nil, err
	}
	if err := optional(keyName, &sess.Name); err != nil {
		return nil, nil, err
	}
	if err := optional(keyTopic, &sess.Topic); err != nil {
		return nil, nil, err
	}
	var start string
	if err := optional(keyStart, &start); err != nil {
		return nil, nil, err
	}
	if start != "" {
		t, err := parseStart(start)
		if err != nil {
			return nil, nil, err
		}
		sess.StartedAt = t
	}

	targets := map[string]any{
		keyKorean:   &sess.KoreanText,
		keyImage:    &sess.ImagePath,
		keyEnglish:  &sess.EnglishText,
		keyCaption:  &sess.EnglishCaption,
		keyMerged:   &sess.MergedSentence,
		keyKeywords: &sess.EnglishKeywords,
		keyRecs:     &sess.Recommendations,
	}
	for _, key := range turnKeys {
		err := field(key, targets[key])
		if err == errAbsent {
			missing = append(missing, key)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
	}
	if err := optional(keyEmbeddings, &sess.KeywordEmbeddings); err != nil {
		return nil, nil, err
	}

	if len(doc) > 0 {
		sess.Extra = make(map[string][]byte, len(doc))
		for k, v := range doc {
			sess.Extra[k] = []byte(v)
		}
	}
	return sess, missing, nil
}

func parseStart(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range legacyTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unreadable %s %q", ErrCorrupted, keyStart, s)
}

// encode renders sess as indented JSON with non-ASCII text kept verbatim.
func encode(sess *models.Session) ([]byte, error) {
	doc := make(map[string]any, len(turnKeys)+len(sess.Extra)+5)
	for k, v := range sess.Extra {
		doc[k] = json.RawMessage(v)
	}
	doc[keyVersion] = SchemaVersion
	doc[keyName] = sess.Name
	doc[keyStart] = sess.StartedAt.Format(time.RFC3339)
	if sess.Topic != "" {
		doc[keyTopic] = sess.Topic
	}
	doc[keyKorean] = nonNil(sess.KoreanText)
	doc[keyImage] = nonNil(sess.ImagePath)
	doc[keyEnglish] = nonNil(sess.EnglishText)
	doc[keyCaption] = nonNil(sess.EnglishCaption)
	doc[keyMerged] = nonNil(sess.MergedSentence)
	doc[keyKeywords] = nonNil(sess.EnglishKeywords)
	doc[keyRecs] = nonNil(sess.Recommendations)
	if len(sess.KeywordEmbeddings) > 0 {
		doc[keyEmbeddings] = sess.KeywordEmbeddings
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	return buf.Bytes(), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
