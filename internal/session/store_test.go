package session

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daeunpk/wink/internal/models"
)

var fixedNow = time.Date(2025, 6, 1, 21, 30, 0, 0, time.Local)

func newTestStore(t *testing.T, logs *bytes.Buffer) *Store {
	t.Helper()
	var w bytes.Buffer
	if logs == nil {
		logs = &w
	}
	logger := slog.New(slog.NewTextHandler(logs, nil))
	return NewStore(t.TempDir(), WithLogger(logger), WithClock(func() time.Time { return fixedNow }))
}

func turn(text string, keywords ...string) models.Turn {
	return models.Turn{
		Timestamp:      fixedNow,
		KoreanText:     text,
		EnglishText:    "translated " + text,
		MergedSentence: "merged " + text,
		Keywords:       keywords,
		Recommendations: []models.RankedItem{
			{ID: "track_1", Score: 0.9, Metadata: map[string]string{"mood_tags": "calm"}},
		},
	}
}

func assertAligned(t *testing.T, sess *models.Session, n int) {
	t.Helper()
	assert.Len(t, sess.KoreanText, n)
	assert.Len(t, sess.ImagePath, n)
	assert.Len(t, sess.EnglishText, n)
	assert.Len(t, sess.EnglishCaption, n)
	assert.Len(t, sess.MergedSentence, n)
	assert.Len(t, sess.EnglishKeywords, n)
	assert.Len(t, sess.Recommendations, n)
}

func TestLoadMissingReturnsFreshSession(t *testing.T) {
	store := newTestStore(t, nil)

	sess, err := store.Load(DefaultName)
	require.NoError(t, err)
	assert.Equal(t, DefaultName, sess.Name)
	assert.Equal(t, fixedNow, sess.StartedAt)
	assertAligned(t, sess, 0)
	assert.NotNil(t, sess.EnglishKeywords)
	assert.False(t, store.Exists(DefaultName))
}

func TestAppendPersistLoadKeepsAlignment(t *testing.T) {
	store := newTestStore(t, nil)

	sess, err := store.Load(DefaultName)
	require.NoError(t, err)
	for _, text := range []string{"비가 와", "산책 중", "조용한 밤"} {
		require.NoError(t, store.AppendTurn(sess, turn(text, "calm", "rainy")))
		require.NoError(t, store.Persist(sess))
	}

	loaded, err := store.Load(DefaultName)
	require.NoError(t, err)
	assertAligned(t, loaded, 3)
	assert.Equal(t, "조용한 밤", loaded.KoreanText[2])
	assert.Equal(t, []string{"calm", "rainy"}, loaded.EnglishKeywords[1])
	assert.Equal(t, "track_1", loaded.Recommendations[0][0].ID)
	assert.Equal(t, fixedNow.Unix(), loaded.StartedAt.Unix())
}

func TestAppendRejectsInvalidTurn(t *testing.T) {
	store := newTestStore(t, nil)
	sess, err := store.Load(DefaultName)
	require.NoError(t, err)

	tests := []struct {
		name string
		turn models.Turn
	}{
		{"no timestamp", models.Turn{KoreanText: "안녕"}},
		{"no signal", models.Turn{Timestamp: fixedNow}},
		{"keyword too long", models.Turn{Timestamp: fixedNow, KoreanText: "x", Keywords: []string{"wonderfullylongkeyword"}}},
		{"recommendation without id", models.Turn{Timestamp: fixedNow, ImagePath: "a.jpg", Recommendations: []models.RankedItem{{Score: 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.AppendTurn(sess, tt.turn)
			assert.True(t, errors.Is(err, ErrValidation), "got %v", err)
			assertAligned(t, sess, 0)
		})
	}
}

func TestLoadRepairsMissingSequence(t *testing.T) {
	store := newTestStore(t, nil)
	legacy := `{
  "session_name": "active_session",
  "session_start": "2025-05-31 20:00:00",
  "korean_text": ["비가 와"],
  "image_path": [""],
  "english_text": ["It is raining"],
  "english_caption": [""],
  "merged_sentence": ["It is raining and calm"],
  "recommendations": [[]]
}`
	require.NoError(t, os.WriteFile(store.Path(DefaultName), []byte(legacy), 0644))

	sess, err := store.Load(DefaultName)
	require.NoError(t, err)
	assertAligned(t, sess, 1)
	assert.Equal(t, []string{}, sess.EnglishKeywords[0])
	assert.Equal(t, 2025, sess.StartedAt.Year())

	again := *sess
	assert.Empty(t, Repair(&again))
}

func TestLoadPadsShortSequences(t *testing.T) {
	sess := &models.Session{
		KoreanText:     []string{"a", "b"},
		MergedSentence: []string{"x"},
	}
	padded := Repair(sess)
	assertAligned(t, sess, 2)
	assert.Contains(t, padded, keyMerged)
	assert.Contains(t, padded, keyKeywords)
	assert.NotContains(t, padded, keyKorean)
}

func TestLoadCorruptedStartsFresh(t *testing.T) {
	var logs bytes.Buffer
	store := newTestStore(t, &logs)
	require.NoError(t, os.WriteFile(store.Path(DefaultName), []byte(`{"korean_text": [`), 0644))

	sess, err := store.Load(DefaultName)
	require.NoError(t, err)
	assertAligned(t, sess, 0)
	assert.Contains(t, logs.String(), "Session file unreadable")
}

func TestLoadWrongTypeIsCorruption(t *testing.T) {
	var logs bytes.Buffer
	store := newTestStore(t, &logs)
	require.NoError(t, os.WriteFile(store.Path(DefaultName), []byte(`{"korean_text": "not a list"}`), 0644))

	sess, err := store.Load(DefaultName)
	require.NoError(t, err)
	assertAligned(t, sess, 0)
	assert.Contains(t, logs.String(), "Session file unreadable")
}

func TestPersistPreservesUnknownKeys(t *testing.T) {
	store := newTestStore(t, nil)
	doc := `{"session_name": "active_session", "client_state": {"theme": "dark"}, "korean_text": []}`
	require.NoError(t, os.WriteFile(store.Path(DefaultName), []byte(doc), 0644))

	sess, err := store.Load(DefaultName)
	require.NoError(t, err)
	require.NoError(t, store.AppendTurn(sess, turn("비")))
	require.NoError(t, store.Persist(sess))

	data, err := os.ReadFile(store.Path(DefaultName))
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, map[string]any{"theme": "dark"}, out["client_state"])
	assert.EqualValues(t, SchemaVersion, out["schema_version"])
	assert.Contains(t, string(data), "비")
}

func TestPersistFailureIsStorageWriteError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))
	store := NewStore(filepath.Join(blocker, "sessions"))

	err := store.Persist(&models.Session{Name: DefaultName})
	var werr *StorageWriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, store.Path(DefaultName), werr.Path)
}

func TestUpdateSkipsWriteOnError(t *testing.T) {
	store := newTestStore(t, nil)
	boom := errors.New("boom")

	_, err := store.Update(DefaultName, func(*models.Session) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, store.Exists(DefaultName))

	sess, err := store.Update(DefaultName, func(s *models.Session) error {
		s.Topic = "Rainy Night Jazz"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Rainy Night Jazz", sess.Topic)
	assert.True(t, store.Exists(DefaultName))
}

func TestArchive(t *testing.T) {
	store := newTestStore(t, nil)

	_, err := store.Archive(DefaultName)
	assert.ErrorIs(t, err, ErrNoSession)

	sess, err := store.Load(DefaultName)
	require.NoError(t, err)
	require.NoError(t, store.AppendTurn(sess, turn("비")))
	require.NoError(t, store.Persist(sess))

	name, err := store.Archive(DefaultName)
	require.NoError(t, err)
	assert.Equal(t, "active_session_20250601_213000", name)
	assert.False(t, store.Exists(DefaultName))

	archived, err := store.Load(name)
	require.NoError(t, err)
	assertAligned(t, archived, 1)

	require.NoError(t, store.Persist(sess))
	second, err := store.Archive(DefaultName)
	require.NoError(t, err)
	assert.Equal(t, "active_session_20250601_213000_1", second)
}
