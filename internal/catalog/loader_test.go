package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordItem(t *testing.T) {
	item := Record{TrackID: "track_0000214", Path: "14/214.mp3", GenreTags: "jazz", MoodTags: " calm, relaxing "}.Item()

	assert.Equal(t, "track_0000214", item.ID)
	assert.Equal(t, "Genre: jazz. Mood: calm, relaxing", item.EmbeddingText)
	assert.Equal(t, "14/214.mp3", item.Metadata["path"])
	assert.Equal(t, "track_0000214", item.Metadata["track_id"])
}

func TestLoadJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.jsonl")
	lines := []string{
		`{"TRACK_ID":"track_1","PATH":"1.mp3","genre_tags":"jazz","mood_tags":"calm"}`,
		``,
		`{"TRACK_ID":"","PATH":"x.mp3","genre_tags":"pop","mood_tags":"happy"}`,
		`{"TRACK_ID":"track_2","PATH":"2.mp3","genre_tags":"rock","mood_tags":"energetic"}`,
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0644))

	items, err := NewLoader(path).Load()
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "track_1", items[0].ID)
	assert.Equal(t, "Genre: rock. Mood: energetic", items[1].EmbeddingText)
}

func TestLoadJSONLBadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"TRACK_ID\":\"a\"}\n{oops"), 0644))

	_, err := NewLoader(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestLoadParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.parquet")
	rows := make([]Record, 300)
	for i := range rows {
		rows[i] = Record{TrackID: "track_" + string(rune('a'+i%26)), Path: "p.mp3", GenreTags: "ambient", MoodTags: "dreamy"}
	}
	require.NoError(t, parquet.WriteFile(path, rows))

	items, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Len(t, items, 300)
	assert.Equal(t, "Genre: ambient. Mood: dreamy", items[299].EmbeddingText)
}

func TestLoadUnsupported(t *testing.T) {
	_, err := NewLoader("catalog.csv").Load()
	assert.ErrorContains(t, err, "unsupported file format")
}
