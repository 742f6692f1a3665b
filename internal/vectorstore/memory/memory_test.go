package memory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daeunpk/wink/internal/vectorstore"
)

func rec(id string) vectorstore.Record {
	return vectorstore.Record{ID: id, Text: "text " + id, Metadata: map[string]string{"path": id + ".mp3"}}
}

func ids(hits []vectorstore.Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Record.ID
	}
	return out
}

func TestSearchRanksByScore(t *testing.T) {
	ctx := context.Background()
	s := NewStorage("")
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx,
		[]vectorstore.Record{rec("a"), rec("b"), rec("c")},
		[][]float32{{1, 0}, {0, 1}, {0.6, 0.8}},
	))

	hits, err := s.Search(ctx, []float32{0, 1}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids(hits))
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.InDelta(t, 0.8, hits[1].Score, 1e-6)
	assert.Equal(t, "b.mp3", hits[0].Record.Metadata["path"])
}

func TestSearchTiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStorage("")
	require.NoError(t, s.Init(ctx, 2))

	var records []vectorstore.Record
	var vectors [][]float32
	for _, id := range []string{"t1", "t2", "t3", "t4", "t5", "t6", "t7", "t8", "t9", "t10", "t11", "t12", "t13"} {
		records = append(records, rec(id))
		vectors = append(vectors, []float32{1, 0})
	}
	require.NoError(t, s.Upsert(ctx, records, vectors))

	for i := 0; i < 5; i++ {
		hits, err := s.Search(ctx, []float32{1, 0}, 5)
		require.NoError(t, err)
		assert.Equal(t, []string{"t1", "t2", "t3", "t4", "t5"}, ids(hits))
	}
}

func TestUpsertReplacesInPlace(t *testing.T) {
	ctx := context.Background()
	s := NewStorage("")
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, []vectorstore.Record{rec("a"), rec("b")}, [][]float32{{1, 0}, {1, 0}}))
	require.NoError(t, s.Upsert(ctx, []vectorstore.Record{{ID: "a", Text: "new"}}, [][]float32{{1, 0}}))

	n, _ := s.Count(ctx)
	assert.Equal(t, 2, n)
	hits, _ := s.Search(ctx, []float32{1, 0}, 5)
	assert.Equal(t, []string{"a", "b"}, ids(hits))
	assert.Equal(t, "new", hits[0].Record.Text)
}

func TestUpsertValidation(t *testing.T) {
	ctx := context.Background()
	s := NewStorage("")
	assert.Error(t, s.Init(ctx, 0))
	require.NoError(t, s.Init(ctx, 2))
	assert.Error(t, s.Upsert(ctx, []vectorstore.Record{rec("a")}, nil))
	assert.Error(t, s.Upsert(ctx, []vectorstore.Record{rec("a")}, [][]float32{{1, 0, 0}}))

	_, err := s.Search(ctx, []float32{1}, 1)
	assert.NoError(t, err, "empty store accepts any query")
}

func TestFlushAndOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index", "catalog.parquet")

	s := NewStorage(path)
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx,
		[]vectorstore.Record{rec("a"), rec("b")},
		[][]float32{{1, 0}, {0, 1}},
	))
	require.NoError(t, s.Flush(ctx))

	loaded, err := Open(path)
	require.NoError(t, err)
	n, _ := loaded.Count(ctx)
	assert.Equal(t, 2, n)

	hits, err := loaded.Search(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, "b", hits[0].Record.ID)
	assert.Equal(t, "text b", hits[0].Record.Text)
	assert.Equal(t, map[string]string{"path": "b.mp3"}, hits[0].Record.Metadata)
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.parquet"))
	assert.ErrorIs(t, err, vectorstore.ErrIndexNotFound)
}
