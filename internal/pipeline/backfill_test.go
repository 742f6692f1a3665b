package pipeline

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daeunpk/wink/internal/models"
	"github.com/daeunpk/wink/internal/session"
)

type fakeEmbedder struct {
	texts []string
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func TestBackfillEmbeddingsIsIdempotent(t *testing.T) {
	gw, store, ret, logs := newHarness(t)
	emb := &fakeEmbedder{}
	o := newOrchestrator(gw, store, ret, logs, WithEmbedder(emb))

	for _, text := range []string{"비가 와", "산책 중"} {
		_, err := o.Run(context.Background(), Input{KoreanText: text})
		require.NoError(t, err)
	}

	added, err := o.BackfillEmbeddings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, []string{"melancholy rainy calm gentle", "melancholy rainy calm gentle"}, emb.texts)

	added, err = o.BackfillEmbeddings(context.Background())
	require.NoError(t, err)
	assert.Zero(t, added)
	assert.Len(t, emb.texts, 2)

	_, err = o.Run(context.Background(), Input{KoreanText: "밤이야"})
	require.NoError(t, err)
	added, err = o.BackfillEmbeddings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	sess, err := store.Load(session.DefaultName)
	require.NoError(t, err)
	assert.Len(t, sess.KeywordEmbeddings, 3)
	assert.Equal(t, []float32{28, 1}, sess.KeywordEmbeddings[0])
}

func TestBackfillEmbeddingsFailureWritesNothing(t *testing.T) {
	gw, store, ret, logs := newHarness(t)
	o := newOrchestrator(gw, store, ret, logs, WithEmbedder(&fakeEmbedder{err: errors.New("down")}))
	_, err := o.Run(context.Background(), Input{KoreanText: "비가 와"})
	require.NoError(t, err)

	_, err = o.BackfillEmbeddings(context.Background())
	require.Error(t, err)

	sess, err := store.Load(session.DefaultName)
	require.NoError(t, err)
	assert.Empty(t, sess.KeywordEmbeddings)
}

func TestBackfillWithoutEmbedder(t *testing.T) {
	gw, store, ret, _ := newHarness(t)
	o := newOrchestrator(gw, store, ret, &bytes.Buffer{})
	_, err := o.BackfillEmbeddings(context.Background())
	assert.Error(t, err)
}

func TestBackfillFillsEmptyEntriesAndSkipsKeywordlessTurns(t *testing.T) {
	gw, store, ret, logs := newHarness(t)
	emb := &fakeEmbedder{}
	o := newOrchestrator(gw, store, ret, logs, WithEmbedder(emb))

	_, err := o.Run(context.Background(), Input{KoreanText: "비가 와"})
	require.NoError(t, err)
	gw.generate[mergeSystem] = reply{err: errors.New("model down")}
	_, err = o.Run(context.Background(), Input{KoreanText: "산책 중"})
	require.NoError(t, err)

	// An earlier failed run left an empty placeholder for turn 1.
	_, err = store.Update(session.DefaultName, func(sess *models.Session) error {
		sess.KeywordEmbeddings = [][]float32{{}}
		return nil
	})
	require.NoError(t, err)

	added, err := o.BackfillEmbeddings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, []string{"melancholy rainy calm gentle"}, emb.texts)

	sess, err := store.Load(session.DefaultName)
	require.NoError(t, err)
	require.Len(t, sess.KeywordEmbeddings, 2)
	assert.Equal(t, []float32{28, 1}, sess.KeywordEmbeddings[0])
	assert.Empty(t, sess.KeywordEmbeddings[1])

	added, err = o.BackfillEmbeddings(context.Background())
	require.NoError(t, err)
	assert.Zero(t, added)
	assert.Len(t, emb.texts, 1)
}
