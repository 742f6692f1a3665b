package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func norm(v []float32) float64 {
	return math.Sqrt(Dot(v, v))
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := Normalize([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestHashingDeterministicAndUnitLength(t *testing.T) {
	h := NewHashing(64)
	ctx := context.Background()

	a, err := h.Embed(ctx, "calm rainy cozy")
	require.NoError(t, err)
	b, err := h.Embed(ctx, "calm rainy cozy")
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, norm(a), 1e-5)
}

func TestHashingSimilarity(t *testing.T) {
	h := NewHashing(0)
	ctx := context.Background()

	query, _ := h.Embed(ctx, "calm rainy")
	near, _ := h.Embed(ctx, "Genre: jazz. Mood: calm, rainy")
	far, _ := h.Embed(ctx, "Genre: metal. Mood: aggressive, loud")

	assert.Greater(t, Dot(query, near), Dot(query, far))
}

func TestHashingStopwordsOnly(t *testing.T) {
	v, err := NewHashing(16).Embed(context.Background(), "the and of")
	require.NoError(t, err)
	assert.Zero(t, norm(v))
}

type countingEmbedder struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (c *countingEmbedder) Name() string { return "counting" }

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	time.Sleep(c.delay)
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func TestCachedSharesCalls(t *testing.T) {
	inner := &countingEmbedder{delay: 20 * time.Millisecond}
	c := NewCached(inner, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Embed(context.Background(), "calm")
			assert.NoError(t, err)
			assert.Equal(t, []float32{4, 1}, v)
		}()
	}
	wg.Wait()

	v, err := c.Embed(context.Background(), "calm")
	require.NoError(t, err)
	v[0] = 99
	again, _ := c.Embed(context.Background(), "calm")
	assert.Equal(t, float32(4), again[0])
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestCachedDoesNotStoreErrors(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("down")}
	c := NewCached(inner, time.Minute)

	_, err := c.Embed(context.Background(), "calm")
	require.Error(t, err)
	_, err = c.Embed(context.Background(), "calm")
	require.Error(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

type gatedEmbedder struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (g *gatedEmbedder) Name() string { return "gated" }

func (g *gatedEmbedder) Embed(ctx context.Context, _ string) ([]float32, error) {
	g.calls.Add(1)
	close(g.started)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-g.release:
		return []float32{1, 0}, nil
	}
}

func TestCachedCancelledCallerDoesNotFailOthers(t *testing.T) {
	inner := &gatedEmbedder{started: make(chan struct{}), release: make(chan struct{})}
	c := NewCached(inner, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := c.Embed(ctx, "calm")
		first <- err
	}()
	<-inner.started

	second := make(chan []float32, 1)
	go func() {
		v, err := c.Embed(context.Background(), "calm")
		assert.NoError(t, err)
		second <- v
	}()

	cancel()
	select {
	case err := <-first:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(inner.release)
	select {
	case v := <-second:
		assert.Equal(t, []float32{1, 0}, v)
	case <-time.After(time.Second):
		t.Fatal("second caller never returned")
	}
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestOllamaEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "all-minilm", req["model"])
		assert.Equal(t, "calm rainy", req["input"])
		_, _ = w.Write([]byte(`{"model":"all-minilm","embeddings":[[3,4]]}`))
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "all-minilm", srv.Client())
	v, err := o.Embed(context.Background(), "calm rainy")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
}

func TestOpenAIRetriesThenSucceeds(t *testing.T) {
	t.Setenv("WINK_TEST_EMBED_KEY", "sk-test")

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0,2]}]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, APIKeyEnv: "WINK_TEST_EMBED_KEY"})
	require.NoError(t, err)
	v, err := c.Embed(context.Background(), "calm")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAIClientErrorIsNotRetried(t *testing.T) {
	t.Setenv("WINK_TEST_EMBED_KEY", "sk-test")

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, APIKeyEnv: "WINK_TEST_EMBED_KEY"})
	require.NoError(t, err)
	_, err = c.Embed(context.Background(), "calm")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad model")
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIMissingKey(t *testing.T) {
	t.Setenv("WINK_TEST_EMBED_KEY", "")
	_, err := NewOpenAI(OpenAIConfig{APIKeyEnv: "WINK_TEST_EMBED_KEY"})
	assert.Error(t, err)
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 200*time.Millisecond, retryDelay(0))
	assert.Equal(t, 800*time.Millisecond, retryDelay(2))
	assert.Equal(t, 5*time.Second, retryDelay(10))
}
