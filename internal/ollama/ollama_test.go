package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daeunpk/wink/internal/providers"
)

func TestGenerate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"llava","response":"A quiet rainy street.","done":true}`))
	}))
	defer srv.Close()

	o := New(srv.URL, srv.Client())
	text, err := o.Generate(context.Background(), providers.Config{
		Model:       "llava",
		Temperature: 0.2,
		System:      "Describe the mood.",
		Prompt:      "What is the atmosphere?",
		Images:      []providers.Image{{Data: []byte("img"), MIMEType: "image/png"}},
		JSON:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, "A quiet rainy street.", text)

	assert.Equal(t, "llava", got["model"])
	assert.Equal(t, "Describe the mood.", got["system"])
	assert.Equal(t, false, got["stream"])
	assert.Equal(t, "json", got["format"])
	assert.Equal(t, []any{base64.StdEncoding.EncodeToString([]byte("img"))}, got["images"])
	assert.Equal(t, 0.2, got["options"].(map[string]any)["temperature"])
}

func TestGenerateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"model not loaded"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, srv.Client()).Generate(context.Background(), providers.Config{Model: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}
