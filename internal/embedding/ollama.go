package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/ollama/ollama/api"
)

// Ollama embeds text with a model served by Ollama's /api/embed.
type Ollama struct {
	model  string
	client func() (*api.Client, error)
}

// NewOllama returns an Ollama embedder. The client is created on first use.
func NewOllama(baseURL, model string, httpClient *http.Client) *Ollama {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Ollama{
		model: model,
		client: sync.OnceValues(func() (*api.Client, error) {
			u, err := url.Parse(baseURL)
			if err != nil {
				return nil, fmt.Errorf("invalid base URL: %w", err)
			}
			return api.NewClient(u, httpClient), nil
		}),
	}
}

func (o *Ollama) Name() string { return "ollama:" + o.model }

func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	client, err := o.client()
	if err != nil {
		return nil, err
	}
	resp, err := client.Embed(ctx, &api.EmbedRequest{Model: o.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("failed to get embeddings from ollama: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, errors.New("no embeddings returned")
	}
	return Normalize(resp.Embeddings[0]), nil
}
