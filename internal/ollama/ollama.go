package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/ollama/ollama/api"

	"github.com/daeunpk/wink/internal/providers"
)

// DefaultURL is used when no base URL is configured.
const DefaultURL = "http://localhost:11434"

// Ollama is a provider for Ollama
type Ollama struct {
	client func() (*api.Client, error)
}

// New returns a new Ollama provider. The API client is created on first use.
func New(baseURL string, httpClient *http.Client) *Ollama {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Ollama{
		client: sync.OnceValues(func() (*api.Client, error) {
			u, err := url.Parse(baseURL)
			if err != nil {
				return nil, fmt.Errorf("invalid ollama url %q: %w", baseURL, err)
			}
			return api.NewClient(u, httpClient), nil
		}),
	}
}

func (o *Ollama) Name() string { return "ollama" }

// Generate runs a non-streaming completion against /api/generate
func (o *Ollama) Generate(ctx context.Context, config providers.Config) (string, error) {
	client, err := o.client()
	if err != nil {
		return "", err
	}

	stream := false
	req := &api.GenerateRequest{
		Model:  config.Model,
		Prompt: config.Prompt,
		System: config.System,
		Stream: &stream,
		Options: map[string]any{
			"temperature": config.Temperature,
		},
	}
	if config.JSON {
		req.Format = json.RawMessage(`"json"`)
	}
	for _, img := range config.Images {
		req.Images = append(req.Images, api.ImageData(img.Data))
	}

	var out strings.Builder
	err = client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		out.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate: %w", err)
	}
	return out.String(), nil
}
