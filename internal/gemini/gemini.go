package gemini

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/daeunpk/wink/internal/providers"
)

// Gemini is a provider for Google Gemini
type Gemini struct {
	apiKeyEnv string
	client    func() (*genai.Client, error)
	created   atomic.Bool
}

// New returns a new Gemini provider. The client is created once, on first use.
func New(apiKeyEnv string) *Gemini {
	if apiKeyEnv == "" {
		apiKeyEnv = "GEMINI_API_KEY"
	}
	g := &Gemini{apiKeyEnv: apiKeyEnv}
	g.client = sync.OnceValues(func() (*genai.Client, error) {
		apiKey := os.Getenv(g.apiKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("%s environment variable not set", g.apiKeyEnv)
		}
		client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create new gemini client: %w", err)
		}
		g.created.Store(true)
		return client, nil
	})
	return g
}

func (g *Gemini) Name() string { return "gemini" }

// Generate runs a single-turn GenerateContent call
func (g *Gemini) Generate(ctx context.Context, config providers.Config) (string, error) {
	client, err := g.client()
	if err != nil {
		return "", err
	}

	model := client.GenerativeModel(config.Model)
	model.SetTemperature(float32(config.Temperature))
	if config.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(config.System)}}
	}
	if config.JSON {
		model.ResponseMIMEType = "application/json"
	}

	parts := []genai.Part{genai.Text(config.Prompt)}
	for _, img := range config.Images {
		parts = append(parts, genai.ImageData(imageFormat(img.MIMEType), img.Data))
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned from Gemini")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("empty content returned from Gemini")
	}

	var out strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			out.WriteString(string(txt))
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("unexpected response format from Gemini")
	}
	return out.String(), nil
}

// Close releases the client if one was created.
func (g *Gemini) Close() error {
	if !g.created.Load() {
		return nil
	}
	client, err := g.client()
	if err != nil {
		return nil
	}
	return client.Close()
}

// imageFormat turns "image/png" into the "png" genai.ImageData expects.
func imageFormat(mimeType string) string {
	if _, sub, ok := strings.Cut(mimeType, "/"); ok && sub != "" {
		return sub
	}
	return "jpeg"
}
