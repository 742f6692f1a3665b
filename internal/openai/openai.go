package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/daeunpk/wink/internal/providers"
)

// DefaultURL is the OpenAI API root. Any chat-completions compatible server works.
const DefaultURL = "https://api.openai.com/v1"

// OpenAI is a provider for OpenAI
type OpenAI struct {
	baseURL   string
	apiKeyEnv string
	client    *http.Client
}

// New returns a new OpenAI provider. The API key is read from apiKeyEnv on
// every call so a .env loaded after construction is honoured.
func New(baseURL, apiKeyEnv string, client *http.Client) *OpenAI {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if apiKeyEnv == "" {
		apiKeyEnv = "OPENAI_API_KEY"
	}
	if client == nil {
		client = &http.Client{}
	}
	return &OpenAI{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKeyEnv: apiKeyEnv,
		client:    client,
	}
}

func (o *OpenAI) Name() string { return "openai" }

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// Generate sends a chat completion and returns the first choice's content
func (o *OpenAI) Generate(ctx context.Context, config providers.Config) (string, error) {
	apiKey := os.Getenv(o.apiKeyEnv)
	if apiKey == "" {
		return "", fmt.Errorf("%s environment variable not set", o.apiKeyEnv)
	}

	var messages []message
	if config.System != "" {
		messages = append(messages, message{Role: "system", Content: config.System})
	}
	if len(config.Images) == 0 {
		messages = append(messages, message{Role: "user", Content: config.Prompt})
	} else {
		parts := []contentPart{{Type: "text", Text: config.Prompt}}
		for _, img := range config.Images {
			mimeType := img.MIMEType
			if mimeType == "" {
				mimeType = "image/jpeg"
			}
			parts = append(parts, contentPart{
				Type: "image_url",
				ImageURL: &imageURL{
					URL: "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(img.Data),
				},
			})
		}
		messages = append(messages, message{Role: "user", Content: parts})
	}

	body := map[string]any{
		"model":       config.Model,
		"messages":    messages,
		"temperature": config.Temperature,
	}
	if config.JSON {
		body["response_format"] = map[string]string{"type": "json_object"}
	}

	requestBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/chat/completions", bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("received non-200 status code: %d - %s", resp.StatusCode, string(body))
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from OpenAI")
	}

	return response.Choices[0].Message.Content, nil
}
