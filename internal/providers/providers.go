package providers

import (
	"context"
)

// Image is an inline image attached to a request.
type Image struct {
	Data     []byte
	MIMEType string
}

// Config represents a single generation request for an LLM provider
type Config struct {
	Model       string
	Temperature float64
	System      string
	Prompt      string
	Images      []Image
	// JSON asks the provider to constrain output to a JSON document.
	JSON bool
}

// Provider defines the interface for an LLM provider
type Provider interface {
	Name() string
	Generate(ctx context.Context, config Config) (string, error)
}
