// Package gateway is the single path from the pipeline to language and
// vision models. Each capability has its own timeout and circuit breaker.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sony/gobreaker/v2"

	"github.com/daeunpk/wink/internal/providers"
	"github.com/daeunpk/wink/internal/textnorm"
)

// Capability names a gateway operation.
type Capability string

const (
	Translate Capability = "translate"
	Caption   Capability = "caption"
	Generate  Capability = "generate"
)

// TransportError wraps any failure to obtain a model response: network
// errors, timeouts, provider errors and open breakers.
type TransportError struct {
	Capability Capability
	Err        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Capability, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Config selects models and limits per capability.
type Config struct {
	TranslateModel string
	CaptionModel   string
	GenerateModel  string
	Temperature    float64

	TextTimeout  time.Duration
	ImageTimeout time.Duration

	// BreakerFailures consecutive failures open a capability's breaker for
	// BreakerCooldown. Zero disables breaking.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Gateway routes requests to one provider.
type Gateway struct {
	provider providers.Provider
	cfg      Config
	logger   *slog.Logger
	breakers map[Capability]*gobreaker.CircuitBreaker[string]
}

// Option configures a Gateway.
type Option func(*Gateway)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

// New returns a Gateway backed by provider.
func New(provider providers.Provider, cfg Config, opts ...Option) *Gateway {
	if cfg.TextTimeout <= 0 {
		cfg.TextTimeout = 60 * time.Second
	}
	if cfg.ImageTimeout <= 0 {
		cfg.ImageTimeout = 180 * time.Second
	}
	g := &Gateway{
		provider: provider,
		cfg:      cfg,
		logger:   slog.Default(),
		breakers: make(map[Capability]*gobreaker.CircuitBreaker[string], 3),
	}
	for _, opt := range opts {
		opt(g)
	}
	for _, c := range []Capability{Translate, Caption, Generate} {
		g.breakers[c] = g.newBreaker(c)
	}
	return g
}

func (g *Gateway) newBreaker(c Capability) *gobreaker.CircuitBreaker[string] {
	failures := g.cfg.BreakerFailures
	return gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        string(c),
		MaxRequests: 1,
		Timeout:     g.cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return failures > 0 && counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn("Model gateway breaker changed state", "capability", name, "from", from.String(), "to", to.String())
		},
	})
}

// Translate returns a single English sentence for sourceText.
func (g *Gateway) Translate(ctx context.Context, sourceText string) (string, error) {
	raw, err := g.call(ctx, Translate, g.cfg.TextTimeout, providers.Config{
		Model:       g.cfg.TranslateModel,
		Temperature: g.cfg.Temperature,
		System:      translateSystem,
		Prompt:      fmt.Sprintf(translatePrompt, sourceText),
	})
	if err != nil {
		return "", err
	}
	return textnorm.ExtractSentence(raw), nil
}

// Caption returns one sentence describing the mood of the image at imagePath.
func (g *Gateway) Caption(ctx context.Context, imagePath string) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	mimeType := mimetype.Detect(data)
	if !strings.HasPrefix(mimeType.String(), "image/") {
		return "", fmt.Errorf("unsupported image type %s for %s", mimeType.String(), imagePath)
	}

	raw, err := g.call(ctx, Caption, g.cfg.ImageTimeout, providers.Config{
		Model:       g.cfg.CaptionModel,
		Temperature: g.cfg.Temperature,
		Prompt:      captionPrompt,
		Images:      []providers.Image{{Data: data, MIMEType: mimeType.String()}},
	})
	if err != nil {
		return "", err
	}
	return textnorm.ExtractSentence(raw), nil
}

// Generate runs a free-form instruction. With asJSON the provider is asked
// for a JSON document; the raw response is returned either way.
func (g *Gateway) Generate(ctx context.Context, system, prompt string, asJSON bool) (string, error) {
	return g.call(ctx, Generate, g.cfg.TextTimeout, providers.Config{
		Model:       g.cfg.GenerateModel,
		Temperature: g.cfg.Temperature,
		System:      system,
		Prompt:      prompt,
		JSON:        asJSON,
	})
}

func (g *Gateway) call(ctx context.Context, c Capability, timeout time.Duration, req providers.Config) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	out, err := g.breakers[c].Execute(func() (string, error) {
		return g.provider.Generate(ctx, req)
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		g.logger.Debug("Model call failed", "capability", string(c), "provider", g.provider.Name(), "model", req.Model, "duration", time.Since(start), "err", err)
		return "", &TransportError{Capability: c, Err: err}
	}
	g.logger.Debug("Model call finished", "capability", string(c), "provider", g.provider.Name(), "model", req.Model, "duration", time.Since(start))
	return out, nil
}
