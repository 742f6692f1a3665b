package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/daeunpk/wink/internal/config"
	"github.com/daeunpk/wink/internal/embedding"
	"github.com/daeunpk/wink/internal/gateway"
	"github.com/daeunpk/wink/internal/gemini"
	"github.com/daeunpk/wink/internal/ollama"
	"github.com/daeunpk/wink/internal/openai"
	"github.com/daeunpk/wink/internal/pipeline"
	"github.com/daeunpk/wink/internal/providers"
	"github.com/daeunpk/wink/internal/retrieval"
	"github.com/daeunpk/wink/internal/session"
	"github.com/daeunpk/wink/internal/vectorstore"
	"github.com/daeunpk/wink/internal/vectorstore/memory"
	"github.com/daeunpk/wink/internal/vectorstore/qdrant"
)

// app holds the components built from one configuration.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	sessions *session.Store
	embedder embedding.Embedder
	engine   *retrieval.Engine
	pipeline *pipeline.Orchestrator
	closers  []func() error
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("Close failed", "err", err)
		}
	}
}

// newApp wires the session store, gateway, retrieval engine and
// orchestrator. A missing local index only disables recommendations.
func newApp(opts *rootOptions) (*app, error) {
	cfg, logger := opts.cfg, opts.logger
	a := &app{
		cfg:      cfg,
		logger:   logger,
		sessions: session.NewStore(cfg.Session.Dir, session.WithLogger(logger)),
	}

	provider, closer, err := newProvider(cfg.Gateway)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	gw := gateway.New(provider, gateway.Config{
		TranslateModel:  cfg.Gateway.TranslateModel,
		CaptionModel:    cfg.Gateway.CaptionModel,
		GenerateModel:   cfg.Gateway.GenerateModel,
		Temperature:     cfg.Gateway.Temperature,
		TextTimeout:     cfg.Gateway.TextTimeout(),
		ImageTimeout:    cfg.Gateway.ImageTimeout(),
		BreakerFailures: cfg.Gateway.BreakerFailures,
		BreakerCooldown: cfg.Gateway.BreakerCooldown(),
	}, gateway.WithLogger(logger))

	a.embedder, err = newEmbedder(cfg.Embedding)
	if err != nil {
		return nil, err
	}

	pipelineOpts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithEmbedder(a.embedder),
	}
	store, err := openIndex(cfg.Index, false)
	switch {
	case errors.Is(err, vectorstore.ErrIndexNotFound):
		logger.Warn("No catalog index found, recommendations are disabled", "path", cfg.Index.Path, "hint", "run wink index build")
	case err != nil:
		return nil, err
	default:
		a.engine = retrieval.New(a.embedder, store, logger)
		pipelineOpts = append(pipelineOpts, pipeline.WithRetriever(a.engine))
	}

	a.pipeline = pipeline.New(gw, a.sessions, pipeline.Config{
		SessionName:  cfg.Session.Name,
		KeywordCount: cfg.Pipeline.KeywordCount,
		TopK:         cfg.Pipeline.TopK,
		Denylist:     cfg.Pipeline.Denylist,
		Topic:        cfg.Pipeline.Topic,
	}, pipelineOpts...)
	return a, nil
}

func newProvider(cfg config.GatewayConfig) (providers.Provider, func() error, error) {
	client := &http.Client{Timeout: max(cfg.TextTimeout(), cfg.ImageTimeout()) + 10*time.Second}
	switch cfg.Provider {
	case "ollama":
		return ollama.New(cfg.BaseURL, client), nil, nil
	case "openai":
		return openai.New(cfg.BaseURL, cfg.APIKeyEnv, client), nil, nil
	case "gemini":
		g := gemini.New(cfg.APIKeyEnv)
		return g, g.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

func newEmbedder(cfg config.EmbeddingConfig) (embedding.Embedder, error) {
	var e embedding.Embedder
	switch cfg.Provider {
	case "hashing":
		e = embedding.NewHashing(cfg.Dimension)
	case "ollama":
		e = embedding.NewOllama(cfg.BaseURL, cfg.Model, &http.Client{Timeout: 30 * time.Second})
	case "openai":
		oe, err := embedding.NewOpenAI(embedding.OpenAIConfig{
			BaseURL:   cfg.BaseURL,
			APIKeyEnv: cfg.APIKeyEnv,
			Model:     cfg.Model,
		})
		if err != nil {
			return nil, err
		}
		e = oe
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
	if ttl := cfg.CacheTTL(); ttl > 0 {
		e = embedding.NewCached(e, ttl)
	}
	return e, nil
}

// openIndex returns the configured vector store. With create set a missing
// local index yields an empty store for the caller to fill.
func openIndex(cfg config.IndexConfig, create bool) (vectorstore.Storage, error) {
	switch cfg.Backend {
	case "memory":
		s, err := memory.Open(cfg.Path)
		if errors.Is(err, vectorstore.ErrIndexNotFound) && create {
			return memory.NewStorage(cfg.Path), nil
		}
		if err != nil {
			return nil, err
		}
		return s, nil
	case "qdrant":
		return qdrant.NewStorage(qdrant.Config{
			URL:        cfg.QdrantURL,
			APIKey:     os.Getenv(cfg.QdrantKeyEnv),
			Collection: cfg.Collection,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported index backend: %s", cfg.Backend)
	}
}
