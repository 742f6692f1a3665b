// Package retrieval ranks catalog items against keyword queries.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/daeunpk/wink/internal/embedding"
	"github.com/daeunpk/wink/internal/models"
	"github.com/daeunpk/wink/internal/vectorstore"
)

// DefaultTopK is used when a query asks for zero or fewer results.
const DefaultTopK = 5

// ErrEmptyQuery is returned for a keyword list with no usable terms.
var ErrEmptyQuery = errors.New("empty keyword query")

// Engine embeds queries and searches a vector store.
type Engine struct {
	embedder embedding.Embedder
	store    vectorstore.Storage
	logger   *slog.Logger
}

// New returns an Engine. Documents and queries must go through the same embedder.
func New(embedder embedding.Embedder, store vectorstore.Storage, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{embedder: embedder, store: store, logger: logger}
}

// Query joins keywords into one query text and returns the topK nearest
// catalog items, best first.
func (e *Engine) Query(ctx context.Context, keywords []string, topK int) ([]models.RankedItem, error) {
	terms := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			terms = append(terms, k)
		}
	}
	if len(terms) == 0 {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	query := strings.Join(terms, " ")
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	hits, err := e.store.Search(ctx, embedding.Normalize(vec), topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	items := make([]models.RankedItem, len(hits))
	for i, h := range hits {
		items[i] = models.RankedItem{ID: h.Record.ID, Score: h.Score, Metadata: h.Record.Metadata}
	}
	e.logger.Debug("Catalog query", "query", query, "top_k", topK, "hits", len(items))
	return items, nil
}

// Index replaces the store's contents with items, embedding each item's
// EmbeddingText. Stores that buffer writes are flushed at the end.
func (e *Engine) Index(ctx context.Context, items []models.CatalogItem, batchSize int) (int, error) {
	if len(items) == 0 {
		return 0, errors.New("no catalog items to index")
	}
	if batchSize <= 0 {
		batchSize = 64
	}
	// The existing index is only dropped once the first batch has embedded.
	initialised := false
	indexed := 0
	for start := 0; start < len(items); start += batchSize {
		end := min(start+batchSize, len(items))
		records := make([]vectorstore.Record, 0, end-start)
		vectors := make([][]float32, 0, end-start)
		for _, item := range items[start:end] {
			vec, err := e.embedder.Embed(ctx, item.EmbeddingText)
			if err != nil {
				return indexed, fmt.Errorf("failed to embed %s: %w", item.ID, err)
			}
			records = append(records, vectorstore.Record{ID: item.ID, Text: item.EmbeddingText, Metadata: item.Metadata})
			vectors = append(vectors, embedding.Normalize(vec))
		}
		if !initialised {
			if err := e.store.Clear(ctx); err != nil {
				return 0, fmt.Errorf("failed to clear index: %w", err)
			}
			if err := e.store.Init(ctx, len(vectors[0])); err != nil {
				return indexed, fmt.Errorf("failed to init index: %w", err)
			}
			initialised = true
		}
		if err := e.store.Upsert(ctx, records, vectors); err != nil {
			return indexed, fmt.Errorf("failed to upsert batch: %w", err)
		}
		indexed += len(records)
		e.logger.Info("Indexed catalog batch", "indexed", indexed, "total", len(items))
	}

	if f, ok := e.store.(vectorstore.Flusher); ok {
		if err := f.Flush(ctx); err != nil {
			return indexed, fmt.Errorf("failed to flush index: %w", err)
		}
	}
	return indexed, nil
}
