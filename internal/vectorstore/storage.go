// Package vectorstore defines storage for catalog vectors.
package vectorstore

import (
	"context"
	"errors"
)

// ErrIndexNotFound is returned when a persisted index does not exist yet.
var ErrIndexNotFound = errors.New("vector index not found")

// Record is what is stored alongside a vector.
type Record struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// Hit is a search result.
type Hit struct {
	Record Record
	Score  float64
}

// Storage persists vectors and supports similarity search. Vectors are
// expected to be L2-normalised so the inner product is cosine similarity.
type Storage interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, records []Record, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, topK int) ([]Hit, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// Flusher is implemented by stores that buffer writes until flushed.
type Flusher interface {
	Flush(ctx context.Context) error
}
