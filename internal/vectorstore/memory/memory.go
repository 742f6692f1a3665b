// Package memory is an in-process vector store using brute-force inner
// product search, optionally persisted to a Parquet file.
package memory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/parquet-go/parquet-go"

	"github.com/daeunpk/wink/internal/embedding"
	"github.com/daeunpk/wink/internal/vectorstore"
)

// Storage keeps records in insertion order. Equal scores rank in that order.
type Storage struct {
	mu        sync.RWMutex
	path      string
	dimension int
	records   []vectorstore.Record
	vectors   [][]float32
	index     map[string]int
}

// NewStorage returns an empty store. If path is non-empty Flush writes there.
func NewStorage(path string) *Storage {
	return &Storage{path: path, index: make(map[string]int)}
}

// Open loads a store previously written by Flush.
func Open(path string) (*Storage, error) {
	rows, err := parquet.ReadFile[row](path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", vectorstore.ErrIndexNotFound, path)
		}
		return nil, fmt.Errorf("failed to read index %s: %w", path, err)
	}

	s := NewStorage(path)
	for _, r := range rows {
		var meta map[string]string
		if r.Metadata != "" {
			if err := json.Unmarshal([]byte(r.Metadata), &meta); err != nil {
				return nil, fmt.Errorf("index %s: bad metadata for %s: %w", path, r.ID, err)
			}
		}
		if s.dimension == 0 {
			s.dimension = len(r.Vector)
		}
		if len(r.Vector) != s.dimension {
			return nil, fmt.Errorf("index %s: vector dimension mismatch for %s", path, r.ID)
		}
		s.put(vectorstore.Record{ID: r.ID, Text: r.Text, Metadata: meta}, r.Vector)
	}
	return s, nil
}

type row struct {
	ID       string    `parquet:"id"`
	Text     string    `parquet:"text"`
	Metadata string    `parquet:"metadata"`
	Vector   []float32 `parquet:"vector"`
}

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != dimension {
		s.reset()
	}
	s.dimension = dimension
	return nil
}

// Upsert adds records. A record whose ID is already stored replaces the old
// entry in place and keeps its position.
func (s *Storage) Upsert(_ context.Context, records []vectorstore.Record, vectors [][]float32) error {
	if len(records) != len(vectors) {
		return errors.New("records and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		if len(v) != s.dimension {
			return fmt.Errorf("vector dimension mismatch: got %d, want %d", len(v), s.dimension)
		}
	}
	for i := range records {
		s.put(records[i], vectors[i])
	}
	return nil
}

func (s *Storage) put(rec vectorstore.Record, vec []float32) {
	if i, ok := s.index[rec.ID]; ok {
		s.records[i] = rec
		s.vectors[i] = vec
		return
	}
	s.index[rec.ID] = len(s.records)
	s.records = append(s.records, rec)
	s.vectors = append(s.vectors, vec)
}

// Search scores every vector and returns the topK best. Ties keep insertion order.
func (s *Storage) Search(_ context.Context, vector []float32, topK int) ([]vectorstore.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		topK = 5
	}
	if len(s.vectors) > 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("query dimension mismatch: got %d, want %d", len(vector), s.dimension)
	}

	scores := make([]float64, len(s.vectors))
	order := make([]int, len(s.vectors))
	for i := range s.vectors {
		scores[i] = embedding.Dot(s.vectors[i], vector)
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	topK = min(topK, len(order))
	hits := make([]vectorstore.Hit, 0, topK)
	for _, j := range order[:topK] {
		hits = append(hits, vectorstore.Hit{Record: s.records[j], Score: scores[j]})
	}
	return hits, nil
}

func (s *Storage) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *Storage) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

func (s *Storage) reset() {
	s.records = nil
	s.vectors = nil
	s.index = make(map[string]int)
}

// Flush writes the store to its path. It is a no-op for an unbacked store.
func (s *Storage) Flush(context.Context) error {
	if s.path == "" {
		return nil
	}
	s.mu.RLock()
	rows := make([]row, len(s.records))
	for i, rec := range s.records {
		meta, err := json.Marshal(rec.Metadata)
		if err != nil {
			s.mu.RUnlock()
			return fmt.Errorf("failed to encode metadata for %s: %w", rec.ID, err)
		}
		rows[i] = row{ID: rec.ID, Text: rec.Text, Metadata: string(meta), Vector: s.vectors[i]}
	}
	s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := parquet.WriteFile(tmp, rows); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write index: %w", err)
	}
	return os.Rename(tmp, s.path)
}
