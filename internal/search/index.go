package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/spigell/yojana-matcher/internal/catalog"
)

// ErrDimensionMismatch is returned when vectors of different sizes meet.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// IndexFile is the on-disk form of a vector index.
type IndexFile struct {
	Model      string      `json:"model"`
	Dimensions int         `json:"dimensions"`
	Items      []IndexItem `json:"items"`
}

type IndexItem struct {
	ID     string    `json:"id"`
	Vector []float32 `json:"vector"`
}

// MemoryIndex is an exact cosine-similarity index held in memory. Vectors are
// normalized once at construction and never mutated.
type MemoryIndex struct {
	model      string
	dimensions int
	ids        []string
	vectors    [][]float64
}

// NewMemoryIndex validates and normalizes the items. Zero vectors are dropped.
func NewMemoryIndex(f IndexFile) (*MemoryIndex, error) {
	idx := &MemoryIndex{model: f.Model, dimensions: f.Dimensions}
	for _, item := range f.Items {
		if idx.dimensions == 0 {
			idx.dimensions = len(item.Vector)
		}
		if len(item.Vector) != idx.dimensions {
			return nil, fmt.Errorf("item %s has %d dimensions, want %d: %w", item.ID, len(item.Vector), idx.dimensions, ErrDimensionMismatch)
		}
		v, ok := normalize(item.Vector)
		if !ok {
			continue
		}
		idx.ids = append(idx.ids, item.ID)
		idx.vectors = append(idx.vectors, v)
	}
	return idx, nil
}

// LoadIndex reads an index file written by WriteIndex.
func LoadIndex(path string) (*MemoryIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading index %q: %w", path, err)
	}
	var f IndexFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing index %q: %w", path, err)
	}
	return NewMemoryIndex(f)
}

// WriteIndex persists an index file as JSON.
func WriteIndex(path string, f IndexFile) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing index %q: %w", path, err)
	}
	return nil
}

func (m *MemoryIndex) Len() int {
	return len(m.ids)
}

func (m *MemoryIndex) Model() string {
	return m.model
}

// Nearest scores every vector. Results are ordered by similarity, ties by id.
func (m *MemoryIndex) Nearest(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if k <= 0 || len(m.ids) == 0 {
		return []Hit{}, nil
	}
	if len(vector) != m.dimensions {
		return nil, fmt.Errorf("query has %d dimensions, index has %d: %w", len(vector), m.dimensions, ErrDimensionMismatch)
	}
	query, ok := normalize(vector)
	if !ok {
		return nil, errors.New("query vector is zero")
	}

	hits := make([]Hit, len(m.ids))
	for i, v := range m.vectors {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		var dot float64
		for j := range v {
			dot += v[j] * query[j]
		}
		hits[i] = Hit{ID: m.ids[i], Similarity: dot}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func normalize(v []float32) ([]float64, bool) {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, false
	}
	norm = math.Sqrt(norm)
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x) / norm
	}
	return out, true
}

// Build embeds every scheme's document. Schemes whose embedding fails are
// logged and skipped.
func Build(ctx context.Context, embedder Embedder, schemes []catalog.Scheme, model string, logger *zap.Logger) (IndexFile, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	f := IndexFile{Model: model, Items: make([]IndexItem, 0, len(schemes))}
	for _, scheme := range schemes {
		if err := ctx.Err(); err != nil {
			return IndexFile{}, err
		}

		vector, err := embedder.Embed(ctx, scheme.EmbedDocument())
		if err != nil {
			logger.Warn("failed to embed scheme", zap.String("scheme_id", scheme.ID), zap.Error(err))
			continue
		}
		if f.Dimensions == 0 {
			f.Dimensions = len(vector)
		}
		if len(vector) != f.Dimensions {
			return IndexFile{}, fmt.Errorf("scheme %s: got %d dimensions, want %d: %w", scheme.ID, len(vector), f.Dimensions, ErrDimensionMismatch)
		}
		f.Items = append(f.Items, IndexItem{ID: scheme.ID, Vector: vector})
	}

	logger.Info("index built", zap.Int("schemes", len(schemes)), zap.Int("embedded", len(f.Items)), zap.Int("dimensions", f.Dimensions))
	return f, nil
}
