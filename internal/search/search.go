// Package search finds the schemes semantically closest to a requester.
package search

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/yojana-matcher/internal/profile"
)

// Hit is one search result.
type Hit struct {
	ID         string  `json:"scheme_id"`
	Similarity float64 `json:"similarity"`
}

// Searcher returns candidates ordered by similarity, most similar first.
type Searcher interface {
	Search(ctx context.Context, p profile.Profile, freeText string, topK int) ([]Hit, error)
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index answers nearest-neighbour queries over scheme vectors.
type Index interface {
	Nearest(ctx context.Context, vector []float32, k int) ([]Hit, error)
	Len() int
}

// Semantic embeds the requester document and queries an index.
type Semantic struct {
	embedder Embedder
	index    Index
	logger   *zap.Logger
}

func NewSemantic(embedder Embedder, index Index, logger *zap.Logger) (*Semantic, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if index == nil {
		return nil, errors.New("index is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Semantic{embedder: embedder, index: index, logger: logger}, nil
}

func (s *Semantic) Search(ctx context.Context, p profile.Profile, freeText string, topK int) ([]Hit, error) {
	if topK <= 0 {
		return []Hit{}, nil
	}

	doc := UserDocument(p, freeText)
	vector, err := s.embedder.Embed(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("embed user document: %w", err)
	}

	hits, err := s.index.Nearest(ctx, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	s.logger.Debug("semantic search finished",
		zap.Int("requested", topK),
		zap.Int("hits", len(hits)),
		zap.Int("index_size", s.index.Len()),
	)
	return hits, nil
}

// UserDocument renders the profile and free text the same way for every
// request so that identical inputs embed identically.
func UserDocument(p profile.Profile, freeText string) string {
	age := ""
	if p.Age != nil {
		age = strconv.Itoa(*p.Age)
	}
	income := ""
	if v, ok := p.Attributes().Lookup("income_annual").(float64); ok {
		income = strconv.FormatFloat(v, 'f', -1, 64)
	}
	farmer := ""
	if p.Farmer != nil {
		farmer = strconv.FormatBool(*p.Farmer)
	}

	lines := []string{
		"User profile:",
		"State: " + p.State,
		"District: " + p.District,
		"Age: " + age,
		"Category: " + p.Category,
		"Income (annual): " + income,
		"Occupation: " + p.Occupation,
		"Farmer: " + farmer,
		"Business type: " + p.BusinessType,
		"",
		"User need: " + strings.TrimSpace(freeText),
	}
	return strings.Join(lines, "\n")
}
