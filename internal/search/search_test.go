package search

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/yojana-matcher/internal/catalog"
	"github.com/spigell/yojana-matcher/internal/profile"
)

type stubEmbedder struct {
	vectors  map[string][]float32
	fallback []float32
	err      error
	calls    []string
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.calls = append(s.calls, text)
	if s.err != nil {
		return nil, s.err
	}
	for key, v := range s.vectors {
		if strings.Contains(text, key) {
			return v, nil
		}
	}
	return s.fallback, nil
}

func testIndex(t *testing.T) *MemoryIndex {
	t.Helper()
	idx, err := NewMemoryIndex(IndexFile{
		Model: "test",
		Items: []IndexItem{
			{ID: "farm", Vector: []float32{1, 0, 0}},
			{ID: "house", Vector: []float32{0, 2, 0}},
			{ID: "mixed-b", Vector: []float32{1, 1, 0}},
			{ID: "mixed-a", Vector: []float32{1, 1, 0}},
			{ID: "zero", Vector: []float32{0, 0, 0}},
		},
	})
	require.NoError(t, err)
	return idx
}

func TestMemoryIndexNearest(t *testing.T) {
	idx := testIndex(t)
	assert.Equal(t, 4, idx.Len(), "zero vectors are dropped")

	hits, err := idx.Nearest(context.Background(), []float32{2, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "farm", hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-9)
	assert.Equal(t, "mixed-a", hits[1].ID, "equal similarity is ordered by id")
	assert.Equal(t, "mixed-b", hits[2].ID)
	assert.InDelta(t, hits[1].Similarity, hits[2].Similarity, 1e-12)

	_, err = idx.Nearest(context.Background(), []float32{1, 0}, 3)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))

	none, err := idx.Nearest(context.Background(), []float32{1, 0, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestNewMemoryIndexRejectsMixedDimensions(t *testing.T) {
	_, err := NewMemoryIndex(IndexFile{Items: []IndexItem{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "b", Vector: []float32{1, 0, 0}},
	}})
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
}

func TestIndexFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, WriteIndex(path, IndexFile{
		Model:      "text-embedding-004",
		Dimensions: 2,
		Items:      []IndexItem{{ID: "a", Vector: []float32{0.5, 0.5}}},
	}))

	idx, err := LoadIndex(path)
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())
	assert.Equal(t, "text-embedding-004", idx.Model())
}

func TestSemanticSearch(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{"tractor": {0, 1, 0}}}
	s, err := NewSemantic(embedder, testIndex(t), nil)
	require.NoError(t, err)

	age := 40
	hits, err := s.Search(context.Background(), profile.Profile{State: "Punjab", Age: &age}, "need a tractor loan", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "house", hits[0].ID)

	require.Len(t, embedder.calls, 1)
	assert.Contains(t, embedder.calls[0], "State: Punjab")
	assert.Contains(t, embedder.calls[0], "Age: 40")
}

func TestSemanticSearchEmbedError(t *testing.T) {
	s, err := NewSemantic(&stubEmbedder{err: errors.New("quota exceeded")}, testIndex(t), nil)
	require.NoError(t, err)

	_, err = s.Search(context.Background(), profile.Profile{}, "anything", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestUserDocument(t *testing.T) {
	monthly := 10000.0
	farmer := true
	doc := UserDocument(profile.Profile{
		State:         "Maharashtra",
		Category:      "OBC",
		MonthlyIncome: &monthly,
		Farmer:        &farmer,
	}, "  seeds subsidy ")

	assert.Equal(t, strings.Join([]string{
		"User profile:",
		"State: Maharashtra",
		"District: ",
		"Age: ",
		"Category: OBC",
		"Income (annual): 120000",
		"Occupation: ",
		"Farmer: true",
		"Business type: ",
		"",
		"User need: seeds subsidy",
	}, "\n"), doc)
}

func TestBuild(t *testing.T) {
	core, observed := observer.New(zapcore.WarnLevel)
	embedder := &stubEmbedder{fallback: []float32{1, 2}}

	schemes := []catalog.Scheme{{ID: "a", Name: "Alpha"}, {ID: "b", Name: "Beta"}}
	f, err := Build(context.Background(), embedder, schemes, "m", zap.New(core))
	require.NoError(t, err)

	assert.Equal(t, 2, f.Dimensions)
	require.Len(t, f.Items, 2)
	assert.Equal(t, "b", f.Items[1].ID)
	assert.Zero(t, observed.Len())

	failing := &stubEmbedder{err: errors.New("boom")}
	f, err = Build(context.Background(), failing, schemes, "m", zap.New(core))
	require.NoError(t, err)
	assert.Empty(t, f.Items)
	assert.Equal(t, 2, observed.FilterMessage("failed to embed scheme").Len())
}
