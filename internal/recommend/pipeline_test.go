package recommend

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/yojana-matcher/internal/catalog"
	"github.com/spigell/yojana-matcher/internal/eligibility"
	"github.com/spigell/yojana-matcher/internal/gender"
	"github.com/spigell/yojana-matcher/internal/metrics"
	"github.com/spigell/yojana-matcher/internal/profile"
	"github.com/spigell/yojana-matcher/internal/resources"
	"github.com/spigell/yojana-matcher/internal/scoring"
	"github.com/spigell/yojana-matcher/internal/search"
)

type stubSearcher struct {
	hits  []search.Hit
	err   error
	calls int
	topK  int
}

func (s *stubSearcher) Search(_ context.Context, _ profile.Profile, _ string, topK int) ([]search.Hit, error) {
	s.calls++
	s.topK = topK
	if s.err != nil {
		return nil, s.err
	}
	return s.hits, nil
}

type failingStore struct {
	catalog.Store
	err error
}

func (f failingStore) Get(context.Context, string) (catalog.Scheme, error) {
	return catalog.Scheme{}, f.err
}

var fixedNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func testSchemes() []catalog.Scheme {
	return []catalog.Scheme{
		{
			ID:             "a",
			Name:           "Youth Skill Grant",
			DescriptionRaw: strings.Repeat("x", 250),
			SourceURL:      "https://example.org/a",
			LastUpdated:    "2026-10-01",
			EligibilityStructured: map[string]any{
				"required": []any{map[string]any{"field": "age", "operator": ">=", "value": 18}},
			},
		},
		{
			ID:             "b",
			Name:           "Mahila Udyam Yojana",
			DescriptionRaw: "Support for women entrepreneurs",
			EligibilityStructured: map[string]any{
				"required": []any{map[string]any{"field": "gender", "operator": "=", "value": "female"}},
			},
		},
		{
			ID:                    "d",
			Name:                  "Legacy Scheme",
			LastUpdated:           "2000-01-01",
			EligibilityStructured: "{not json",
		},
	}
}

func testSet(searcher search.Searcher) *resources.Set {
	store := catalog.NewMemoryStore(testSchemes())
	return &resources.Set{
		Store:    store,
		Searcher: searcher,
		Engine:   eligibility.NewEngine(nil, nil),
		Count:    3,
	}
}

func testProfile() profile.Profile {
	age := 30
	return profile.Profile{Age: &age, Gender: "male", State: "Punjab"}
}

func TestRank(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	searcher := &stubSearcher{hits: []search.Hit{
		{ID: "d", Similarity: 0.2},
		{ID: "b", Similarity: 0.9},
		{ID: "c", Similarity: 0.8},
		{ID: "a", Similarity: 0.5},
	}}

	p := NewPipeline(
		WithLogger(zap.New(core)),
		WithMetrics(metrics.NewMetrics()),
		WithClock(func() time.Time { return fixedNow }),
	)

	resp, err := p.Rank(context.Background(), testSet(searcher), Request{Query: "grant", Profile: testProfile(), TopK: 5})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, 3, searcher.topK, "pool is capped by the catalog size")

	require.Len(t, resp.Candidates, 3)
	assert.Equal(t, []string{"a", "b", "d"}, ids(resp.Candidates))

	a := resp.Candidates[0]
	assert.Equal(t, 1.0, a.R)
	assert.Equal(t, 0.0, a.F)
	assert.InDelta(t, 0.8, a.FinalScore, 1e-9)
	assert.Equal(t, 80.0, a.PercentMatch)
	assert.Equal(t, strings.Repeat("x", DescriptionLimit)+"...", a.Description)
	assert.Equal(t, "https://example.org/a", a.SourceURL)
	assert.False(t, a.Gender.Restricted())

	b := resp.Candidates[1]
	assert.Equal(t, 0.0, b.R)
	assert.Equal(t, 0.05, b.F)
	assert.InDelta(t, 0.355, b.FinalScore, 1e-9)
	assert.Equal(t, gender.Female, b.Gender.Gender)
	assert.Equal(t, gender.ProvenanceRequiredClause, b.Gender.Provenance)
	require.Len(t, b.RuleBreakdown.UnmetClauses, 1)

	d := resp.Candidates[2]
	assert.Equal(t, 0.0, d.R, "unparsable eligibility evaluates as the empty spec")
	assert.Equal(t, 0.1, d.F)
	assert.InDelta(t, 0.07, d.FinalScore, 1e-9)

	assert.Equal(t, "male", resp.Bucket)
	assert.Equal(t, []string{"a", "d"}, ids(resp.Selected))
	assert.Equal(t, []string{"a", "b", "d"}, ids(resp.Buckets.Female))
	assert.Equal(t, []string{"a", "d"}, ids(resp.Buckets.Neutral))

	assert.Equal(t, 1, observed.FilterMessage("semantic candidate not found in store").Len())
	assert.Equal(t, 1, observed.FilterMessage("failed to parse eligibility").Len())
}

func TestRankTruncatesAfterSorting(t *testing.T) {
	searcher := &stubSearcher{hits: []search.Hit{
		{ID: "d", Similarity: 0.2},
		{ID: "b", Similarity: 0.9},
		{ID: "a", Similarity: 0.5},
	}}
	p := NewPipeline(WithClock(func() time.Time { return fixedNow }))

	resp, err := p.Rank(context.Background(), testSet(searcher), Request{Profile: testProfile(), TopK: 1, GenderBucket: "female"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, ids(resp.Candidates))
	assert.Equal(t, "female", resp.Bucket, "explicit bucket wins over profile gender")
	assert.Equal(t, []string{"a"}, ids(resp.Selected))
}

func TestRankRejectsInvalidWeightsBeforeSearch(t *testing.T) {
	searcher := &stubSearcher{}
	p := NewPipeline()

	_, err := p.Rank(context.Background(), testSet(searcher), Request{Weights: &scoring.Weights{Rule: 1.5, Semantic: 0.2}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidRequest))
	assert.True(t, errors.Is(err, scoring.ErrInvalidWeight))
	assert.Zero(t, searcher.calls)

	_, err = p.Rank(context.Background(), testSet(searcher), Request{TopK: -1})
	assert.True(t, errors.Is(err, ErrInvalidRequest))
	assert.Zero(t, searcher.calls)
}

func TestRankNormalizesWeights(t *testing.T) {
	searcher := &stubSearcher{hits: []search.Hit{{ID: "a", Similarity: 0.5}}}
	p := NewPipeline(WithClock(func() time.Time { return fixedNow }))

	resp, err := p.Rank(context.Background(), testSet(searcher), Request{
		Profile: testProfile(),
		Weights: &scoring.Weights{Rule: 0.3, Semantic: 0.3, Freshness: 0.1},
	})
	require.NoError(t, err)

	assert.InDelta(t, 0.5, resp.Weights.Rule, 1e-9)
	assert.InDelta(t, 0.5, resp.Weights.Semantic, 1e-9)
	require.Len(t, resp.Candidates, 1)
	assert.InDelta(t, 0.75, resp.Candidates[0].FinalScore, 1e-9)
}

func TestRankPropagatesFailures(t *testing.T) {
	p := NewPipeline()

	searchErr := errors.New("index unavailable")
	_, err := p.Rank(context.Background(), testSet(&stubSearcher{err: searchErr}), Request{})
	assert.True(t, errors.Is(err, searchErr))

	storeErr := errors.New("connection reset")
	set := testSet(&stubSearcher{hits: []search.Hit{{ID: "a", Similarity: 1}}})
	set.Store = failingStore{Store: set.Store, err: storeErr}
	_, err = p.Rank(context.Background(), set, Request{})
	assert.True(t, errors.Is(err, storeErr))

	_, err = p.Rank(context.Background(), nil, Request{})
	assert.Error(t, err)
}

func TestRankWithNoHits(t *testing.T) {
	p := NewPipeline()

	resp, err := p.Rank(context.Background(), testSet(&stubSearcher{}), Request{Profile: testProfile()})
	require.NoError(t, err)
	assert.Empty(t, resp.Candidates)
	assert.Empty(t, resp.Selected)
	assert.Equal(t, "male", resp.Bucket)
}

func TestPoolSize(t *testing.T) {
	tests := []struct {
		name    string
		topK    int
		catalog int
		expect  int
	}{
		{name: "default pool", topK: 10, catalog: 1000, expect: SemanticPool},
		{name: "small catalog", topK: 10, catalog: 7, expect: 7},
		{name: "large top k", topK: 120, catalog: 1000, expect: 120},
		{name: "unknown catalog size", topK: 5, catalog: 0, expect: SemanticPool},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, poolSize(tt.topK, tt.catalog))
		})
	}
}

func ids(candidates []Candidate) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.SchemeID)
	}
	return out
}
