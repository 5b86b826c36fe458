package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/yojana-matcher/internal/catalog"
	"github.com/spigell/yojana-matcher/internal/eligibility"
	"github.com/spigell/yojana-matcher/internal/metrics"
	"github.com/spigell/yojana-matcher/internal/profile"
	"github.com/spigell/yojana-matcher/internal/recommend"
	"github.com/spigell/yojana-matcher/internal/resources"
	"github.com/spigell/yojana-matcher/internal/search"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubSearcher struct {
	hits []search.Hit
	err  error
}

func (s stubSearcher) Search(context.Context, profile.Profile, string, int) ([]search.Hit, error) {
	return s.hits, s.err
}

func newTestServer(t *testing.T, build resources.BuildFunc) (*Server, *resources.Loader) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics()
	require.NoError(t, m.Register(reg))

	loader := resources.NewLoader(build, nil)
	return New(loader, recommend.NewPipeline(recommend.WithMetrics(m)), m, reg, nil), loader
}

func readySet(searcher search.Searcher) resources.BuildFunc {
	return func(context.Context) (*resources.Set, error) {
		store := catalog.NewMemoryStore([]catalog.Scheme{
			{ID: "farm", Name: "Kisan Support", DescriptionRaw: "Support for farmers", EligibilityStructured: map[string]any{
				"required": []any{map[string]any{"field": "farmer", "operator": "exists"}},
			}},
			{ID: "women", Name: "Mahila Shakti"},
		})
		return &resources.Set{Store: store, Searcher: searcher, Engine: eligibility.NewEngine(nil, nil), Count: 2}, nil
	}
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, readySet(stubSearcher{}))

	rec := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatus(t *testing.T) {
	s, loader := newTestServer(t, readySet(stubSearcher{}))

	rec := do(t, s, http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ready":false,"schemes_rows":null}`, rec.Body.String())

	_, err := loader.Get(context.Background())
	require.NoError(t, err)

	rec = do(t, s, http.MethodGet, "/status", "")
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["ready"])
	assert.Equal(t, float64(2), body["schemes_rows"])
}

func TestRecommend(t *testing.T) {
	searcher := stubSearcher{hits: []search.Hit{{ID: "women", Similarity: 0.9}, {ID: "farm", Similarity: 0.6}}}
	s, _ := newTestServer(t, readySet(searcher))

	rec := do(t, s, http.MethodPost, "/recommend", `{
		"query": "support for my farm",
		"profile": {"sex": "M", "farmer": "yes", "state": "pb"},
		"top_k": 5
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp RecommendResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, "male", resp.Bucket)
	assert.Equal(t, "male", resp.Profile.Gender)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "farm", resp.Results[0].SchemeID)
	assert.Equal(t, 1.0, resp.Results[0].R)
	assert.Len(t, resp.Buckets["female"], 2)
	assert.Len(t, resp.Buckets["neutral"], 1)
}

func TestRecommendErrors(t *testing.T) {
	t.Run("invalid body", func(t *testing.T) {
		s, _ := newTestServer(t, readySet(stubSearcher{}))
		rec := do(t, s, http.MethodPost, "/recommend", `{"query":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid_request")
	})

	t.Run("invalid weights", func(t *testing.T) {
		s, _ := newTestServer(t, readySet(stubSearcher{}))
		rec := do(t, s, http.MethodPost, "/recommend", `{"query":"x","weights":{"rule":-1,"semantic":0.5}}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid_request")
	})

	t.Run("load failure", func(t *testing.T) {
		s, _ := newTestServer(t, func(context.Context) (*resources.Set, error) {
			return nil, errors.New("dataset missing")
		})
		rec := do(t, s, http.MethodPost, "/recommend", `{"query":"x"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "load_failed")
		assert.Contains(t, rec.Body.String(), "dataset missing")
	})

	t.Run("ranking failure", func(t *testing.T) {
		s, _ := newTestServer(t, readySet(stubSearcher{err: errors.New("embedding quota")}))
		rec := do(t, s, http.MethodPost, "/recommend", `{"query":"x"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "ranking_failed")
	})
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, readySet(stubSearcher{}))

	do(t, s, http.MethodPost, "/recommend", `{"query":"x"}`)

	rec := do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), metrics.MetricRankRequestsTotal+`{outcome="success"} 1`)
}
