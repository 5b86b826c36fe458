// Package recommend ranks catalog schemes for a requester.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/yojana-matcher/internal/catalog"
	"github.com/spigell/yojana-matcher/internal/eligibility"
	"github.com/spigell/yojana-matcher/internal/gender"
	"github.com/spigell/yojana-matcher/internal/logger"
	"github.com/spigell/yojana-matcher/internal/metrics"
	"github.com/spigell/yojana-matcher/internal/profile"
	"github.com/spigell/yojana-matcher/internal/resources"
	"github.com/spigell/yojana-matcher/internal/scoring"
	"github.com/spigell/yojana-matcher/internal/utils"
)

const (
	// DefaultTopK applies when a request does not ask for a size.
	DefaultTopK = 10
	// SemanticPool is the minimum number of semantic candidates considered.
	SemanticPool = 50
	// DescriptionLimit caps candidate descriptions in runes.
	DescriptionLimit = 200
)

// ErrInvalidRequest marks requests rejected before any lookup.
var ErrInvalidRequest = errors.New("invalid request")

// Request is one ranking call.
type Request struct {
	Query   string
	Profile profile.Profile
	TopK    int
	// Weights overrides the pipeline defaults when set.
	Weights      *scoring.Weights
	GenderBucket string
}

// Candidate is a ranked scheme. It is never mutated after Rank returns.
type Candidate struct {
	SchemeID      string             `json:"scheme_id"`
	SchemeName    string             `json:"scheme_name"`
	R             float64            `json:"R"`
	S             float64            `json:"S"`
	F             float64            `json:"F"`
	FinalScore    float64            `json:"final_score"`
	PercentMatch  float64            `json:"percent_match"`
	RuleBreakdown eligibility.Result `json:"rule_breakdown"`
	SourceURL     string             `json:"source_url"`
	Description   string             `json:"description"`
	Gender        gender.Restriction `json:"gender"`
}

// Response carries the full ranking and the requester's bucket.
type Response struct {
	RequestID  string                    `json:"request_id"`
	Weights    scoring.Weights           `json:"weights"`
	Candidates []Candidate               `json:"candidates"`
	Buckets    gender.Buckets[Candidate] `json:"buckets"`
	Bucket     string                    `json:"bucket"`
	Selected   []Candidate               `json:"results"`
}

// Pipeline runs search, rule evaluation, scoring and bucketing.
type Pipeline struct {
	weights scoring.Weights
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithWeights(w scoring.Weights) Option {
	return func(p *Pipeline) {
		p.weights = w
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock replaces the clock used for freshness.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{
		weights: scoring.DefaultWeights(),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Rank scores the semantic candidates of req against set. Weights are
// validated before any lookup.
func (p *Pipeline) Rank(ctx context.Context, set *resources.Set, req Request) (*Response, error) {
	started := time.Now()
	defer func() {
		p.metrics.ObserveDuration(time.Since(started).Seconds())
	}()

	requested := p.weights
	if req.Weights != nil {
		requested = *req.Weights
	}
	weights, err := requested.Normalize()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if req.TopK < 0 {
		return nil, fmt.Errorf("%w: top_k must not be negative", ErrInvalidRequest)
	}
	if set == nil || set.Store == nil || set.Searcher == nil || set.Engine == nil {
		return nil, errors.New("ranking resources are incomplete")
	}

	topK := req.TopK
	if topK == 0 {
		topK = DefaultTopK
	}

	requestID := uuid.NewString()
	log := logger.WithFields(p.logger, logger.RequestFields(requestID, req.Query)...)
	if weights != requested {
		log.Warn("ranking weights normalized",
			zap.Float64("rule", weights.Rule),
			zap.Float64("semantic", weights.Semantic),
			zap.Float64("freshness", weights.Freshness),
		)
	}

	hits, err := set.Searcher.Search(ctx, req.Profile, req.Query, poolSize(topK, set.Count))
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}

	attrs := req.Profile.Attributes()
	now := p.now()
	specs := make(map[string]eligibility.Spec, len(hits))
	records := make(map[string]catalog.Scheme, len(hits))
	candidates := make([]Candidate, 0, len(hits))

	for _, hit := range hits {
		scheme, err := set.Store.Get(ctx, hit.ID)
		if errors.Is(err, catalog.ErrNotFound) {
			log.Warn("semantic candidate not found in store", logger.Scheme(hit.ID))
			p.metrics.IncSkipped(metrics.SkipNotFound)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load scheme %s: %w", hit.ID, err)
		}

		spec, err := scheme.Spec()
		if err != nil {
			log.Error("failed to parse eligibility", logger.Scheme(hit.ID), zap.Error(err))
			p.metrics.IncSpecErrors()
			spec = eligibility.Spec{}
		}
		if len(spec.Warnings) > 0 {
			log.Warn("eligibility clauses decoded with faults", logger.Scheme(hit.ID), zap.Strings("faults", spec.Warnings))
		}

		result := set.Engine.Evaluate(spec, attrs)
		p.recordClauses(result)

		f := scoring.FreshnessPenalty(scheme.LastUpdated, now)
		score := scoring.Combine(result.R, hit.Similarity, f, weights)

		specs[scheme.ID] = spec
		records[scheme.ID] = scheme
		candidates = append(candidates, Candidate{
			SchemeID:      scheme.ID,
			SchemeName:    utils.FirstNonEmpty(scheme.Name, "N/A"),
			R:             round4(score.R),
			S:             round4(score.S),
			F:             round4(score.F),
			FinalScore:    round4(score.Final),
			PercentMatch:  score.PercentMatch,
			RuleBreakdown: result,
			SourceURL:     scheme.SourceURL,
			Description:   utils.Truncate(strings.TrimSpace(scheme.DescriptionRaw), DescriptionLimit),
		})
	}

	ranked := scoring.Rank(candidates, func(c Candidate) float64 { return c.FinalScore }, topK)

	mapper := set.Engine.Mapper()
	for i := range ranked {
		scheme := records[ranked[i].SchemeID]
		ranked[i].Gender = gender.Infer(gender.Scheme{
			Name:     scheme.Name,
			Required: specs[scheme.ID].Required,
			RawText:  scheme.EligibilityRaw,
		}, mapper)
	}

	buckets := gender.Partition(ranked, func(c Candidate) gender.Gender { return c.Gender.Gender })
	requester := utils.FirstNonEmpty(req.GenderBucket, req.Profile.Gender)
	bucket, selected := buckets.Select(requester)

	log.Info("ranking finished",
		zap.Int("hits", len(hits)),
		zap.Int("scored", len(candidates)),
		zap.Int("returned", len(ranked)),
		zap.String("bucket", bucket.Name()),
	)

	return &Response{
		RequestID:  requestID,
		Weights:    weights,
		Candidates: ranked,
		Buckets:    buckets,
		Bucket:     bucket.Name(),
		Selected:   selected,
	}, nil
}

func (p *Pipeline) recordClauses(result eligibility.Result) {
	if p.metrics == nil {
		return
	}
	for _, scope := range []eligibility.ScopeResult{result.Required, result.Optional} {
		for _, c := range scope.Clauses {
			p.metrics.IncClause(c.Scope, string(c.Status))
		}
	}
}

// poolSize is the number of semantic candidates to score: at least
// SemanticPool and topK, at most the catalog size when it is known.
func poolSize(topK, catalogSize int) int {
	n := SemanticPool
	if topK > n {
		n = topK
	}
	if catalogSize > 0 && catalogSize < n {
		n = catalogSize
	}
	return n
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
