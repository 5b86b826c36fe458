package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/yojana-matcher/internal/cache"
	"github.com/spigell/yojana-matcher/internal/logger"
	"github.com/spigell/yojana-matcher/internal/utils"
)

const (
	defaultModel      = "text-embedding-004"
	defaultMaxRetries = 3
	defaultBackoff    = 2 * time.Second
	maxBackoff        = 20 * time.Second

	// TaskQuery embeds requester documents.
	TaskQuery = "RETRIEVAL_QUERY"
	// TaskDocument embeds scheme documents.
	TaskDocument = "RETRIEVAL_DOCUMENT"
)

type contentEmbedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Options tunes an Embedder. Zero values fall back to defaults.
type Options struct {
	Model      string
	MaxRetries int
	Cache      cache.Vectors
	Logger     *zap.Logger
}

// Embedder produces text embeddings with the Gemini API.
type Embedder struct {
	models     contentEmbedder
	model      string
	taskType   string
	maxRetries int
	backoff    time.Duration
	cache      cache.Vectors
	logger     *zap.Logger
}

// NewEmbedder creates an Embedder configured for the Gemini API backend.
func NewEmbedder(ctx context.Context, apiKey string, opts Options) (*Embedder, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newEmbedder(client.Models, opts), nil
}

func newEmbedder(models contentEmbedder, opts Options) *Embedder {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	retries := opts.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}

	return &Embedder{
		models:     models,
		model:      model,
		taskType:   TaskQuery,
		maxRetries: retries,
		backoff:    defaultBackoff,
		cache:      opts.Cache,
		logger:     logger.WithCommonFields(opts.Logger, "gemini", model),
	}
}

// WithTaskType returns a copy that embeds for the given task. The copy shares
// the client and cache.
func (e *Embedder) WithTaskType(taskType string) *Embedder {
	clone := *e
	clone.taskType = taskType
	return &clone
}

func (e *Embedder) Model() string {
	if e == nil {
		return ""
	}
	return e.model
}

// Embed returns the embedding of text, consulting the cache first.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e == nil || e.models == nil {
		return nil, errors.New("gemini embedder is not initialized")
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("text must not be empty")
	}

	key := cache.Key(e.model+"/"+e.taskType, text)
	if e.cache != nil {
		vector, ok, err := e.cache.Get(ctx, key)
		if err != nil {
			e.logger.Warn("embedding cache lookup failed", zap.Error(err))
		} else if ok {
			return vector, nil
		}
	}

	vector, err := e.embedWithRetry(ctx, text)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.Set(ctx, key, vector); err != nil {
			e.logger.Warn("embedding cache store failed", zap.Error(err))
		}
	}
	return vector, nil
}

func (e *Embedder) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		vector, err := e.embed(ctx, text)
		if err == nil {
			return vector, nil
		}
		lastErr = err

		if !temporary(err) || attempt == e.maxRetries {
			break
		}

		delay := e.backoff * time.Duration(attempt)
		if delay > maxBackoff {
			delay = maxBackoff
		}
		e.logger.Warn("embedding request failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := utils.WaitFor(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (e *Embedder) embed(ctx context.Context, text string) ([]float32, error) {
	cfg := &genai.EmbedContentConfig{TaskType: e.taskType}
	resp, err := e.models.EmbedContent(ctx, e.model, genai.Text(text), cfg)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, errors.New("gemini api returned no embeddings")
	}

	values := resp.Embeddings[0].Values
	if len(values) == 0 {
		return nil, errors.New("gemini api returned empty embedding")
	}
	return values, nil
}

func temporary(err error) bool {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var ptr *genai.APIError
		if !errors.As(err, &ptr) || ptr == nil {
			return false
		}
		apiErr = *ptr
	}
	return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
}
