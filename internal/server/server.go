// Package server exposes the ranking pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/spigell/yojana-matcher/internal/metrics"
	"github.com/spigell/yojana-matcher/internal/profile"
	"github.com/spigell/yojana-matcher/internal/recommend"
	"github.com/spigell/yojana-matcher/internal/resources"
	"github.com/spigell/yojana-matcher/internal/scoring"
)

const shutdownTimeout = 10 * time.Second

// Resources hands out the shared ranking state.
type Resources interface {
	Get(ctx context.Context) (*resources.Set, error)
	Current() *resources.Set
}

// RecommendRequest is the body of POST /recommend.
type RecommendRequest struct {
	Query        string           `json:"query"`
	Profile      map[string]any   `json:"profile"`
	TopK         int              `json:"top_k"`
	GenderBucket string           `json:"gender_bucket"`
	Weights      *scoring.Weights `json:"weights"`
}

// RecommendResponse is the body returned by POST /recommend.
type RecommendResponse struct {
	RequestID   string                           `json:"request_id"`
	Query       string                           `json:"query"`
	Profile     profile.Profile                  `json:"profile"`
	Diagnostics profile.Diagnostics              `json:"diagnostics"`
	Bucket      string                           `json:"bucket"`
	Results     []recommend.Candidate            `json:"results"`
	Buckets     map[string][]recommend.Candidate `json:"buckets"`
	Weights     scoring.Weights                  `json:"weights"`
}

// Server wires the HTTP routes.
type Server struct {
	resources Resources
	pipeline  *recommend.Pipeline
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer
	logger    *zap.Logger
	engine    *gin.Engine
}

func New(res Resources, pipeline *recommend.Pipeline, m *metrics.Metrics, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		resources: res,
		pipeline:  pipeline,
		metrics:   m,
		gatherer:  gatherer,
		logger:    logger,
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/status", s.status)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	r.POST("/recommend", s.recommend)

	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func (s *Server) status(c *gin.Context) {
	set := s.resources.Current()
	if set == nil {
		c.JSON(http.StatusOK, gin.H{"ready": false, "schemes_rows": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ready":        true,
		"schemes_rows": set.Count,
		"loaded_at":    set.LoadedAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) recommend(c *gin.Context) {
	var req RecommendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.metrics.IncRequests(metrics.OutcomeInvalid)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "detail": err.Error()})
		return
	}

	set, err := s.resources.Get(c.Request.Context())
	if err != nil {
		s.metrics.IncRequests(metrics.OutcomeLoadFailed)
		s.logger.Error("resources unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "load_failed", "detail": err.Error()})
		return
	}

	p, diagnostics := profile.Normalize(req.Profile)

	resp, err := s.pipeline.Rank(c.Request.Context(), set, recommend.Request{
		Query:        req.Query,
		Profile:      p,
		TopK:         req.TopK,
		Weights:      req.Weights,
		GenderBucket: req.GenderBucket,
	})
	if errors.Is(err, recommend.ErrInvalidRequest) {
		s.metrics.IncRequests(metrics.OutcomeInvalid)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "detail": err.Error()})
		return
	}
	if err != nil {
		s.metrics.IncRequests(metrics.OutcomeRankingFailed)
		s.logger.Error("ranking failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ranking_failed", "detail": err.Error()})
		return
	}

	s.metrics.IncRequests(metrics.OutcomeSuccess)
	c.JSON(http.StatusOK, RecommendResponse{
		RequestID:   resp.RequestID,
		Query:       req.Query,
		Profile:     p,
		Diagnostics: diagnostics,
		Bucket:      resp.Bucket,
		Results:     resp.Selected,
		Buckets: map[string][]recommend.Candidate{
			"male":    resp.Buckets.Male,
			"female":  resp.Buckets.Female,
			"neutral": resp.Buckets.Neutral,
		},
		Weights: resp.Weights,
	})
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(started)),
		)
	}
}
