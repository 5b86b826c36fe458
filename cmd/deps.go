package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/yojana-matcher/internal/ai/gemini"
	"github.com/spigell/yojana-matcher/internal/cache"
	"github.com/spigell/yojana-matcher/internal/catalog"
	"github.com/spigell/yojana-matcher/internal/eligibility"
	"github.com/spigell/yojana-matcher/internal/fieldmap"
	"github.com/spigell/yojana-matcher/internal/logger"
	"github.com/spigell/yojana-matcher/internal/resources"
	"github.com/spigell/yojana-matcher/internal/search"
	"github.com/spigell/yojana-matcher/internal/secrets"
	"github.com/spigell/yojana-matcher/internal/storage/postgres"
	"github.com/spigell/yojana-matcher/internal/storage/sqlite"
)

const (
	backendFile     = "file"
	backendSQLite   = "sqlite"
	backendPostgres = "postgres"
	backendMemory   = "memory"
	backendRedis    = "redis"
	backendNone     = "none"
)

// setup is the common start of every command: a logger and the parsed config.
func setup() (*zap.Logger, *Config) {
	l, err := logger.New(logger.Options{
		JSON:  viper.GetBool("json"),
		Debug: viper.GetBool("debug"),
	})
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		l.Fatal("getting a config", zap.Error(err))
	}

	return l, config
}

// openedStore is a catalog store together with its release function.
type openedStore struct {
	catalog.Store
	postgres *postgres.Store
	close    func()
}

func (s *openedStore) Close() {
	if s.close != nil {
		s.close()
	}
}

func openStore(ctx context.Context, config *DatasetConfig, l *zap.Logger) (*openedStore, error) {
	backend := strings.ToLower(strings.TrimSpace(config.Backend))

	switch backend {
	case "", backendFile:
		schemes, err := catalog.LoadFile(config.Path)
		if err != nil {
			return nil, err
		}
		l.Info("dataset loaded", zap.String("path", config.Path), zap.Int("schemes", len(schemes)))
		return &openedStore{Store: catalog.NewMemoryStore(schemes)}, nil

	case backendSQLite:
		s, err := sqlite.Open(ctx, config.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &openedStore{Store: s, close: func() { _ = s.Close() }}, nil

	case backendPostgres:
		url, err := postgresURL(config)
		if err != nil {
			return nil, err
		}
		s, err := postgres.Open(ctx, url, l)
		if err != nil {
			return nil, err
		}
		return &openedStore{Store: s, postgres: s, close: s.Close}, nil
	}

	return nil, fmt.Errorf("unsupported dataset backend: %s", config.Backend)
}

func postgresURL(config *DatasetConfig) (string, error) {
	return secrets.Load(secrets.Source{
		Name:  "postgres url",
		Value: config.PostgresURL,
		File:  config.PostgresURLFile,
		Env:   []string{"DATABASE_URL"},
	})
}

func newVectorCache(ctx context.Context, config *CacheConfig, l *zap.Logger) (cache.Vectors, error) {
	switch strings.ToLower(strings.TrimSpace(config.Backend)) {
	case backendNone:
		return nil, nil
	case "", backendMemory:
		return cache.NewMemory(config.Size), nil
	case backendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		c := cache.NewRedis(client, config.Redis.Prefix, config.Redis.TTL)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := c.Ping(pingCtx); err != nil {
			return nil, fmt.Errorf("connecting to redis at %s: %w", config.Redis.Addr, err)
		}
		l.Info("embedding cache", zap.String("backend", backendRedis), zap.String("addr", config.Redis.Addr))
		return c, nil
	}

	return nil, fmt.Errorf("unsupported cache backend: %s", config.Backend)
}

func newEmbedder(ctx context.Context, config *Config, l *zap.Logger) (*gemini.Embedder, error) {
	provider := strings.TrimSpace(strings.ToLower(config.AI.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", config.AI.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: config.AI.Gemini.APIKey,
		File:  config.AI.Gemini.APIKeyFile,
		Env:   []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY)", err)
	}

	vectors, err := newVectorCache(ctx, config.Cache, l)
	if err != nil {
		return nil, err
	}

	return gemini.NewEmbedder(ctx, apiKey, gemini.Options{
		Model:      config.AI.Gemini.Model,
		MaxRetries: config.AI.Gemini.MaxRetries,
		Cache:      vectors,
		Logger:     l,
	})
}

func newIndex(ctx context.Context, config *Config, store *openedStore, model string, l *zap.Logger) (search.Index, error) {
	switch strings.ToLower(strings.TrimSpace(config.Search.Backend)) {
	case "", backendMemory:
		index, err := search.LoadIndex(config.Search.IndexPath)
		if err != nil {
			return nil, err
		}
		if index.Model() != "" && index.Model() != model {
			l.Warn("index was built with a different embedding model",
				zap.String("index_model", index.Model()),
				zap.String("model", model),
			)
		}
		return index, nil

	case backendPostgres:
		if store.postgres == nil {
			return nil, errors.New("postgres search backend requires the postgres dataset backend")
		}
		return postgres.NewIndex(ctx, store.postgres)
	}

	return nil, fmt.Errorf("unsupported search backend: %s", config.Search.Backend)
}

// buildResources returns the constructor of the shared ranking state. The
// opened store stays open for the life of the process.
func buildResources(config *Config, l *zap.Logger) resources.BuildFunc {
	return func(ctx context.Context) (*resources.Set, error) {
		store, err := openStore(ctx, config.Dataset, l)
		if err != nil {
			return nil, fmt.Errorf("opening dataset: %w", err)
		}

		set, err := assemble(ctx, config, store, l)
		if err != nil {
			store.Close()
			return nil, err
		}
		return set, nil
	}
}

func assemble(ctx context.Context, config *Config, store *openedStore, l *zap.Logger) (*resources.Set, error) {
	count, err := store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting schemes: %w", err)
	}

	mapper, err := fieldmap.Load(config.FieldMapping, fieldmap.WithLogger(l))
	if err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(ctx, config, l)
	if err != nil {
		return nil, err
	}
	query := embedder.WithTaskType(gemini.TaskQuery)

	index, err := newIndex(ctx, config, store, embedder.Model(), l)
	if err != nil {
		return nil, fmt.Errorf("loading index: %w", err)
	}

	searcher, err := search.NewSemantic(query, index, l)
	if err != nil {
		return nil, err
	}

	l.Info("resources ready",
		zap.Int("schemes", count),
		zap.Int("indexed", index.Len()),
		zap.Int("field_aliases", mapper.Len()),
	)

	return &resources.Set{
		Store:    store,
		Searcher: searcher,
		Engine:   eligibility.NewEngine(mapper, l),
		Count:    count,
		LoadedAt: time.Now(),
	}, nil
}
