package cmd

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/yojana-matcher/internal/scoring"
)

const (
	app       = "yojana-matcher"
	envPrefix = "YOJANA"
)

type Config struct {
	Dataset      *DatasetConfig `mapstructure:"dataset"`
	FieldMapping string         `mapstructure:"field-mapping"`
	Search       *SearchConfig  `mapstructure:"search"`
	AI           *AIConfig      `mapstructure:"ai"`
	Cache        *CacheConfig   `mapstructure:"cache"`
	Ranking      *RankingConfig `mapstructure:"ranking"`
	Server       *ServerConfig  `mapstructure:"server"`
}

type DatasetConfig struct {
	// Backend is one of file, sqlite or postgres.
	Backend         string `mapstructure:"backend"`
	Path            string `mapstructure:"path"`
	SQLitePath      string `mapstructure:"sqlite-path"`
	PostgresURL     string `mapstructure:"postgres-url"`
	PostgresURLFile string `mapstructure:"postgres-url-file"`
}

type SearchConfig struct {
	// Backend is memory (index file) or postgres (pgvector column).
	Backend   string `mapstructure:"backend"`
	IndexPath string `mapstructure:"index-path"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
	MaxRetries int    `mapstructure:"max-retries"`
}

type CacheConfig struct {
	// Backend is memory, redis or none.
	Backend string       `mapstructure:"backend"`
	Size    int          `mapstructure:"size"`
	Redis   *RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type RankingConfig struct {
	TopK           int             `mapstructure:"top-k"`
	Weights        scoring.Weights `mapstructure:"weights"`
	MinimumPercent float64         `mapstructure:"minimum-percent"`
	ExcludeFile    string          `mapstructure:"exclude-file"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "yojana-matcher ranks welfare schemes against a requester profile",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is yojana-matcher.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().String("dataset", "", "scheme dataset file (json, jsonl or yaml)")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("dataset.path", rootCmd.PersistentFlags().Lookup("dataset"))

	setDefaults()
}

func setDefaults() {
	viper.SetDefault("dataset.backend", "file")
	viper.SetDefault("dataset.path", "data/schemes.json")
	viper.SetDefault("dataset.sqlite-path", "data/schemes.db")
	viper.SetDefault("field-mapping", "data/field_mapping.json")
	viper.SetDefault("search.backend", "memory")
	viper.SetDefault("search.index-path", "data/index.json")
	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.gemini.model", "text-embedding-004")
	viper.SetDefault("ai.gemini.max-retries", 3)
	viper.SetDefault("cache.backend", "memory")
	viper.SetDefault("cache.size", 4096)
	viper.SetDefault("cache.redis.addr", "localhost:6379")
	viper.SetDefault("cache.redis.prefix", "yojana:embedding:")
	viper.SetDefault("cache.redis.ttl", 24*time.Hour)
	viper.SetDefault("ranking.top-k", 10)
	viper.SetDefault("ranking.weights.rule", scoring.DefaultWeights().Rule)
	viper.SetDefault("ranking.weights.semantic", scoring.DefaultWeights().Semantic)
	viper.SetDefault("ranking.weights.freshness", scoring.DefaultWeights().Freshness)
	viper.SetDefault("server.addr", "127.0.0.1:8080")
}

func initConfig() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		// We can't proceed if the config file parsed with error.
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return config, err
	}

	if config.Dataset == nil {
		config.Dataset = &DatasetConfig{}
	}
	if config.Search == nil {
		config.Search = &SearchConfig{}
	}
	if config.AI == nil {
		config.AI = &AIConfig{}
	}
	if config.AI.Gemini == nil {
		config.AI.Gemini = &GeminiConfig{}
	}
	if config.Cache == nil {
		config.Cache = &CacheConfig{}
	}
	if config.Cache.Redis == nil {
		config.Cache.Redis = &RedisConfig{}
	}
	if config.Ranking == nil {
		config.Ranking = &RankingConfig{}
	}
	if config.Server == nil {
		config.Server = &ServerConfig{}
	}

	return config, nil
}
