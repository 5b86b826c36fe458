package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/yojana-matcher/internal/ai/gemini"
	"github.com/spigell/yojana-matcher/internal/search"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Embed every scheme and write the vector index",
	Run: func(cmd *cobra.Command, _ []string) {
		index(cmd)
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)

	indexCmd.Flags().StringP("output", "o", "", "index file to write (default is search.index-path from config)")
}

func index(cmd *cobra.Command) {
	ctx := context.Background()
	l, config := setup()

	store, err := openStore(ctx, config.Dataset, l)
	if err != nil {
		l.Fatal("opening dataset", zap.Error(err))
	}
	defer store.Close()

	schemes, err := store.List(ctx)
	if err != nil {
		l.Fatal("listing schemes", zap.Error(err))
	}

	embedder, err := newEmbedder(ctx, config, l)
	if err != nil {
		l.Fatal("creating an embedder", zap.Error(err))
	}

	l.Info("embedding schemes", zap.Int("count", len(schemes)), zap.String("model", embedder.Model()))

	f, err := search.Build(ctx, embedder.WithTaskType(gemini.TaskDocument), schemes, embedder.Model(), l)
	if err != nil {
		l.Fatal("building index", zap.Error(err))
	}

	if strings.EqualFold(config.Search.Backend, backendPostgres) {
		if store.postgres == nil {
			l.Fatal("postgres search backend requires the postgres dataset backend")
		}
		stored, err := store.postgres.StoreIndex(ctx, f)
		if err != nil {
			l.Fatal("storing embeddings", zap.Error(err))
		}
		l.Info("embeddings stored in postgres", zap.Int("count", stored))
		return
	}

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		output = config.Search.IndexPath
	}

	if err := search.WriteIndex(output, f); err != nil {
		l.Fatal("writing index", zap.Error(err))
	}

	l.Info("index written", zap.String("path", output), zap.Int("items", len(f.Items)), zap.Int("dimensions", f.Dimensions))
}
