package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/yojana-matcher/internal/catalog"
	"github.com/spigell/yojana-matcher/internal/storage/postgres"
	"github.com/spigell/yojana-matcher/internal/storage/sqlite"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Copy a dataset file into the sqlite or postgres store",
	Run: func(cmd *cobra.Command, _ []string) {
		importDataset(cmd)
	},
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().String("to", "", "target backend: sqlite or postgres (default is dataset.backend from config)")
}

func importDataset(cmd *cobra.Command) {
	ctx := context.Background()
	l, config := setup()

	target, _ := cmd.Flags().GetString("to")
	if target == "" {
		target = config.Dataset.Backend
	}
	target = strings.ToLower(strings.TrimSpace(target))

	schemes, err := catalog.LoadFile(config.Dataset.Path)
	if err != nil {
		l.Fatal("loading dataset file", zap.Error(err))
	}

	l.Info("importing schemes", zap.String("from", config.Dataset.Path), zap.String("to", target), zap.Int("count", len(schemes)))

	var imported int
	switch target {
	case backendSQLite:
		s, err := sqlite.Open(ctx, config.Dataset.SQLitePath)
		if err != nil {
			l.Fatal("opening sqlite", zap.Error(err))
		}
		defer s.Close()
		imported, err = s.Import(ctx, schemes)
		if err != nil {
			l.Fatal("importing into sqlite", zap.Error(err))
		}

	case backendPostgres:
		url, err := postgresURL(config.Dataset)
		if err != nil {
			l.Fatal("loading postgres url", zap.Error(err))
		}
		s, err := postgres.Open(ctx, url, l)
		if err != nil {
			l.Fatal("opening postgres", zap.Error(err))
		}
		defer s.Close()
		imported, err = s.Import(ctx, schemes)
		if err != nil {
			l.Fatal("importing into postgres", zap.Error(err))
		}

	default:
		l.Fatal("unsupported import target", zap.String("to", target), zap.String("hint", "use --to sqlite or --to postgres"))
	}

	l.Info("dataset imported", zap.Int("imported", imported), zap.Int("skipped", len(schemes)-imported))
}
