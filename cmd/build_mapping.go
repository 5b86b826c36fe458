package cmd

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/yojana-matcher/internal/catalog"
	"github.com/spigell/yojana-matcher/internal/fieldmap"
	"github.com/spigell/yojana-matcher/internal/logger"
)

var buildMappingCmd = &cobra.Command{
	Use:   "build-mapping",
	Short: "Build the clause field mapping from the fields seen in the dataset",
	Run: func(cmd *cobra.Command, _ []string) {
		buildMapping(cmd)
	},
}

func init() {
	rootCmd.AddCommand(buildMappingCmd)

	buildMappingCmd.Flags().StringP("output", "o", "", "mapping file to write (default is field-mapping from config)")
	buildMappingCmd.Flags().String("unmapped-log", "", "file listing fields that fell back to other. Default is unset.")
}

func buildMapping(cmd *cobra.Command) {
	ctx := context.Background()
	l, config := setup()

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		output = config.FieldMapping
	}

	store, err := openStore(ctx, config.Dataset, l)
	if err != nil {
		l.Fatal("opening dataset", zap.Error(err))
	}
	defer store.Close()

	schemes, err := store.List(ctx)
	if err != nil {
		l.Fatal("listing schemes", zap.Error(err))
	}

	mapping, unmapped := fieldmap.Build(observedFields(schemes, l))

	if err := fieldmap.WriteFile(output, mapping); err != nil {
		l.Fatal("writing field mapping", zap.Error(err))
	}

	l.Info("field mapping written",
		zap.String("path", output),
		zap.Int("fields", len(mapping)),
		zap.Int("unmapped", len(unmapped)),
	)

	if path, _ := cmd.Flags().GetString("unmapped-log"); path != "" {
		if err := os.WriteFile(path, []byte(strings.Join(unmapped, "\n")+"\n"), 0o644); err != nil {
			l.Fatal("writing unmapped log", zap.Error(err))
		}
		l.Info("unmapped fields written", zap.String("path", path))
	}
}

// observedFields collects the distinct raw clause fields of every scheme.
func observedFields(schemes []catalog.Scheme, l *zap.Logger) []string {
	seen := make(map[string]struct{})
	for _, scheme := range schemes {
		spec, err := scheme.Spec()
		if err != nil {
			l.Warn("failed to parse eligibility", logger.Scheme(scheme.ID), zap.Error(err))
			continue
		}
		for _, field := range spec.Fields() {
			seen[field] = struct{}{}
		}
	}

	fields := make([]string, 0, len(seen))
	for f := range seen {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}
