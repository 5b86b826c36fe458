package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/yojana-matcher/internal/catalog"
	"github.com/spigell/yojana-matcher/internal/eligibility"
	"github.com/spigell/yojana-matcher/internal/fieldmap"
	"github.com/spigell/yojana-matcher/internal/gender"
	"github.com/spigell/yojana-matcher/internal/logger"
)

// evaluation is what the evaluate command prints.
type evaluation struct {
	SchemeID   string             `json:"scheme_id"`
	SchemeName string             `json:"scheme_name"`
	Spec       eligibility.Spec   `json:"eligibility"`
	Result     eligibility.Result `json:"rule_breakdown"`
	Gender     gender.Restriction `json:"gender"`
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate one scheme's eligibility rules against a profile",
	Run: func(cmd *cobra.Command, _ []string) {
		evaluate(cmd)
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringP("scheme", "s", "", "scheme id to evaluate")
	evaluateCmd.Flags().StringP("profile", "p", "", "profile file (json or yaml)")

	evaluateCmd.MarkFlagRequired("scheme")
}

func evaluate(cmd *cobra.Command) {
	ctx := context.Background()
	l, config := setup()

	id, _ := cmd.Flags().GetString("scheme")
	log := logger.WithFields(l, logger.Scheme(id))

	p, err := readProfile(cmd, log)
	if err != nil {
		log.Fatal("reading a profile", zap.Error(err))
	}

	store, err := openStore(ctx, config.Dataset, log)
	if err != nil {
		log.Fatal("opening dataset", zap.Error(err))
	}
	defer store.Close()

	scheme, err := store.Get(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		log.Fatal("scheme not found in dataset")
	}
	if err != nil {
		log.Fatal("loading scheme", zap.Error(err))
	}

	spec, err := scheme.Spec()
	if err != nil {
		log.Error("failed to parse eligibility", zap.Error(err))
	}

	mapper, err := fieldmap.Load(config.FieldMapping, fieldmap.WithLogger(log))
	if err != nil {
		log.Fatal("loading field mapping", zap.Error(err))
	}

	result := eligibility.NewEngine(mapper, log).Evaluate(spec, p.Attributes())

	out := evaluation{
		SchemeID:   scheme.ID,
		SchemeName: scheme.Name,
		Spec:       spec,
		Result:     result,
		Gender: gender.Infer(gender.Scheme{
			Name:     scheme.Name,
			Required: spec.Required,
			RawText:  scheme.EligibilityRaw,
		}, mapper),
	}

	if err := printJSON(out); err != nil {
		log.Fatal("printing evaluation", zap.Error(err))
	}

	log.Info("scheme evaluated",
		zap.Float64("R", result.R),
		zap.Int("matched", len(result.MatchedClauses)),
		zap.Int("unmet", len(result.UnmetClauses)),
		zap.Int("unknown", len(result.UnknownClauses)),
	)
}
