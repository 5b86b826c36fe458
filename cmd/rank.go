package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/yojana-matcher/internal/filtering"
	"github.com/spigell/yojana-matcher/internal/gender"
	"github.com/spigell/yojana-matcher/internal/profile"
	"github.com/spigell/yojana-matcher/internal/recommend"
	"github.com/spigell/yojana-matcher/internal/utils"
)

const (
	PromptShowResults         = "Show results"
	PromptReportByBucket      = "Report by gender buckets"
	PromptChooseBucket        = "Choose another bucket"
	PromptAppendToExcludeFile = "Append results to exclude file"
	PromptResultsToFile       = "Dump results to file"
	PromptExit                = "Exit"
)

var errExit = errors.New("exit requested")

var prompt = promptui.Select{
	Label: "What next?",
	Items: []string{PromptShowResults, PromptReportByBucket, PromptChooseBucket, PromptAppendToExcludeFile, PromptResultsToFile, PromptExit},
}

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank schemes for a profile and a free-text query",
	Run: func(cmd *cobra.Command, _ []string) {
		rank(cmd)
	},
}

func init() {
	rootCmd.AddCommand(rankCmd)

	rankCmd.Flags().StringP("query", "q", "", "free-text description of the need")
	rankCmd.Flags().StringP("profile", "p", "", "profile file (json or yaml)")
	rankCmd.Flags().IntP("top-k", "k", 0, "number of schemes to return (default from ranking.top-k)")
	rankCmd.Flags().StringP("gender-bucket", "g", "", "bucket to show: male, female or neutral (default from profile)")
	rankCmd.Flags().Float64("minimum-percent", 0, "drop results below this percent match")
	rankCmd.Flags().StringP("exclude-file", "e", "", "file with schemes to exclude. Default is unset.")
	rankCmd.Flags().BoolP("yes", "y", false, "print results as json and exit without prompting")

	viper.BindPFlag("ranking.exclude-file", rankCmd.Flags().Lookup("exclude-file"))
	viper.BindPFlag("ranking.minimum-percent", rankCmd.Flags().Lookup("minimum-percent"))
}

// session is the state of one interactive ranking.
type session struct {
	buckets     gender.Buckets[recommend.Candidate]
	bucket      gender.Gender
	results     []recommend.Candidate
	excludeFile string
	logger      *zap.Logger
}

func rank(cmd *cobra.Command) {
	ctx := context.Background()
	logger, config := setup()

	logger.Info("starting the ranking", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	query, _ := cmd.Flags().GetString("query")
	p, err := readProfile(cmd, logger)
	if err != nil {
		logger.Fatal("reading a profile", zap.Error(err))
	}

	set, err := buildResources(config, logger)(ctx)
	if err != nil {
		logger.Fatal("loading resources", zap.Error(err))
	}

	topK, _ := cmd.Flags().GetInt("top-k")
	if topK == 0 {
		topK = config.Ranking.TopK
	}
	requested, _ := cmd.Flags().GetString("gender-bucket")

	pipeline := recommend.NewPipeline(
		recommend.WithWeights(config.Ranking.Weights),
		recommend.WithLogger(logger),
	)

	resp, err := pipeline.Rank(ctx, set, recommend.Request{
		Query:        query,
		Profile:      p,
		TopK:         topK,
		GenderBucket: requested,
	})
	if err != nil {
		logger.Fatal("ranking failed", zap.Error(err))
	}

	filters := filtering.New([]filtering.Filter{
		filtering.NewExcludeFile(config.Ranking.ExcludeFile, logger),
		filtering.NewMinimumPercent(config.Ranking.MinimumPercent),
	}, logger)

	candidates, err := filters.Run(ctx, resp.Candidates)
	if err != nil {
		logger.Fatal("filtering failed", zap.Error(err))
	}

	s := &session{
		buckets:     gender.Partition(candidates, func(c recommend.Candidate) gender.Gender { return c.Gender.Gender }),
		excludeFile: config.Ranking.ExcludeFile,
		logger:      logger,
	}
	s.bucket, s.results = s.buckets.Select(utils.FirstNonEmpty(requested, p.Gender))

	if len(s.results) == 0 {
		logger.Info("exiting", zap.String("reason", "no schemes left after filters"), zap.String("bucket", s.bucket.Name()))
		return
	}

	if yes, _ := cmd.Flags().GetBool("yes"); yes {
		if err := printJSON(s.results); err != nil {
			logger.Fatal("printing results", zap.Error(err))
		}
		return
	}

	for {
		logger.Info("current list of schemes", zap.String("bucket", s.bucket.Name()), zap.Int("count", len(s.results)))

		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		if err := s.handleAction(action); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

func (s *session) handleAction(action string) error {
	switch action {
	case PromptShowResults:
		return printJSON(s.results)
	case PromptReportByBucket:
		pretty, _ := json.MarshalIndent(reportByBucket(s.buckets), "", "  ")
		s.logger.Info(string(pretty), zap.String("current bucket", s.bucket.Name()))
		return nil
	case PromptChooseBucket:
		return s.chooseBucket()
	case PromptAppendToExcludeFile:
		return s.appendToExcludeFile()
	case PromptResultsToFile:
		filename, err := dumpToTmpFile(s.results)
		if err != nil {
			return fmt.Errorf("dump results to file: %w", err)
		}
		s.logger.Info("dumping result to file", zap.String("filename", filename))
		return nil
	case PromptExit:
		s.logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

func (s *session) chooseBucket() error {
	bucketPrompt := promptui.Select{
		Label: "Choose a bucket and press ENTER",
		Items: []string{string(gender.Male), string(gender.Female), gender.Unrestricted.Name()},
	}

	_, selected, err := bucketPrompt.Run()
	if err != nil {
		return err
	}

	s.bucket, s.results = s.buckets.Select(selected)
	return nil
}

func (s *session) appendToExcludeFile() error {
	if s.excludeFile == "" {
		s.logger.Warn("exclude file is not configured", zap.String("hint", "set ranking.exclude-file or --exclude-file"))
		return nil
	}

	excluded, err := filtering.LoadExcluded(s.excludeFile)
	if err != nil {
		return err
	}

	excluded.Append(filtering.ToExcluded(s.results, time.Now()))

	if err := excluded.ToFile(s.excludeFile); err != nil {
		return err
	}

	s.logger.Info("appended to exclude file", zap.String("filename", s.excludeFile), zap.Int("count", len(s.results)))

	s.results = s.results[:0:0]
	return nil
}

// reportByBucket lists scheme names per bucket.
func reportByBucket(b gender.Buckets[recommend.Candidate]) map[string][]string {
	names := func(cs []recommend.Candidate) []string {
		out := make([]string, 0, len(cs))
		for _, c := range cs {
			out = append(out, fmt.Sprintf("%s (%.1f%%)", c.SchemeName, c.PercentMatch))
		}
		return out
	}

	return map[string][]string{
		string(gender.Male):        names(b.Male),
		string(gender.Female):      names(b.Female),
		gender.Unrestricted.Name(): names(b.Neutral),
	}
}

func readProfile(cmd *cobra.Command, logger *zap.Logger) (profile.Profile, error) {
	path, _ := cmd.Flags().GetString("profile")
	if path == "" {
		logger.Warn("no profile given, ranking on the query alone")
		return profile.Profile{}, nil
	}

	p, diagnostics, err := profile.ReadFile(path)
	if err != nil {
		return profile.Profile{}, err
	}

	if len(diagnostics.MissingFields) > 0 {
		logger.Warn("profile is missing commonly required fields", zap.Strings("missing", diagnostics.MissingFields))
	}
	for _, w := range diagnostics.Warnings {
		logger.Warn("profile warning", zap.String("warning", w))
	}

	return p, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// dumpToTmpFile writes v as JSON to a new temporary file and returns its name.
func dumpToTmpFile(v any) (string, error) {
	file, err := os.CreateTemp("", "schemes_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}

	return file.Name(), nil
}
