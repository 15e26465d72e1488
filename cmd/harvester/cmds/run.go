package cmds

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/codes"

	"github.com/contestguard/harvester/internal/code"
	"github.com/contestguard/harvester/internal/config"
	"github.com/contestguard/harvester/internal/contest"
	"github.com/contestguard/harvester/internal/fetch"
	"github.com/contestguard/harvester/internal/logger"
	"github.com/contestguard/harvester/internal/ranking"
	"github.com/contestguard/harvester/internal/report"
	"github.com/contestguard/harvester/internal/runerrors"
	"github.com/contestguard/harvester/internal/similarity"
	"github.com/contestguard/harvester/internal/store"
	"github.com/contestguard/harvester/internal/throttle"
)

var (
	minAttempts    int
	chunkSize      int
	tolerance      float64
	dataDir        string
	docsDir        string
	excludeRegions []string
	skipSimilarity bool
)

var runCmd = &cobra.Command{
	Use:   "run <contest_slug> [question_index]",
	Short: "Run the full harvesting and reporting pipeline for one contest",
	Long: `Discovers the contest's ranking page limit, harvests all ranking pages
and the question list, fetches the source of every surviving attempt at the
selected question, runs the configured similarity engine over the artifacts
and publishes the deduplicated match report.

question_index is zero-based; it defaults to the contest's last question.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "runCmd")
		defer span.End()

		cfg, err := config.GetConfig()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to load config")
			return err
		}
		applyRunFlags(cmd, cfg)

		contestSlug := args[0]
		questionIndex := -1
		if len(args) == 2 {
			questionIndex, err = strconv.Atoi(args[1])
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "bad question index")
				return runerrors.ExitErrorWrap(
					runerrors.ExitBadArgs,
					fmt.Errorf("question_index must be an integer: %w", err),
				)
			}
		}

		runID := uuid.NewString()
		logger.Logger.InfoContext(ctx,
			"starting run",
			"run-id", runID,
			"contest", contestSlug,
			"min-attempts", cfg.MinAttempts,
			"chunk-size", cfg.ChunkSize,
			"tolerance", cfg.Tolerance,
		)

		err = runPipeline(ctx, cfg, contestSlug, questionIndex)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "pipeline failed")
			return err
		}

		span.RecordError(nil)
		span.SetStatus(codes.Ok, "pipeline finished")
		return nil
	},
}

// applyRunFlags lets explicit flags win over file and env config.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("min-attempts") {
		cfg.MinAttempts = minAttempts
	}
	if cmd.Flags().Changed("chunk-size") {
		cfg.ChunkSize = chunkSize
	}
	if cmd.Flags().Changed("tolerance") {
		cfg.Tolerance = tolerance
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = dataDir
	}
	if cmd.Flags().Changed("docs-dir") {
		cfg.DocsDir = docsDir
	}
	if cmd.Flags().Changed("exclude-region") {
		cfg.ExcludedRegions = excludeRegions
	}
}

func runPipeline(ctx context.Context, cfg *config.Config, contestSlug string, questionIndex int) error {
	fileStore, err := store.NewFileStore(filepath.Join(cfg.DataDir, contestSlug))
	if err != nil {
		return fmt.Errorf("failed to open data dir: %w", err)
	}
	dataStore := store.NewRetryStore(fileStore)

	fetcher := fetch.NewHTTPFetcher(fetch.NewResilientClient(),
		fetch.WithHeader("Referer", fmt.Sprintf("%s/contest/%s/ranking/", cfg.SiteBaseURL, contestSlug)),
		fetch.WithHeader("Referrer-Policy", "strict-origin-when-cross-origin"),
	)

	rankingClient := ranking.NewClient(fetcher, dataStore, ranking.Config{
		BaseURL:     cfg.RankingBaseURL,
		Contest:     contestSlug,
		MinAttempts: cfg.MinAttempts,
		ChunkSize:   cfg.ChunkSize,
		Progress:    throttle.LogProgress,
	})

	logger.Logger.InfoContext(ctx, "discovering page limit")
	pageLimit, err := rankingClient.PageLimit(ctx)
	if err != nil {
		return err
	}
	logger.Logger.InfoContext(ctx, "found page limit", "page-limit", pageLimit)

	if pageLimit == 1 {
		logger.Logger.WarnContext(ctx, "contest has no usable ranking data", "contest", contestSlug)
		return nil
	}

	questions, err := rankingClient.FetchQuestions(ctx)
	if err != nil {
		return err
	}
	question, err := selectQuestion(questions, questionIndex)
	if err != nil {
		return runerrors.ExitErrorWrap(runerrors.ExitBadArgs, err)
	}
	logger.Logger.InfoContext(ctx,
		"selected question",
		"question-id", question.ID,
		"title-slug", question.TitleSlug,
	)

	logger.Logger.InfoContext(ctx, "harvesting ranking pages")
	records, err := rankingClient.HarvestAll(ctx, pageLimit)
	if err != nil {
		return err
	}
	logger.Logger.InfoContext(ctx, "harvested ranking pages", "records", len(records))

	harvester := code.NewHarvester(fetcher, dataStore, code.Config{
		Regions:         cfg.Regions,
		ExcludedRegions: cfg.ExcludedRegions,
		ChunkSize:       cfg.ChunkSize,
		Progress:        throttle.LogProgress,
	})
	if cfg.S3Mirror != nil {
		mirror, err := store.NewMinioStore(
			cfg.S3Mirror.Endpoint,
			cfg.S3Mirror.AccessKeyID,
			cfg.S3Mirror.SecretAccessKey,
			cfg.S3Mirror.SSLEnabled,
			cfg.S3Mirror.BucketName,
		)
		if err != nil {
			return fmt.Errorf("failed to open S3 mirror: %w", err)
		}
		harvester = harvester.WithMirror(store.NewRetryStore(mirror))
	}

	logger.Logger.InfoContext(ctx, "harvesting submission code")
	artifacts, err := harvester.Harvest(ctx, records, question.ID)
	if err != nil {
		return err
	}
	logger.Logger.InfoContext(ctx, "harvested submission code", "artifacts", len(artifacts))

	if skipSimilarity {
		logger.Logger.InfoContext(ctx, "similarity stage skipped by flag")
		return nil
	}
	if cfg.Similarity == nil {
		logger.Logger.WarnContext(ctx, "no similarity engine configured, stopping after harvest")
		return nil
	}

	engine := similarity.NewCommandEngine(cfg.Similarity.Command, cfg.Similarity.Args...)
	codesDir := filepath.Join(fileStore.Root(), "codes", strconv.Itoa(question.ID))
	pairs, err := engine.Compare(ctx, codesDir)
	if err != nil {
		return err
	}
	logger.Logger.InfoContext(ctx, "compared artifacts", "pairs", len(pairs))

	rows := report.Aggregate(ctx, pairs, cfg.Tolerance)

	keys := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		keys = append(keys, a.Path)
	}
	languages, err := report.LanguageBreakdown(ctx, dataStore, keys)
	if err != nil {
		return err
	}

	docsStore, err := store.NewFileStore(cfg.DocsDir)
	if err != nil {
		return fmt.Errorf("failed to open docs dir: %w", err)
	}
	publisher := report.NewPublisher(docsStore, report.PublisherConfig{
		Contest:  contestSlug,
		SiteBase: cfg.SiteBaseURL,
	})
	if err := publisher.Publish(ctx, rows, languages); err != nil {
		return err
	}

	logger.Logger.InfoContext(ctx, "published report", "matches", len(rows))
	return nil
}

// selectQuestion resolves the zero-based index, defaulting to the last
// question. An out-of-range index is a structural failure.
func selectQuestion(questions []contest.Question, index int) (contest.Question, error) {
	if len(questions) == 0 {
		return contest.Question{}, fmt.Errorf("contest has no questions")
	}
	if index < 0 {
		return questions[len(questions)-1], nil
	}
	if index >= len(questions) {
		return contest.Question{}, fmt.Errorf(
			"question index %d out of range, contest has %d questions",
			index, len(questions),
		)
	}
	return questions[index], nil
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVar(&minAttempts, "min-attempts", 0, "Minimum attempts for a record to be kept")
	runCmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Units of work in flight at once")
	runCmd.Flags().Float64Var(&tolerance, "tolerance", 0, "Similarity tolerance in [0,1]")
	runCmd.Flags().StringVar(&dataDir, "data-dir", "", "Root of the durable cache")
	runCmd.Flags().StringVar(&docsDir, "docs-dir", "", "Directory the reports are published to")
	runCmd.Flags().
		StringArrayVar(&excludeRegions, "exclude-region", nil, "Drop attempts from this data region (repeatable)")
	runCmd.Flags().BoolVar(&skipSimilarity, "skip-similarity", false, "Stop after harvesting code")
}
