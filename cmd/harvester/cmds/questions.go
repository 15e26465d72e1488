package cmds

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/codes"

	"github.com/contestguard/harvester/internal/config"
	"github.com/contestguard/harvester/internal/fetch"
	"github.com/contestguard/harvester/internal/ranking"
	"github.com/contestguard/harvester/internal/store"
)

var questionsDataDir string

var questionsCmd = &cobra.Command{
	Use:   "questions <contest_slug>",
	Short: "List a contest's questions and their indices",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "questionsCmd")
		defer span.End()

		cfg, err := config.GetConfig()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to load config")
			return err
		}
		if cmd.Flags().Changed("data-dir") {
			cfg.DataDir = questionsDataDir
		}

		contestSlug := args[0]

		fileStore, err := store.NewFileStore(filepath.Join(cfg.DataDir, contestSlug))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to open data dir")
			return err
		}

		fetcher := fetch.NewHTTPFetcher(fetch.NewResilientClient(),
			fetch.WithHeader("Referer", fmt.Sprintf("%s/contest/%s/ranking/", cfg.SiteBaseURL, contestSlug)),
		)

		client := ranking.NewClient(fetcher, store.NewRetryStore(fileStore), ranking.Config{
			BaseURL: cfg.RankingBaseURL,
			Contest: contestSlug,
		})

		questions, err := client.FetchQuestions(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to fetch questions")
			return err
		}

		for i, q := range questions {
			fmt.Printf("%d\t%d\t%s\n", i, q.ID, q.TitleSlug)
		}

		span.RecordError(nil)
		span.SetStatus(codes.Ok, "listed questions")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(questionsCmd)

	questionsCmd.Flags().StringVar(&questionsDataDir, "data-dir", "", "Root of the durable cache")
}
