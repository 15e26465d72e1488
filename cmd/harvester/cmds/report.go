package cmds

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/codes"

	"github.com/contestguard/harvester/internal/config"
	"github.com/contestguard/harvester/internal/fetch"
	"github.com/contestguard/harvester/internal/logger"
	"github.com/contestguard/harvester/internal/runerrors"
)

var reportDescription string

type reportPayload struct {
	ContestTitleSlug string `json:"contestTitleSlug"`
	Submission       int64  `json:"submission"`
	Description      string `json:"description"`
}

var reportCmd = &cobra.Command{
	Use:   "report <contest_slug> <submission_id>",
	Short: "File a cheating report for one submission",
	Long: `Posts a report for the given submission to the contest site's report
endpoint. The description defaults to a note pointing at the published
match table.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "reportCmd")
		defer span.End()

		cfg, err := config.GetConfig()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to load config")
			return err
		}

		contestSlug := args[0]
		submissionID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "bad submission id")
			return runerrors.ExitErrorWrap(
				runerrors.ExitBadArgs,
				fmt.Errorf("submission_id must be an integer: %w", err),
			)
		}

		description := reportDescription
		if description == "" {
			description = fmt.Sprintf("Flagged as a near-duplicate in the %s match report.", contestSlug)
		}

		fetcher := fetch.NewHTTPFetcher(fetch.NewResilientClient(),
			fetch.WithHeader("Referer", fmt.Sprintf("%s/contest/%s/ranking/", cfg.SiteBaseURL, contestSlug)),
		)

		url := fmt.Sprintf("%s/contest/api/reports/", cfg.SiteBaseURL)
		err = fetcher.Post(ctx, url, reportPayload{
			ContestTitleSlug: contestSlug,
			Submission:       submissionID,
			Description:      description,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to post report")
			return err
		}

		logger.Logger.InfoContext(ctx,
			"filed report",
			"contest", contestSlug,
			"submission", submissionID,
		)

		span.RecordError(nil)
		span.SetStatus(codes.Ok, "filed report")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVar(&reportDescription, "description", "", "Report text sent to the site")
}
