// Package report folds pairwise similarity results into a deduplicated,
// ranked, human-auditable report.
package report

import (
	"context"
	"log/slog"
	"sort"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/contestguard/harvester/internal/contest"
	"github.com/contestguard/harvester/internal/similarity"
)

var tracer = otel.Tracer(
	"github.com/contestguard/harvester/internal/report",
)

// One published match. Users, submissions and rank pages come in pairs; the
// score is the similarity the external engine reported.
type Row struct {
	User1       string
	Submission1 int64
	Rank1       int
	User2       string
	Submission2 int64
	Rank2       int
	Score       float64
}

// Aggregate turns raw similarity pairs into the published row list:
// self-pairs are discarded, pairs below tolerance are dropped, the rest are
// ranked by score descending (stable), and a greedy scan emits at most one
// row per user. Pairs whose artifact paths do not decode are skipped with a
// diagnostic, consistent with the rest of the pipeline's degrade-don't-abort
// policy.
func Aggregate(ctx context.Context, pairs []similarity.Pair, tolerance float64) []Row {
	_, span := tracer.Start(ctx, "Aggregate")
	defer span.End()

	span.SetAttributes(
		attribute.Int("pairs", len(pairs)),
		attribute.Float64("tolerance", tolerance),
	)

	type candidate struct {
		left  contest.ArtifactKey
		right contest.ArtifactKey
		score float64
	}

	candidates := make([]candidate, 0, len(pairs))
	for _, p := range pairs {
		left, err := contest.ParseArtifactName(p.Left)
		if err != nil {
			slog.WarnContext(ctx, "skipping undecodable pair", "path", p.Left, "error", err)
			continue
		}
		right, err := contest.ParseArtifactName(p.Right)
		if err != nil {
			slog.WarnContext(ctx, "skipping undecodable pair", "path", p.Right, "error", err)
			continue
		}

		// A user's own submission must never match itself in the report.
		if left.User == right.User {
			continue
		}
		if p.Score < tolerance {
			continue
		}

		candidates = append(candidates, candidate{left: left, right: right, score: p.Score})
	}

	// Ties keep their original order.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	consumed := make(map[string]bool)
	rows := make([]Row, 0, len(candidates))
	for _, c := range candidates {
		// Once a user is in a published row, no later pairing may re-flag
		// them, so only fully fresh pairs are emitted.
		if consumed[c.left.User] || consumed[c.right.User] {
			continue
		}
		consumed[c.left.User] = true
		consumed[c.right.User] = true

		rows = append(rows, Row{
			User1:       c.left.User,
			Submission1: c.left.SubmissionID,
			Rank1:       c.left.RankPage,
			User2:       c.right.User,
			Submission2: c.right.SubmissionID,
			Rank2:       c.right.RankPage,
			Score:       c.score,
		})
	}

	span.SetAttributes(attribute.Int("rows", len(rows)))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "aggregated matches")
	return rows
}

// FormatPercent renders a similarity score as a percentage with four
// significant digits, e.g. 0.97123 -> "97.12%".
func FormatPercent(score float64) string {
	return strconv.FormatFloat(score*100, 'g', 4, 64) + "%"
}
