package report_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contestguard/harvester/internal/report"
	"github.com/contestguard/harvester/internal/similarity"
)

func pair(left, right string, score float64) similarity.Pair {
	return similarity.Pair{Left: left, Right: right, Score: score}
}

func TestAggregate(t *testing.T) {
	ctx := context.Background()

	t.Run("OneRowPerUser", func(t *testing.T) {
		pairs := []similarity.Pair{
			pair("1:alice:11.py3", "1:bob:12.py3", 0.97),
			pair("1:alice:11.py3", "2:carol:13.py3", 0.96),
			pair("2:dave:14.py3", "2:erin:15.py3", 0.95),
		}

		rows := report.Aggregate(ctx, pairs, 0.95)

		require.Len(t, rows, 2, "wrong row count")
		assert.Equal(t, "alice", rows[0].User1, "best pair must come first")
		assert.Equal(t, "bob", rows[0].User2, "best pair must come first")
		assert.Equal(t, "dave", rows[1].User1, "fresh pair must still be emitted")
		// carol only ever appeared next to the already-consumed alice.
		for _, row := range rows {
			assert.NotEqual(t, "carol", row.User1, "consumed pairing must be dropped")
			assert.NotEqual(t, "carol", row.User2, "consumed pairing must be dropped")
		}
	})

	t.Run("DropsBelowTolerance", func(t *testing.T) {
		pairs := []similarity.Pair{
			pair("1:alice:11.py3", "1:bob:12.py3", 0.9499),
			pair("1:carol:13.py3", "1:dave:14.py3", 0.95),
		}

		rows := report.Aggregate(ctx, pairs, 0.95)

		require.Len(t, rows, 1, "wrong row count")
		assert.Equal(t, "carol", rows[0].User1, "only the at-tolerance pair survives")
	})

	t.Run("DropsSelfPairs", func(t *testing.T) {
		pairs := []similarity.Pair{
			pair("1:alice:11.py3", "1:alice:12.py3", 0.99),
		}

		rows := report.Aggregate(ctx, pairs, 0.5)
		assert.Empty(t, rows, "a user's own submissions must never match")
	})

	t.Run("SkipsUndecodablePaths", func(t *testing.T) {
		pairs := []similarity.Pair{
			pair("garbage", "1:bob:12.py3", 0.99),
			pair("1:alice:11.py3", "1:bob:12.py3", 0.96),
		}

		rows := report.Aggregate(ctx, pairs, 0.95)

		require.Len(t, rows, 1, "undecodable pair must be skipped, not fatal")
		assert.Equal(t, "alice", rows[0].User1, "wrong row emitted")
	})

	t.Run("RanksByScoreDescending", func(t *testing.T) {
		pairs := []similarity.Pair{
			pair("1:alice:11.py3", "1:bob:12.py3", 0.95),
			pair("1:carol:13.py3", "1:dave:14.py3", 0.99),
		}

		rows := report.Aggregate(ctx, pairs, 0.9)

		require.Len(t, rows, 2, "wrong row count")
		assert.Equal(t, 0.99, rows[0].Score, "rows must be ranked by score")
		assert.Equal(t, 0.95, rows[1].Score, "rows must be ranked by score")
	})

	t.Run("CarriesKeyFields", func(t *testing.T) {
		pairs := []similarity.Pair{
			pair("codes/100/py3/3:alice:11.py3", "codes/100/cpp/5:bob:12.cpp", 0.97),
		}

		rows := report.Aggregate(ctx, pairs, 0.95)

		require.Len(t, rows, 1, "wrong row count")
		row := rows[0]
		assert.Equal(t, int64(11), row.Submission1, "wrong submission id")
		assert.Equal(t, 3, row.Rank1, "wrong rank page")
		assert.Equal(t, int64(12), row.Submission2, "wrong submission id")
		assert.Equal(t, 5, row.Rank2, "wrong rank page")
	})
}

func TestFormatPercent(t *testing.T) {
	for score, expected := range map[float64]string{
		0.97123: "97.12%",
		1:       "100%",
		0.9:     "90%",
		0.5:     "50%",
		0:       "0%",
	} {
		assert.Equal(t, expected, report.FormatPercent(score), "wrong rendering for %v", score)
	}
}
