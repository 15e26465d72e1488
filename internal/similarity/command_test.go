package similarity_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contestguard/harvester/internal/similarity"
)

func seedArtifacts(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range map[string]string{
		"1:alice:11.py3": "print('a')",
		"1:bob:12.py3":   "print('a')",
	} {
		err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644)
		require.NoError(t, err, "failed to seed artifact")
	}
	return dir
}

func TestCommandEngine(t *testing.T) {
	ctx := context.Background()

	t.Run("ParsesTriples", func(t *testing.T) {
		dir := seedArtifacts(t)

		engine := similarity.NewCommandEngine("sh", "-c",
			`echo "1:alice:11.py3 1:bob:12.py3 0.97"; true`)
		pairs, err := engine.Compare(ctx, dir)
		require.NoError(t, err, "failed to compare")

		require.Len(t, pairs, 1, "wrong pair count")
		assert.Equal(t,
			similarity.Pair{Left: "1:alice:11.py3", Right: "1:bob:12.py3", Score: 0.97},
			pairs[0],
			"wrong pair parsed",
		)
	})

	t.Run("StagesArtifactsForTheTool", func(t *testing.T) {
		dir := seedArtifacts(t)

		// The tool receives the staging directory as its last argument; the
		// staged names must match the cache entries or the probe exits nonzero.
		engine := similarity.NewCommandEngine("sh", "-c",
			`test -f "$0/1:alice:11.py3" && test -f "$0/1:bob:12.py3"`)
		pairs, err := engine.Compare(ctx, dir)
		require.NoError(t, err, "artifacts not staged for the tool")
		assert.Empty(t, pairs, "no output means no pairs")
	})

	t.Run("StagingLeavesTheCacheAlone", func(t *testing.T) {
		dir := seedArtifacts(t)

		engine := similarity.NewCommandEngine("sh", "-c", `rm -f "$0"/*; true`)
		_, err := engine.Compare(ctx, dir)
		require.NoError(t, err, "failed to compare")

		entries, err := os.ReadDir(dir)
		require.NoError(t, err, "failed to list cache")
		assert.Len(t, entries, 2, "the tool must only ever see the staged copy")
	})

	t.Run("CommandFailure", func(t *testing.T) {
		dir := seedArtifacts(t)

		engine := similarity.NewCommandEngine("sh", "-c", "exit 3")
		_, err := engine.Compare(ctx, dir)
		require.Error(t, err, "expected to fail")
	})

	t.Run("MalformedLine", func(t *testing.T) {
		dir := seedArtifacts(t)

		engine := similarity.NewCommandEngine("sh", "-c", `echo "only two"; true`)
		_, err := engine.Compare(ctx, dir)
		require.Error(t, err, "expected to fail")
	})

	t.Run("ScoreOutOfRange", func(t *testing.T) {
		dir := seedArtifacts(t)

		engine := similarity.NewCommandEngine("sh", "-c", `echo "a b 1.5"; true`)
		_, err := engine.Compare(ctx, dir)
		require.Error(t, err, "expected to fail")
	})
}
