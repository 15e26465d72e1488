package store_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contestguard/harvester/internal/store"
)

func TestFileStore(t *testing.T) {
	ctx := context.Background()

	t.Run("WriteThenRead", func(t *testing.T) {
		s, err := store.NewFileStore(t.TempDir())
		require.NoError(t, err, "failed to create store")

		expected := "print('hello')"
		err = s.Write(ctx, "codes/1/py3/1:alice:42.py3", strings.NewReader(expected))
		require.NoError(t, err, "failed to write entry")

		rc, err := s.Read(ctx, "codes/1/py3/1:alice:42.py3")
		require.NoError(t, err, "failed to read entry")
		defer rc.Close()

		actual, err := io.ReadAll(rc)
		require.NoError(t, err, "failed to read content")

		assert.Equal(t, expected, string(actual), "wrong content read")
	})

	t.Run("Exists", func(t *testing.T) {
		s, err := store.NewFileStore(t.TempDir())
		require.NoError(t, err, "failed to create store")

		ok, err := s.Exists(ctx, "submissions/1.json")
		require.NoError(t, err, "failed to check existence")
		assert.False(t, ok, "entry should not exist yet")

		err = s.Write(ctx, "submissions/1.json", strings.NewReader("[]"))
		require.NoError(t, err, "failed to write entry")

		ok, err = s.Exists(ctx, "submissions/1.json")
		require.NoError(t, err, "failed to check existence")
		assert.True(t, ok, "entry should exist")
	})

	t.Run("NoPartLeftBehind", func(t *testing.T) {
		root := t.TempDir()
		s, err := store.NewFileStore(root)
		require.NoError(t, err, "failed to create store")

		err = s.Write(ctx, "questions.json", strings.NewReader("[]"))
		require.NoError(t, err, "failed to write entry")

		_, err = os.Stat(filepath.Join(root, "questions.json.part"))
		assert.True(t, os.IsNotExist(err), "temp entry left behind after rename")
	})

	t.Run("Glob", func(t *testing.T) {
		s, err := store.NewFileStore(t.TempDir())
		require.NoError(t, err, "failed to create store")

		for _, key := range []string{
			"codes/1/py3/1:alice:42.py3",
			"codes/1/cpp/1:bob:43.cpp",
			"codes/2/py3/1:alice:44.py3",
		} {
			err = s.Write(ctx, key, strings.NewReader("x"))
			require.NoError(t, err, "failed to write entry")
		}

		keys, err := s.Glob(ctx, "codes/1/*/1:alice:*")
		require.NoError(t, err, "failed to glob entries")

		assert.Equal(t, []string{"codes/1/py3/1:alice:42.py3"}, keys, "wrong matches globbed")
	})

	t.Run("GlobNoMatch", func(t *testing.T) {
		s, err := store.NewFileStore(t.TempDir())
		require.NoError(t, err, "failed to create store")

		keys, err := s.Glob(ctx, "codes/9/*/*")
		require.NoError(t, err, "failed to glob entries")
		assert.Empty(t, keys, "expected no matches")
	})
}
