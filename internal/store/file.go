package store

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Ensure FileStore implements Store interface.
var _ Store = (*FileStore)(nil)

// Filesystem backed store rooted at a directory. Writes go through a .part
// temp file and a rename so readers never observe a partial entry.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *FileStore) Exists(ctx context.Context, key string) (bool, error) {
	_, span := tracer.Start(ctx, "FileStore.Exists", trace.WithAttributes(
		attribute.String("key", key),
	))
	defer span.End()

	fi, err := os.Stat(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			span.RecordError(nil)
			span.SetStatus(codes.Ok, "did not find entry")
			return false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to stat entry")
		return false, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "statted entry")
	return fi.Mode().IsRegular(), nil
}

func (s *FileStore) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	_, span := tracer.Start(ctx, "FileStore.Read", trace.WithAttributes(
		attribute.String("key", key),
	))
	defer span.End()

	f, err := os.Open(s.path(key))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open entry")
		return nil, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "opened entry")
	return f, nil
}

func (s *FileStore) Write(ctx context.Context, key string, reader io.Reader) error {
	_, span := tracer.Start(ctx, "FileStore.Write", trace.WithAttributes(
		attribute.String("key", key),
	))
	defer span.End()

	dst := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create parent hierarchy")
		return err
	}

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create temp entry")
		return err
	}

	_, werr := io.Copy(out, reader)
	cerr := out.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(tmp)
		err = errors.Join(werr, cerr)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write entry")
		return err
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to rename entry into place")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "wrote entry")
	return nil
}

func (s *FileStore) Glob(ctx context.Context, pattern string) ([]string, error) {
	_, span := tracer.Start(ctx, "FileStore.Glob", trace.WithAttributes(
		attribute.String("pattern", pattern),
	))
	defer span.End()

	matches, err := filepath.Glob(filepath.Join(s.root, filepath.FromSlash(pattern)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bad glob pattern")
		return nil, err
	}

	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		rel, err := filepath.Rel(s.root, m)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to relativize match")
			return nil, err
		}
		keys = append(keys, filepath.ToSlash(rel))
	}

	span.SetAttributes(attribute.Int("matches", len(keys)))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "globbed entries")
	return keys, nil
}

// Root returns the directory the store is rooted at. External collaborators
// (the similarity engine) need a real directory to point tools at.
func (s *FileStore) Root() string {
	return s.root
}
