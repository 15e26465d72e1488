package store

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Ensure MinioStore implements Store interface.
var _ Store = (*MinioStore)(nil)

// Minio (S3) backed store. Used as an optional mirror for harvested
// artifacts; the filesystem store stays authoritative for the pipeline.
type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(
	endpoint, id, secret string,
	ssl bool,
	bucket string,
) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(id, secret, ""),
		Secure: ssl,
	})
	if err != nil {
		return nil, err
	}

	return &MinioStore{
		client: client,
		bucket: bucket,
	}, nil
}

func NewMinioStoreFromClient(client *minio.Client, bucket string) *MinioStore {
	return &MinioStore{
		client: client,
		bucket: bucket,
	}
}

func (s *MinioStore) Exists(ctx context.Context, key string) (bool, error) {
	ctx, span := tracer.Start(ctx, "MinioStore.Exists", trace.WithAttributes(
		attribute.String("key", key),
	))
	defer span.End()

	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		errResponse := minio.ToErrorResponse(err)
		if errResponse.Code == "NoSuchKey" {
			span.RecordError(nil)
			span.SetStatus(codes.Ok, "did not find object")
			return false, nil
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to stat object")
		return false, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "statted object")
	return true, nil
}

func (s *MinioStore) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx, span := tracer.Start(ctx, "MinioStore.Read", trace.WithAttributes(
		attribute.String("key", key),
	))
	defer span.End()

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get object")
		return nil, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "got object")
	return obj, nil
}

func (s *MinioStore) Write(ctx context.Context, key string, reader io.Reader) error {
	ctx, span := tracer.Start(ctx, "MinioStore.Write", trace.WithAttributes(
		attribute.String("key", key),
	))
	defer span.End()

	_, err := s.client.PutObject(ctx, s.bucket, key, reader, -1, minio.PutObjectOptions{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put object")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "put object")
	return nil
}

func (s *MinioStore) Glob(ctx context.Context, pattern string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "MinioStore.Glob", trace.WithAttributes(
		attribute.String("pattern", pattern),
	))
	defer span.End()

	// List by the literal prefix before the first wildcard, then match.
	prefix := pattern
	if i := strings.IndexAny(pattern, "*?["); i >= 0 {
		prefix = pattern[:i]
	}

	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			span.RecordError(obj.Err)
			span.SetStatus(codes.Error, "failed to list objects")
			return nil, obj.Err
		}
		ok, err := path.Match(pattern, obj.Key)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "bad glob pattern")
			return nil, err
		}
		if ok {
			keys = append(keys, obj.Key)
		}
	}

	span.SetAttributes(attribute.Int("matches", len(keys)))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "globbed objects")
	return keys, nil
}
