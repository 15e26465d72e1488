package store

import (
	"context"
	"io"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/codes"
)

// Ensure RetryStore implements Store interface.
var _ Store = (*RetryStore)(nil)

// Meta store that wraps store operations in backoff loops. Disk and S3
// operations are not latency sensitive here, only completeness matters.
type RetryStore struct {
	store   Store
	backoff func() retry.Backoff
}

func NewRetryStoreBackoff(store Store, backoff func() retry.Backoff) *RetryStore {
	return &RetryStore{
		store:   store,
		backoff: backoff,
	}
}

func NewRetryStore(store Store) *RetryStore {
	return &RetryStore{
		store: store,
		backoff: func() retry.Backoff {
			b := retry.NewExponential(250 * time.Millisecond)
			b = retry.WithMaxRetries(3, b)
			return b
		},
	}
}

func (r *RetryStore) Exists(ctx context.Context, key string) (bool, error) {
	ctx, span := tracer.Start(ctx, "RetryStore.Exists")
	defer span.End()

	var exists bool
	err := retry.Do(ctx, r.backoff(), func(rctx context.Context) error {
		var err error
		exists, err = r.store.Exists(rctx, key)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to check existence")
		return false, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "checked existence")
	return exists, nil
}

func (r *RetryStore) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx, span := tracer.Start(ctx, "RetryStore.Read")
	defer span.End()

	var rc io.ReadCloser
	err := retry.Do(ctx, r.backoff(), func(rctx context.Context) error {
		var err error
		rc, err = r.store.Read(rctx, key)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read entry")
		return nil, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "read entry")
	return rc, nil
}

// Write retries only when the payload can be rewound; a plain reader gets a
// single attempt since a second one would see a drained stream.
func (r *RetryStore) Write(ctx context.Context, key string, reader io.Reader) error {
	ctx, span := tracer.Start(ctx, "RetryStore.Write")
	defer span.End()

	seeker, rewindable := reader.(io.ReadSeeker)
	if !rewindable {
		err := r.store.Write(ctx, key, reader)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to write entry")
			return err
		}
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "wrote entry")
		return nil
	}

	err := retry.Do(ctx, r.backoff(), func(rctx context.Context) error {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return err
		}
		if err := r.store.Write(rctx, key, seeker); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write entry")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "wrote entry")
	return nil
}

func (r *RetryStore) Glob(ctx context.Context, pattern string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "RetryStore.Glob")
	defer span.End()

	var keys []string
	err := retry.Do(ctx, r.backoff(), func(rctx context.Context) error {
		var err error
		keys, err = r.store.Glob(rctx, pattern)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to glob entries")
		return nil, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "globbed entries")
	return keys, nil
}
