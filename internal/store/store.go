package store

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer(
	"github.com/contestguard/harvester/internal/store",
)

//go:generate mockgen -destination ./mock/mock.go -package mock . Store

// Store is a durable key to blob mapping. Keys are slash separated relative
// paths. Entries are written once and never mutated in place; an existence
// check short-circuits network work for the caller.
type Store interface {
	// Check if an entry exists. Remote backends may always return false.
	Exists(ctx context.Context, key string) (bool, error)
	// Read an existing entry.
	Read(ctx context.Context, key string) (io.ReadCloser, error)
	// Create an entry, creating any parent hierarchy as needed.
	Write(ctx context.Context, key string, reader io.Reader) error
	// Glob returns keys matching a path.Match style pattern.
	Glob(ctx context.Context, pattern string) ([]string, error)
}
