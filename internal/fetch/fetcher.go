package fetch

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer(
	"github.com/contestguard/harvester/internal/fetch",
)

//go:generate mockgen -destination ./mock/mock.go -package mock . Fetcher

// Fetcher performs one logical remote read. Implementations own the retry
// budget; callers treat a returned error as "no data for this unit" and
// carry on with a reduced result set.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}
