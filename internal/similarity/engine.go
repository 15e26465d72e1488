// Package similarity wraps the external code-similarity engine.
package similarity

import (
	"context"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer(
	"github.com/contestguard/harvester/internal/similarity",
)

//go:generate mockgen -destination ./mock/mock.go -package mock . Engine

// One scored comparison between two artifacts. Left and Right are artifact
// paths whose base names encode the artifact key.
type Pair struct {
	Left  string
	Right string
	Score float64
}

// Engine computes pairwise similarity over the artifact tree rooted at dir.
// The algorithm itself is an external collaborator; the pipeline only
// consumes its scored pairs.
type Engine interface {
	Compare(ctx context.Context, dir string) ([]Pair, error)
}
