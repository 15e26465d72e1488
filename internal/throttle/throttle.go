// Package throttle executes independent units of work in fixed-size
// concurrent chunks with a hard barrier between chunks.
package throttle

import (
	"context"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer(
	"github.com/contestguard/harvester/internal/throttle",
)

// ProgressFunc observes coarse progress. It is called once per unit after
// the unit settles, success or failure alike.
type ProgressFunc func(completed, total int)

// LogProgress reports progress through slog at debug level.
func LogProgress(completed, total int) {
	slog.Debug("progress", "completed", completed, "total", total)
}

// Run executes unit(ctx, i) for i in [0, total) with at most chunkSize units
// in flight. Chunk k+1 does not start until every unit of chunk k has
// settled. Unit errors are swallowed and counted; they never abort the run.
// Returns the number of failed units. Stops early only when ctx is done.
func Run(
	ctx context.Context,
	total int,
	chunkSize int,
	progress ProgressFunc,
	unit func(ctx context.Context, index int) error,
) (int, error) {
	ctx, span := tracer.Start(ctx, "throttle.Run")
	defer span.End()

	span.SetAttributes(
		attribute.Int("total", total),
		attribute.Int("chunkSize", chunkSize),
	)

	if chunkSize <= 0 {
		chunkSize = 1
	}
	if progress == nil {
		progress = func(int, int) {}
	}

	var completed atomic.Int64
	var failed atomic.Int64

	for start := 0; start < total; start += chunkSize {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "context done between chunks")
			return int(failed.Load()), err
		}

		end := min(start+chunkSize, total)

		g := new(errgroup.Group)
		for i := start; i < end; i++ {
			g.Go(func() error {
				if err := unit(ctx, i); err != nil {
					failed.Add(1)
					slog.WarnContext(ctx, "unit of work failed", "index", i, "error", err)
				}
				progress(int(completed.Add(1)), total)
				// Failures degrade the result set; they do not stop the run.
				return nil
			})
		}
		// Barrier: the group never returns an error, Wait is purely a join.
		_ = g.Wait()
	}

	span.SetAttributes(attribute.Int64("failed", failed.Load()))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "ran all units")
	return int(failed.Load()), nil
}
