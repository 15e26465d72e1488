package similarity

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	cp "github.com/otiai10/copy"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Ensure CommandEngine implements Engine interface.
var _ Engine = (*CommandEngine)(nil)

// CommandEngine shells out to a similarity tool. The artifact tree is staged
// into a throwaway directory first so the tool cannot disturb the cache, and
// the tool's stdout is parsed as one whitespace-separated
// "left right score" triple per line, score in [0,1].
type CommandEngine struct {
	command string
	args    []string
}

func NewCommandEngine(command string, args ...string) *CommandEngine {
	return &CommandEngine{command: command, args: args}
}

func (e *CommandEngine) Compare(ctx context.Context, dir string) ([]Pair, error) {
	ctx, span := tracer.Start(ctx, "CommandEngine.Compare", trace.WithAttributes(
		attribute.String("command", e.command),
		attribute.String("dir", dir),
	))
	defer span.End()

	staging, err := os.MkdirTemp("", "harvester-similarity-")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create staging dir")
		return nil, err
	}
	defer os.RemoveAll(staging)

	if err := cp.Copy(dir, staging); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to stage artifacts")
		return nil, err
	}

	args := append(append([]string{}, e.args...), staging)
	cmd := exec.CommandContext(ctx, e.command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		span.SetAttributes(attribute.String("stderr", stderr.String()))
		span.RecordError(err)
		span.SetStatus(codes.Error, "similarity command failed")
		return nil, fmt.Errorf("similarity command failed: %w: %s", err, stderr.String())
	}

	pairs, err := parsePairs(stdout.String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unparseable similarity output")
		return nil, err
	}

	span.SetAttributes(attribute.Int("pairs", len(pairs)))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "compared artifacts")
	return pairs, nil
}

func parsePairs(output string) ([]Pair, error) {
	var pairs []Pair
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("malformed similarity line %q", line)
		}

		score, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("malformed score in %q: %w", line, err)
		}
		if score < 0 || score > 1 {
			return nil, fmt.Errorf("score out of range in %q", line)
		}

		pairs = append(pairs, Pair{Left: fields[0], Right: fields[1], Score: score})
	}
	return pairs, nil
}
