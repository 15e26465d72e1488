// Package code retrieves the source of selected submissions into the
// artifact cache.
package code

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/contestguard/harvester/internal/contest"
	"github.com/contestguard/harvester/internal/fetch"
	"github.com/contestguard/harvester/internal/hash"
	"github.com/contestguard/harvester/internal/store"
	"github.com/contestguard/harvester/internal/throttle"
)

var tracer = otel.Tracer(
	"github.com/contestguard/harvester/internal/code",
)

// One persisted code artifact. Lang is empty when the artifact was reused
// from a previous run.
type Artifact struct {
	Key  contest.ArtifactKey
	Path string
	Lang string
}

// Wire shape of the submission API response.
type submissionPayload struct {
	Lang string `json:"lang"`
	Code string `json:"code"`
}

// Language identifiers that do not double as file extensions.
var extensionRenames = map[string]string{
	"python3":    "py3",
	"javascript": "js",
}

func extensionFor(lang string) string {
	if ext, ok := extensionRenames[lang]; ok {
		return ext
	}
	return lang
}

type Config struct {
	// DataRegion to API domain, e.g. "US" -> https://leetcode.com
	Regions map[string]string
	// Attempts from these regions are dropped entirely, never substituted
	ExcludedRegions []string
	// Throttle chunk size
	ChunkSize int
	// Optional progress observer
	Progress throttle.ProgressFunc
}

// Harvester fetches per-submission source through the resilient fetcher and
// persists it under the artifact cache. An optional mirror store receives a
// copy of every new artifact.
type Harvester struct {
	fetcher fetch.Fetcher
	store   store.Store
	mirror  store.Store
	cfg     Config
}

func NewHarvester(fetcher fetch.Fetcher, st store.Store, cfg Config) *Harvester {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1
	}
	return &Harvester{fetcher: fetcher, store: st, cfg: cfg}
}

// WithMirror mirrors newly fetched artifacts into a second store.
func (h *Harvester) WithMirror(mirror store.Store) *Harvester {
	h.mirror = mirror
	return h
}

func (h *Harvester) excluded(region string) bool {
	for _, r := range h.cfg.ExcludedRegions {
		if strings.EqualFold(r, region) {
			return true
		}
	}
	return false
}

type unit struct {
	key     contest.ArtifactKey
	attempt contest.QuestionAttempt
}

// Harvest retrieves the source of every surviving attempt at questionID.
// An existing artifact for a key, whatever its extension, short-circuits
// the network call. Failed units are logged and omitted from the result.
func (h *Harvester) Harvest(
	ctx context.Context,
	records []contest.SubmissionRecord,
	questionID int,
) ([]Artifact, error) {
	ctx, span := tracer.Start(ctx, "Harvester.Harvest", trace.WithAttributes(
		attribute.Int("question_id", questionID),
		attribute.Int("records", len(records)),
	))
	defer span.End()

	units := make([]unit, 0, len(records))
	for _, record := range records {
		attempt, ok := record.Attempt(questionID)
		if !ok {
			continue
		}
		if h.excluded(attempt.DataRegion) {
			continue
		}
		units = append(units, unit{
			key: contest.ArtifactKey{
				RankPage:     record.RankPage,
				User:         record.User,
				SubmissionID: attempt.SubmissionID,
			},
			attempt: attempt,
		})
	}

	results := make([]*Artifact, len(units))
	failed, err := throttle.Run(ctx, len(units), h.cfg.ChunkSize, h.cfg.Progress,
		func(ctx context.Context, i int) error {
			artifact, err := h.harvestOne(ctx, units[i], questionID)
			if err != nil {
				return err
			}
			results[i] = artifact
			return nil
		})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "harvest interrupted")
		return nil, err
	}

	artifacts := make([]Artifact, 0, len(units))
	for _, a := range results {
		if a != nil {
			artifacts = append(artifacts, *a)
		}
	}

	span.SetAttributes(
		attribute.Int("artifacts", len(artifacts)),
		attribute.Int("failed", failed),
	)
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "harvested code")
	return artifacts, nil
}

func (h *Harvester) harvestOne(ctx context.Context, u unit, questionID int) (*Artifact, error) {
	ctx, span := tracer.Start(ctx, "Harvester.harvestOne", trace.WithAttributes(
		attribute.String("key", u.key.Encode()),
	))
	defer span.End()

	// Any extension counts as already fetched.
	pattern := fmt.Sprintf("codes/%d/*/%s.*", questionID, u.key.Encode())
	existing, err := h.store.Glob(ctx, pattern)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to probe cache")
		return nil, err
	}
	if len(existing) > 0 {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "reused existing artifact")
		return &Artifact{Key: u.key, Path: existing[0]}, nil
	}

	domain, ok := h.cfg.Regions[u.attempt.DataRegion]
	if !ok {
		err := fmt.Errorf("no API domain for region %q", u.attempt.DataRegion)
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown data region")
		return nil, err
	}

	url := fmt.Sprintf("%s/api/submissions/%d", domain, u.key.SubmissionID)
	payload, err := fetch.JSON[submissionPayload](ctx, h.fetcher, url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch submission")
		return nil, err
	}
	if payload.Code == "" {
		err := fmt.Errorf("submission %d returned no code", u.key.SubmissionID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "empty submission body")
		return nil, err
	}

	ext := extensionFor(payload.Lang)
	path := fmt.Sprintf("codes/%d/%s/%s.%s", questionID, ext, u.key.Encode(), ext)

	if err := h.store.Write(ctx, path, strings.NewReader(payload.Code)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist artifact")
		return nil, err
	}
	if h.mirror != nil {
		if err := h.mirror.Write(ctx, path, strings.NewReader(payload.Code)); err != nil {
			// The mirror is best effort; the filesystem copy is authoritative.
			slog.WarnContext(ctx, "failed to mirror artifact", "path", path, "error", err)
		}
	}

	span.SetAttributes(
		attribute.String("lang", payload.Lang),
		attribute.String("sha256", hash.Buffer([]byte(payload.Code))),
	)
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "persisted artifact")
	return &Artifact{Key: u.key, Path: path, Lang: payload.Lang}, nil
}
