// Package ranking discovers and harvests a contest's paginated leaderboard.
package ranking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/contestguard/harvester/internal/contest"
	"github.com/contestguard/harvester/internal/fetch"
	"github.com/contestguard/harvester/internal/store"
	"github.com/contestguard/harvester/internal/throttle"
)

var tracer = otel.Tracer(
	"github.com/contestguard/harvester/internal/ranking",
)

// A page payload must at least carry these members before it is trusted
// enough to be written to the cache. Anything else is treated like a failed
// fetch so a garbage response cannot poison an immutable cache entry.
var pageSchema = jsonschema.MustCompileString("ranking-page.json", `{
	"type": "object",
	"required": ["submissions", "total_rank"],
	"properties": {
		"submissions": {"type": "array"},
		"total_rank": {"type": "array"}
	}
}`)

// Raw wire shape of one ranking page. Submissions holds one map per
// contestant keyed by question id; total_rank carries the matching user
// slugs at the same indices.
type pagePayload struct {
	Questions   []contest.Question                   `json:"questions"`
	Submissions []map[string]contest.QuestionAttempt `json:"submissions"`
	TotalRank   []struct {
		UserSlug string `json:"user_slug"`
	} `json:"total_rank"`
}

type Config struct {
	// Ranking API base, e.g. https://leetcode.com/contest/api/ranking
	BaseURL string
	// Contest slug the run operates on
	Contest string
	// Records with fewer attempts than this are dropped before caching
	MinAttempts int
	// Throttle chunk size for HarvestAll
	ChunkSize int
	// Optional progress observer for HarvestAll
	Progress throttle.ProgressFunc
}

// Client resolves ranking pages through the cache store, falling back to the
// resilient fetcher. Cached pages are immutable and trusted forever.
type Client struct {
	fetcher fetch.Fetcher
	store   store.Store
	cfg     Config
}

func NewClient(fetcher fetch.Fetcher, st store.Store, cfg Config) *Client {
	if cfg.MinAttempts <= 0 {
		cfg.MinAttempts = 1
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1
	}
	return &Client{fetcher: fetcher, store: st, cfg: cfg}
}

func (c *Client) pageURL(page int) string {
	return fmt.Sprintf("%s/%s/?pagination=%d&region=global", c.cfg.BaseURL, c.cfg.Contest, page)
}

func pageKey(page int) string {
	return fmt.Sprintf("submissions/%d.json", page)
}

// FetchPage returns the filtered records of one ranking page, from cache
// when present. A failed or malformed fetch degrades to zero records and is
// not cached, so a later run can try again.
func (c *Client) FetchPage(ctx context.Context, page int) ([]contest.SubmissionRecord, error) {
	ctx, span := tracer.Start(ctx, "Client.FetchPage", trace.WithAttributes(
		attribute.Int("page", page),
	))
	defer span.End()

	key := pageKey(page)
	cached, err := c.store.Exists(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to check cache")
		return nil, err
	}

	if cached {
		records, err := c.readCachedPage(ctx, key)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to read cached page")
			return nil, err
		}
		span.SetAttributes(attribute.Bool("cache_hit", true))
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "served page from cache")
		return records, nil
	}

	payload, ok := c.fetchPagePayload(ctx, page)
	if !ok {
		// Degrade: the unit yields no data but the run continues.
		span.SetAttributes(attribute.Bool("degraded", true))
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "page degraded to empty")
		return nil, nil
	}

	records := buildRecords(payload, page, c.cfg.MinAttempts)

	encoded, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to encode page for cache")
		return nil, err
	}
	if err := c.store.Write(ctx, key, bytes.NewReader(encoded)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to cache page")
		return nil, err
	}

	span.SetAttributes(attribute.Int("records", len(records)))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "fetched and cached page")
	return records, nil
}

func (c *Client) readCachedPage(ctx context.Context, key string) ([]contest.SubmissionRecord, error) {
	rc, err := c.store.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var records []contest.SubmissionRecord
	if err := json.NewDecoder(rc).Decode(&records); err != nil {
		return nil, fmt.Errorf("corrupt cached page %s: %w", key, err)
	}
	return records, nil
}

// fetchPagePayload performs the network read and schema check. Both failure
// modes are reported the same way: no payload for this page.
func (c *Client) fetchPagePayload(ctx context.Context, page int) (pagePayload, bool) {
	var payload pagePayload

	body, err := c.fetcher.Fetch(ctx, c.pageURL(page))
	if err != nil {
		slog.WarnContext(ctx, "failed to fetch ranking page", "page", page, "error", err)
		return payload, false
	}
	defer body.Close()

	var raw bytes.Buffer
	var loose any
	if err := json.NewDecoder(io.TeeReader(body, &raw)).Decode(&loose); err != nil {
		slog.WarnContext(ctx, "undecodable ranking page", "page", page, "error", err)
		return payload, false
	}
	if err := pageSchema.Validate(loose); err != nil {
		slog.WarnContext(ctx, "ranking page failed schema validation", "page", page, "error", err)
		return payload, false
	}
	if err := json.Unmarshal(raw.Bytes(), &payload); err != nil {
		slog.WarnContext(ctx, "malformed ranking page", "page", page, "error", err)
		return payload, false
	}

	return payload, true
}

// buildRecords flattens the wire payload into records, dropping entrants
// below the attempt threshold before any code-fetch cost is incurred.
func buildRecords(payload pagePayload, page, minAttempts int) []contest.SubmissionRecord {
	records := make([]contest.SubmissionRecord, 0, len(payload.Submissions))
	for i, attemptsByQuestion := range payload.Submissions {
		if len(attemptsByQuestion) < minAttempts {
			continue
		}
		if i >= len(payload.TotalRank) {
			break
		}

		attempts := make([]contest.QuestionAttempt, 0, len(attemptsByQuestion))
		for _, a := range attemptsByQuestion {
			attempts = append(attempts, a)
		}
		// Map iteration order is random; keep cache entries deterministic.
		sort.Slice(attempts, func(x, y int) bool {
			return attempts[x].QuestionID < attempts[y].QuestionID
		})

		records = append(records, contest.SubmissionRecord{
			User:     payload.TotalRank[i].UserSlug,
			RankPage: page,
			Attempts: attempts,
		})
	}
	return records
}

// PageLimit finds the smallest page index whose direct fetch yields zero
// records: exponential probe to bracket the cutoff, then bisection. Cached
// pages make repeated probes free. An empty page 1 returns 1; callers must
// treat that as "no usable data".
func (c *Client) PageLimit(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "Client.PageLimit")
	defer span.End()

	low, high := 0, 1
	for {
		records, err := c.FetchPage(ctx, high)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "probe failed")
			return 0, err
		}
		if len(records) == 0 {
			break
		}
		low = high
		high *= 2
	}

	// Invariant: page low is non-empty (or low == 0), page high is empty.
	for low+1 < high {
		mid := (low + high) / 2
		records, err := c.FetchPage(ctx, mid)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "bisection probe failed")
			return 0, err
		}
		if len(records) > 0 {
			low = mid
		} else {
			high = mid
		}
	}

	span.SetAttributes(attribute.Int("page_limit", high))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "found page limit")
	return high, nil
}

// HarvestAll resolves pages 1..pageLimit under the throttle and flattens
// their records in page order. Per-page failures shrink the result set.
func (c *Client) HarvestAll(ctx context.Context, pageLimit int) ([]contest.SubmissionRecord, error) {
	ctx, span := tracer.Start(ctx, "Client.HarvestAll", trace.WithAttributes(
		attribute.Int("page_limit", pageLimit),
	))
	defer span.End()

	pages := make([][]contest.SubmissionRecord, pageLimit)
	failed, err := throttle.Run(ctx, pageLimit, c.cfg.ChunkSize, c.cfg.Progress,
		func(ctx context.Context, i int) error {
			records, err := c.FetchPage(ctx, i+1)
			if err != nil {
				return err
			}
			pages[i] = records
			return nil
		})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "harvest interrupted")
		return nil, err
	}

	var records []contest.SubmissionRecord
	for _, page := range pages {
		records = append(records, page...)
	}

	span.SetAttributes(
		attribute.Int("records", len(records)),
		attribute.Int("failed_pages", failed),
	)
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "harvested all pages")
	return records, nil
}

// FetchQuestions recovers the contest's question list from page 1 metadata.
// Independent of the ranking harvest; cached like everything else.
func (c *Client) FetchQuestions(ctx context.Context) ([]contest.Question, error) {
	ctx, span := tracer.Start(ctx, "Client.FetchQuestions")
	defer span.End()

	const key = "questions.json"
	cached, err := c.store.Exists(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to check cache")
		return nil, err
	}

	if cached {
		rc, err := c.store.Read(ctx, key)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to read cached questions")
			return nil, err
		}
		defer rc.Close()

		var questions []contest.Question
		if err := json.NewDecoder(rc).Decode(&questions); err != nil {
			err = fmt.Errorf("corrupt cached questions: %w", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "corrupt cached questions")
			return nil, err
		}
		span.SetAttributes(attribute.Bool("cache_hit", true))
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "served questions from cache")
		return questions, nil
	}

	payload, err := fetch.JSON[pagePayload](ctx, c.fetcher, c.pageURL(1))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch questions")
		return nil, err
	}
	if len(payload.Questions) == 0 {
		err = fmt.Errorf("contest %s reports no questions", c.cfg.Contest)
		span.RecordError(err)
		span.SetStatus(codes.Error, "empty question list")
		return nil, err
	}

	encoded, err := json.MarshalIndent(payload.Questions, "", "  ")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to encode questions")
		return nil, err
	}
	if err := c.store.Write(ctx, key, bytes.NewReader(encoded)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to cache questions")
		return nil, err
	}

	span.SetAttributes(attribute.Int("questions", len(payload.Questions)))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "fetched and cached questions")
	return payload.Questions, nil
}
