package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Ensure HTTPFetcher implements Fetcher interface.
var _ Fetcher = (*HTTPFetcher)(nil)

type HTTPFetcher struct {
	client  *http.Client
	headers http.Header
}

type Option func(*HTTPFetcher)

// WithHeader sets a header on every outgoing request. The ranking API
// rejects requests without the contest referer, so runs set it here.
func WithHeader(key, value string) Option {
	return func(f *HTTPFetcher) {
		f.headers.Set(key, value)
	}
}

func NewHTTPFetcher(client *http.Client, opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client:  client,
		headers: make(http.Header),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// NewResilientClient returns an http client with the pipeline's retry
// budget: one retry on a transient failure, then give up.
func NewResilientClient() *http.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 1
	c.Logger = nil
	return c.StandardClient()
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	ctx, span := tracer.Start(ctx, "HTTPFetcher.Fetch", trace.WithAttributes(
		attribute.String("url", url),
	))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to construct request")
		return nil, err
	}
	for key, values := range f.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to perform request")
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		err = fmt.Errorf("invalid status code: %d", resp.StatusCode)
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid status code")
		return nil, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "fetched by http")
	return resp.Body, nil
}

// Post sends a JSON payload and drains the response. Used for the
// fire-and-forget report endpoint; the response body is not interpreted.
func (f *HTTPFetcher) Post(ctx context.Context, url string, payload any) error {
	ctx, span := tracer.Start(ctx, "HTTPFetcher.Post", trace.WithAttributes(
		attribute.String("url", url),
	))
	defer span.End()

	body, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal payload")
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to construct request")
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for key, values := range f.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to perform request")
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		err = fmt.Errorf("invalid status code: %d", resp.StatusCode)
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid status code")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "posted by http")
	return nil
}

// JSON fetches url through f and decodes the body into T.
func JSON[T any](ctx context.Context, f Fetcher, url string) (T, error) {
	var out T

	body, err := f.Fetch(ctx, url)
	if err != nil {
		return out, err
	}
	defer body.Close()

	if err := json.NewDecoder(body).Decode(&out); err != nil {
		return out, fmt.Errorf("failed to decode response from %s: %w", url, err)
	}

	return out, nil
}
