package fetch_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contestguard/harvester/internal/fetch"
)

func TestHttp(t *testing.T) {
	ctx := context.Background()

	e := echo.New()
	rootContent := "hello world"
	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, rootContent)
	})
	e.GET("/referer", func(c echo.Context) error {
		return c.String(http.StatusOK, c.Request().Header.Get("Referer"))
	})

	server := httptest.NewServer(e)
	defer server.Close()

	t.Run("ValidPath", func(t *testing.T) {
		expected := []byte(rootContent)
		fetcher := fetch.NewHTTPFetcher(retryablehttp.NewClient().StandardClient())
		body, err := fetcher.Fetch(ctx, fmt.Sprintf("%s/", server.URL))
		require.NoError(t, err, "failed to fetch")
		defer body.Close()

		actual, err := io.ReadAll(body)
		require.NoError(t, err, "failed to read content")

		require.Equal(t, expected, actual, "wrong body fetched")
	})

	t.Run("InvalidPath", func(t *testing.T) {
		fetcher := fetch.NewHTTPFetcher(retryablehttp.NewClient().StandardClient())
		_, err := fetcher.Fetch(ctx, fmt.Sprintf("%s/foobar", server.URL))
		require.Error(t, err, "expected to fail")
	})

	t.Run("HeaderOnEveryRequest", func(t *testing.T) {
		expected := "https://example.com/contest/weekly-1/ranking/"
		fetcher := fetch.NewHTTPFetcher(
			retryablehttp.NewClient().StandardClient(),
			fetch.WithHeader("Referer", expected),
		)
		body, err := fetcher.Fetch(ctx, fmt.Sprintf("%s/referer", server.URL))
		require.NoError(t, err, "failed to fetch")
		defer body.Close()

		actual, err := io.ReadAll(body)
		require.NoError(t, err, "failed to read content")

		assert.Equal(t, expected, string(actual), "referer not forwarded")
	})
}

func TestResilientClient(t *testing.T) {
	ctx := context.Background()

	t.Run("SecondTrySucceeds", func(t *testing.T) {
		var hits atomic.Int64
		e := echo.New()
		e.GET("/flaky", func(c echo.Context) error {
			if hits.Add(1) == 1 {
				return c.NoContent(http.StatusInternalServerError)
			}
			return c.String(http.StatusOK, "ok")
		})
		server := httptest.NewServer(e)
		defer server.Close()

		fetcher := fetch.NewHTTPFetcher(fetch.NewResilientClient())
		body, err := fetcher.Fetch(ctx, fmt.Sprintf("%s/flaky", server.URL))
		require.NoError(t, err, "one retry should have absorbed the failure")
		defer body.Close()

		assert.Equal(t, int64(2), hits.Load(), "expected exactly one retry")
	})

	t.Run("GivesUpAfterOneRetry", func(t *testing.T) {
		var hits atomic.Int64
		e := echo.New()
		e.GET("/broken", func(c echo.Context) error {
			hits.Add(1)
			return c.NoContent(http.StatusInternalServerError)
		})
		server := httptest.NewServer(e)
		defer server.Close()

		fetcher := fetch.NewHTTPFetcher(fetch.NewResilientClient())
		_, err := fetcher.Fetch(ctx, fmt.Sprintf("%s/broken", server.URL))
		require.Error(t, err, "expected to fail")

		assert.Equal(t, int64(2), hits.Load(), "retry budget is exactly one retry")
	})
}

func TestJSON(t *testing.T) {
	ctx := context.Background()

	e := echo.New()
	e.GET("/payload", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"name": "weekly-1", "count": 3})
	})
	e.GET("/garbage", func(c echo.Context) error {
		return c.String(http.StatusOK, "not json at all")
	})

	server := httptest.NewServer(e)
	defer server.Close()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	t.Run("Decodes", func(t *testing.T) {
		fetcher := fetch.NewHTTPFetcher(retryablehttp.NewClient().StandardClient())
		actual, err := fetch.JSON[payload](ctx, fetcher, fmt.Sprintf("%s/payload", server.URL))
		require.NoError(t, err, "failed to fetch json")

		assert.Equal(t, payload{Name: "weekly-1", Count: 3}, actual, "wrong payload decoded")
	})

	t.Run("Undecodable", func(t *testing.T) {
		fetcher := fetch.NewHTTPFetcher(retryablehttp.NewClient().StandardClient())
		_, err := fetch.JSON[payload](ctx, fetcher, fmt.Sprintf("%s/garbage", server.URL))
		require.Error(t, err, "expected to fail")
	})
}

func TestPost(t *testing.T) {
	ctx := context.Background()

	var lastBody atomic.Value
	e := echo.New()
	e.POST("/reports", func(c echo.Context) error {
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return err
		}
		lastBody.Store(string(body))
		return c.NoContent(http.StatusCreated)
	})
	e.POST("/rejected", func(c echo.Context) error {
		return c.NoContent(http.StatusForbidden)
	})

	server := httptest.NewServer(e)
	defer server.Close()

	t.Run("Accepted", func(t *testing.T) {
		fetcher := fetch.NewHTTPFetcher(retryablehttp.NewClient().StandardClient())
		err := fetcher.Post(ctx, fmt.Sprintf("%s/reports", server.URL), map[string]any{
			"contestTitleSlug": "weekly-1",
			"submission":       int64(42),
		})
		require.NoError(t, err, "failed to post")

		assert.JSONEq(t,
			`{"contestTitleSlug":"weekly-1","submission":42}`,
			lastBody.Load().(string),
			"wrong payload posted",
		)
	})

	t.Run("Rejected", func(t *testing.T) {
		fetcher := fetch.NewHTTPFetcher(retryablehttp.NewClient().StandardClient())
		err := fetcher.Post(ctx, fmt.Sprintf("%s/rejected", server.URL), map[string]any{})
		require.Error(t, err, "expected to fail")
	})
}
