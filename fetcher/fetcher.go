package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	ierrors "github.com/cnosuke/pagemirror/internal/errors"
	"github.com/cnosuke/pagemirror/types"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

type Config struct {
	Timeout     int // Seconds
	UserAgent   string
	MaxBodySize int64
}

// Fetcher defines the interface for fetching raw URL content.
type Fetcher interface {
	// Fetch performs a single GET for urlStr. Any transport error, timeout,
	// non-2xx status or oversized body is returned as a *FetchError marked
	// with ierrors.ErrFetch. There are no retries.
	Fetch(ctx context.Context, urlStr string) (*types.FetchResult, error)
}

// FetchError describes a failed fetch. StatusCode is zero when no response
// was received.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ierrors.ErrFetch) hold for every FetchError.
func (e *FetchError) Is(target error) bool { return target == ierrors.ErrFetch }

var errBodyTooLarge = errors.New("response body exceeds size limit")

// httpFetcher implements the Fetcher interface using HTTP.
type httpFetcher struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
}

// NewHTTPFetcher creates a new httpFetcher. The client follows redirects
// with the default policy; no per-request state is kept on it, so the
// fetcher is safe for concurrent use.
func NewHTTPFetcher(cfg *Config) (Fetcher, error) {
	if cfg.Timeout <= 0 {
		return nil, errors.Newf("invalid fetch timeout: %d", cfg.Timeout)
	}

	zap.S().Debugw("creating new HTTP fetcher",
		"timeout", cfg.Timeout,
		"user_agent", cfg.UserAgent,
		"max_body_size", cfg.MaxBodySize)

	client := &http.Client{
		Timeout: time.Duration(cfg.Timeout) * time.Second,
	}

	return &httpFetcher{
		client:      client,
		userAgent:   cfg.UserAgent,
		maxBodySize: cfg.MaxBodySize,
	}, nil
}

func (f *httpFetcher) fail(urlStr string, status int, err error) *FetchError {
	return &FetchError{URL: urlStr, StatusCode: status, Err: err}
}

// Fetch fetches raw bytes from a single URL.
func (f *httpFetcher) Fetch(ctx context.Context, urlStr string) (*types.FetchResult, error) {
	zap.S().Debugw("fetching URL", "url", urlStr)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, f.fail(urlStr, 0, ierrors.Wrap(err, "failed to create request"))
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, f.fail(urlStr, 0, ierrors.Wrap(err, "failed to execute request"))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return nil, f.fail(urlStr, resp.StatusCode, errors.Newf("unexpected status %s", resp.Status))
	}

	var body io.Reader = resp.Body
	if f.maxBodySize > 0 {
		body = io.LimitReader(resp.Body, f.maxBodySize+1)
	}
	bodyBytes, err := io.ReadAll(body)
	if err != nil {
		return nil, f.fail(urlStr, resp.StatusCode, ierrors.Wrap(err, "failed to read response body"))
	}
	if f.maxBodySize > 0 && int64(len(bodyBytes)) > f.maxBodySize {
		return nil, f.fail(urlStr, resp.StatusCode, errBodyTooLarge)
	}

	finalURL := resp.Request.URL.String()
	originalURL := ""
	if finalURL != req.URL.String() {
		originalURL = urlStr
	}

	zap.S().Debugw(
		"response received",
		"url", finalURL,
		"status", resp.StatusCode,
		"content-length", resp.ContentLength,
		"bytes", len(bodyBytes),
		"content_type", resp.Header.Get("Content-Type"),
	)

	return &types.FetchResult{
		URL:         finalURL,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        bodyBytes,
		StatusCode:  resp.StatusCode,
		OriginalURL: originalURL,
	}, nil
}
