package navigation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Fetcher performs the single GET an engine issues.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) (string, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, url string) (string, error) { return f(ctx, url) }

const (
	DefaultUserAgent    = "ctxnav/1.0 (+context-navigation)"
	DefaultMaxBodyBytes = 2 << 20
)

// HTTPFetcher fetches collection context fragments over HTTP.
// A zero Timeout means requests may wait indefinitely.
type HTTPFetcher struct {
	Client       *http.Client
	UserAgent    string
	MaxBodyBytes int64
	Timeout      time.Duration
	Logger       *zap.Logger
}

// NewHTTPFetcher returns a fetcher with default limits.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{Client: client, UserAgent: DefaultUserAgent, MaxBodyBytes: DefaultMaxBodyBytes, Logger: zap.NewNop()}
}

// Fetch issues the GET and returns the body text.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", ErrFetch, err)
	}
	ua := f.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger := f.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		logger.Debug("Request failed", zap.String("url", url), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()
	logger.Debug("Response received",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %w: HTTP %d", ErrFetch, ErrUnexpectedStatus, resp.StatusCode)
	}

	limit := f.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	// A truncated batch would reconcile as if the tail did not exist.
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", ErrFetch, err)
	}
	if int64(len(body)) > limit {
		logger.Warn("Response over size limit", zap.String("url", url), zap.Int64("limit", limit))
		return "", fmt.Errorf("%w: response exceeds %d bytes", ErrFetch, limit)
	}
	return string(body), nil
}
