package crawler

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
)

// FetchResult carries a successful HTTP response
type FetchResult struct {
	URL        string
	StatusCode int
	Body       []byte
	Headers    http.Header
	Duration   time.Duration
}

// Fetcher is the rate-limited, retrying HTTP client used by the workers.
// One fetcher is shared across all jobs so the per-host token bucket holds
// globally.
type Fetcher struct {
	client      *http.Client
	rateLimiter *HostRateLimiter
	robots      *RobotsCache
	userAgent   string
	maxBodySize int64
	logger      arbor.ILogger
}

// FetchOptions control a single fetch
type FetchOptions struct {
	Timeout       time.Duration
	MaxRetries    int
	RespectRobots bool
}

// NewFetcher creates a fetcher with the given user agent and per-host gap
func NewFetcher(userAgent string, rateLimit time.Duration, maxBodySize int64, logger arbor.ILogger) *Fetcher {
	client := &http.Client{
		// Per-request timeouts come from the request context
		Timeout: 0,
	}
	return &Fetcher{
		client:      client,
		rateLimiter: NewHostRateLimiter(rateLimit),
		robots:      NewRobotsCache(client, userAgent, logger),
		userAgent:   userAgent,
		maxBodySize: maxBodySize,
		logger:      logger,
	}
}

// Robots exposes the robots cache for sitemap discovery
func (f *Fetcher) Robots() *RobotsCache {
	return f.robots
}

// Client exposes the underlying HTTP client
func (f *Fetcher) Client() *http.Client {
	return f.client
}

// RateLimiter exposes the shared per-host limiter
func (f *Fetcher) RateLimiter() *HostRateLimiter {
	return f.rateLimiter
}

// Fetch performs a GET with rate limiting, robots policy, per-request timeout,
// and retries with exponential backoff on transient failures.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts FetchOptions) (*FetchResult, error) {
	if opts.RespectRobots && !f.robots.Allowed(ctx, rawURL) {
		return nil, &FetchError{Kind: FetchErrRobotsDenied, URL: rawURL}
	}

	policy := NewRetryPolicy(opts.MaxRetries)

	var result *FetchResult
	err := policy.Execute(ctx, f.logger, func() error {
		if err := f.rateLimiter.Wait(ctx, rawURL); err != nil {
			return &FetchError{Kind: FetchErrRateLimited, URL: rawURL, Err: err}
		}

		r, err := f.fetchOnce(ctx, rawURL, opts.Timeout)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string, timeout time.Duration) (*FetchResult, error) {
	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: FetchErrNetwork, URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		if isTimeoutError(err) || reqCtx.Err() == context.DeadlineExceeded {
			return nil, &FetchError{Kind: FetchErrTimeout, URL: rawURL, Err: err}
		}
		return nil, &FetchError{Kind: FetchErrNetwork, URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain to allow connection reuse
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{Kind: FetchErrHTTPStatus, StatusCode: resp.StatusCode, URL: rawURL}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		if isTimeoutError(err) {
			return nil, &FetchError{Kind: FetchErrTimeout, URL: rawURL, Err: err}
		}
		return nil, &FetchError{Kind: FetchErrNetwork, URL: rawURL, Err: err}
	}

	f.logger.Debug().
		Str("url", rawURL).
		Int("status_code", resp.StatusCode).
		Int("body_size", len(body)).
		Dur("duration", time.Since(start)).
		Msg("Fetched URL")

	return &FetchResult{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Body:       body,
		Headers:    resp.Header,
		Duration:   time.Since(start),
	}, nil
}
