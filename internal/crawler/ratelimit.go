package crawler

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostRateLimiter enforces a minimum gap between requests per host with a
// token bucket shared across workers. A single limiter exists per host for
// the lifetime of the process.
type HostRateLimiter struct {
	limiters     map[string]*rate.Limiter
	mu           sync.Mutex
	defaultDelay time.Duration
}

// NewHostRateLimiter creates a limiter with the specified default per-host gap
func NewHostRateLimiter(defaultDelay time.Duration) *HostRateLimiter {
	return &HostRateLimiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultDelay: defaultDelay,
	}
}

// Wait blocks until the host's rate limit is satisfied or the context ends
func (rl *HostRateLimiter) Wait(ctx context.Context, rawURL string) error {
	host := extractHost(rawURL)
	if host == "" {
		return nil // No host, no rate limiting
	}

	rl.mu.Lock()
	limiter, exists := rl.limiters[host]
	if !exists {
		limiter = rate.NewLimiter(limitForDelay(rl.defaultDelay), 1)
		rl.limiters[host] = limiter
	}
	rl.mu.Unlock()

	return limiter.Wait(ctx)
}

// SetHostDelay overrides the gap for a specific host
func (rl *HostRateLimiter) SetHostDelay(host string, delay time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limiters[host] = rate.NewLimiter(limitForDelay(delay), 1)
}

func limitForDelay(delay time.Duration) rate.Limit {
	if delay <= 0 {
		return rate.Inf
	}
	return rate.Every(delay)
}

func extractHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
