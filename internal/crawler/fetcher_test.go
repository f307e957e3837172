package crawler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

const testUserAgent = "Documentation Crawler — Friendly Bot"

func testFetcher(rateLimit time.Duration) *Fetcher {
	return NewFetcher(testUserAgent, rateLimit, 10*1024*1024, arbor.NewLogger())
}

func TestFetchSuccess(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer server.Close()

	result, err := testFetcher(0).Fetch(t.Context(), server.URL, FetchOptions{
		Timeout:    time.Second,
		MaxRetries: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Contains(t, string(result.Body), "ok")
	assert.Equal(t, testUserAgent, gotUA)
}

func TestFetch4xxFailsImmediately(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := testFetcher(0).Fetch(t.Context(), server.URL, FetchOptions{
		Timeout:    time.Second,
		MaxRetries: 3,
	})
	require.Error(t, err)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, FetchErrHTTPStatus, fetchErr.Kind)
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	assert.False(t, fetchErr.Retryable())
	assert.Equal(t, int32(1), requests.Load(), "4xx must not be retried")
}

func TestFetch5xxRetriesThenSucceeds(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer server.Close()

	result, err := testFetcher(0).Fetch(t.Context(), server.URL, FetchOptions{
		Timeout:    time.Second,
		MaxRetries: 3,
	})
	require.NoError(t, err)

	assert.Contains(t, string(result.Body), "recovered")
	assert.Equal(t, int32(2), requests.Load())
}

func TestFetchTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte("late"))
	}))
	defer server.Close()

	_, err := testFetcher(0).Fetch(t.Context(), server.URL, FetchOptions{
		Timeout:    50 * time.Millisecond,
		MaxRetries: 1,
	})
	require.Error(t, err)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, FetchErrTimeout, fetchErr.Kind)
	assert.True(t, fetchErr.Retryable())
}

func TestFetchRobotsDenied(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
			return
		}
		w.Write([]byte("content"))
	}))
	defer server.Close()

	fetcher := testFetcher(0)

	_, err := fetcher.Fetch(t.Context(), server.URL+"/private/page", FetchOptions{
		Timeout:       time.Second,
		MaxRetries:    1,
		RespectRobots: true,
	})
	require.Error(t, err)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, FetchErrRobotsDenied, fetchErr.Kind)
	assert.False(t, fetchErr.Retryable())

	// With robots disabled the same URL fetches fine
	result, err := fetcher.Fetch(t.Context(), server.URL+"/private/page", FetchOptions{
		Timeout:    time.Second,
		MaxRetries: 1,
	})
	require.NoError(t, err)
	assert.Contains(t, string(result.Body), "content")
}

func TestFetchRateLimiterSpacing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	fetcher := testFetcher(100 * time.Millisecond)
	opts := FetchOptions{Timeout: time.Second, MaxRetries: 1}

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := fetcher.Fetch(t.Context(), server.URL, opts)
		require.NoError(t, err)
	}

	// Three sequential fetches against one host need at least two gaps
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestRetryPolicyBackoff(t *testing.T) {
	policy := NewRetryPolicy(3)

	assert.Equal(t, time.Second, policy.CalculateBackoff(0))
	assert.Equal(t, 2*time.Second, policy.CalculateBackoff(1))
	assert.Equal(t, 4*time.Second, policy.CalculateBackoff(2))
	// Capped at the maximum
	assert.Equal(t, 30*time.Second, policy.CalculateBackoff(10))
}
