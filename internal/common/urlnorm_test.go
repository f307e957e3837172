package common

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercase scheme and host", "HTTPS://Docs.Example.COM/Guide", "https://docs.example.com/guide"},
		{"strip default http port", "http://example.com:80/docs", "http://example.com/docs"},
		{"strip default https port", "https://example.com:443/docs", "https://example.com/docs"},
		{"keep non-default port", "http://example.com:8080/docs", "http://example.com:8080/docs"},
		{"drop fragment", "https://example.com/docs#section-2", "https://example.com/docs"},
		{"drop query string", "https://example.com/docs?utm_source=x&page=2", "https://example.com/docs"},
		{"trim trailing slash", "https://example.com/docs/", "https://example.com/docs"},
		{"keep root slash", "https://example.com/", "https://example.com/"},
		{"lowercase path", "https://example.com/Docs/API", "https://example.com/docs/api"},
		{"empty input", "", ""},
		{"whitespace input", "   ", ""},
		{"relative without base", "/docs/intro", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeURL(tt.input, nil))
		})
	}
}

func TestNormalizeURLResolvesRelative(t *testing.T) {
	base := mustParse(t, "https://example.com/docs/intro")

	assert.Equal(t, "https://example.com/docs/setup", NormalizeURL("setup", base))
	assert.Equal(t, "https://example.com/guide", NormalizeURL("/guide", base))
	assert.Equal(t, "https://other.com/x", NormalizeURL("https://other.com/x", base))
}

func TestNormalizeURLIdempotent(t *testing.T) {
	inputs := []string{
		"HTTPS://Example.COM:443/Docs/Guide/?q=1#frag",
		"http://example.com/a/b/c/",
		"https://example.com/",
	}
	for _, input := range inputs {
		once := NormalizeURL(input, nil)
		assert.Equal(t, once, NormalizeURL(once, nil), "normalize must be idempotent for %s", input)
	}
}

func TestURLFilterOriginPolicy(t *testing.T) {
	filter, err := NewURLFilter("https://docs.example.com/", false)
	require.NoError(t, err)

	ok, _ := filter.Accept("https://docs.example.com/docs/intro")
	assert.True(t, ok)

	ok, reason := filter.Accept("https://evil.example.org/docs/intro")
	assert.False(t, ok)
	assert.Equal(t, "external host", reason)

	external, err := NewURLFilter("https://docs.example.com/", true)
	require.NoError(t, err)
	ok, _ = external.Accept("https://evil.example.org/docs/intro")
	assert.True(t, ok)
}

func TestURLFilterDenylist(t *testing.T) {
	filter, err := NewURLFilter("https://example.com/", false)
	require.NoError(t, err)

	denied := []string{
		"https://example.com/cdn-cgi/challenge",
		"https://example.com/wp-admin/index.php",
		"https://example.com/wp-content/themes",
		"https://example.com/assets/app",
		"https://example.com/static/bundle",
		"https://example.com/dist/app",
		"https://example.com/login",
		"https://example.com/signup",
		"https://example.com/register",
		"https://example.com/account/settings",
		"https://example.com/logo.png",
		"https://example.com/style.css",
		"https://example.com/app.js",
		"https://example.com/paper.pdf",
	}
	for _, u := range denied {
		ok, _ := filter.Accept(u)
		assert.False(t, ok, "expected %s to be rejected", u)
	}
}

func TestURLFilterDocHintsAlwaysAccepted(t *testing.T) {
	filter, err := NewURLFilter("https://example.com/", false)
	require.NoError(t, err)

	hints := []string{
		"https://example.com/docs/intro",
		"https://example.com/documentation/setup",
		"https://example.com/guide/start",
		"https://example.com/reference/api",
		"https://example.com/manual/usage",
		"https://example.com/learn/basics",
		"https://example.com/tutorial/first",
		"https://example.com/api/v2",
		"https://example.com/getting-started",
		"https://example.com/quickstart",
		"https://example.com/introduction",
	}
	for _, u := range hints {
		ok, reason := filter.Accept(u)
		assert.True(t, ok, "expected %s accepted, got %s", u, reason)
	}
}

func TestValidateSeedURL(t *testing.T) {
	assert.NoError(t, ValidateSeedURL("https://docs.example.com/", false))

	blocked := []string{
		"ftp://example.com/",
		"https://localhost/docs",
		"https://127.0.0.1/docs",
		"https://10.1.2.3/",
		"https://192.168.1.1/",
		"https://172.16.0.5/",
		"https://169.254.1.1/",
	}
	for _, u := range blocked {
		assert.Error(t, ValidateSeedURL(u, false), "expected %s to be blocked", u)
	}

	// Development mode allows local test servers
	assert.NoError(t, ValidateSeedURL("http://127.0.0.1:3333/docs", true))
}

func TestHashURLCollapsesSchemes(t *testing.T) {
	httpHash := HashURL("http://example.com/docs")
	httpsHash := HashURL("https://example.com/docs")

	assert.Equal(t, httpHash.Primary, httpsHash.Primary, "scheme-stripped hashes must collapse")
	assert.NotEqual(t, httpHash.SchemeAware, httpsHash.SchemeAware, "scheme-aware hashes must differ")
	assert.Len(t, httpHash.Primary, 40)
}

func TestContentHash(t *testing.T) {
	// Case and whitespace variants collapse to the same fingerprint
	a := ContentHash("# Hello World\n\nSome   content here")
	b := ContentHash("# hello  world some content\there")
	assert.Equal(t, a, b)

	c := ContentHash("# different")
	assert.NotEqual(t, a, c)
}

func TestCacheKey(t *testing.T) {
	key := CacheKey("https://example.com/docs")
	assert.Regexp(t, `^crawl:[0-9a-f]{16}$`, key)
	assert.Equal(t, key, CacheKey("https://example.com/docs"))
	assert.NotEqual(t, key, CacheKey("https://example.com/other"))
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}
