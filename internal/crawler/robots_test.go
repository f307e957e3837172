package crawler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
)

func TestParseRobots(t *testing.T) {
	body := `
# comment line
User-agent: *
Disallow: /private/
Disallow: /tmp/

User-agent: OtherBot
Disallow: /only-other/

Sitemap: https://example.com/sitemap.xml
Sitemap: https://example.com/sitemap-docs.xml
`
	rules := parseRobots(strings.NewReader(body), "Documentation Crawler — Friendly Bot")

	assert.Contains(t, rules.disallow, "/private/")
	assert.Contains(t, rules.disallow, "/tmp/")
	assert.NotContains(t, rules.disallow, "/only-other/")
	assert.Equal(t, []string{"https://example.com/sitemap.xml", "https://example.com/sitemap-docs.xml"}, rules.sitemaps)
}

func TestParseRobotsNamedAgent(t *testing.T) {
	body := `
User-agent: documentation
Disallow: /blocked/
`
	rules := parseRobots(strings.NewReader(body), "Documentation Crawler — Friendly Bot")
	assert.Contains(t, rules.disallow, "/blocked/")
}

func TestRobotsCacheAllowed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte("User-agent: *\nDisallow: /admin/\n"))
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	cache := NewRobotsCache(server.Client(), "Documentation Crawler — Friendly Bot", arbor.NewLogger())

	assert.True(t, cache.Allowed(t.Context(), server.URL+"/docs/page"))
	assert.False(t, cache.Allowed(t.Context(), server.URL+"/admin/panel"))
}

func TestRobotsCacheUnreachableAllowsAll(t *testing.T) {
	cache := NewRobotsCache(&http.Client{}, "Documentation Crawler — Friendly Bot", arbor.NewLogger())
	assert.True(t, cache.Allowed(t.Context(), "http://127.0.0.1:1/docs"))
}
