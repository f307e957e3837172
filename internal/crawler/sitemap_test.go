package crawler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
)

func newTestDiscoverer(client *http.Client) *SitemapDiscoverer {
	logger := arbor.NewLogger()
	robots := NewRobotsCache(client, testUserAgent, logger)
	return NewSitemapDiscoverer(client, robots, 5*time.Second, logger)
}

func TestSitemapDiscoverPlain(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			w.Write([]byte("User-agent: *\nSitemap: " + server.URL + "/sitemap.xml\n"))
		case "/sitemap.xml":
			w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>` + server.URL + `/docs/a</loc></url>
  <url><loc>` + server.URL + `/docs/b</loc></url>
</urlset>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	urls := newTestDiscoverer(server.Client()).Discover(t.Context(), server.URL+"/docs/", 50)

	assert.Equal(t, []string{server.URL + "/docs/a", server.URL + "/docs/b"}, urls)
}

func TestSitemapDiscoverConventionalPath(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			w.Write([]byte(`<urlset><url><loc>` + server.URL + `/docs/x</loc></url></urlset>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	// No robots.txt: falls back to /sitemap.xml
	urls := newTestDiscoverer(server.Client()).Discover(t.Context(), server.URL+"/", 50)
	assert.Equal(t, []string{server.URL + "/docs/x"}, urls)
}

func TestSitemapDiscoverIndex(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			w.Write([]byte(`<sitemapindex>
  <sitemap><loc>` + server.URL + `/sitemap-1.xml</loc></sitemap>
  <sitemap><loc>` + server.URL + `/sitemap-2.xml</loc></sitemap>
</sitemapindex>`))
		case "/sitemap-1.xml":
			w.Write([]byte(`<urlset><url><loc>` + server.URL + `/docs/one</loc></url></urlset>`))
		case "/sitemap-2.xml":
			w.Write([]byte(`<urlset><url><loc>` + server.URL + `/docs/two</loc></url></urlset>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	urls := newTestDiscoverer(server.Client()).Discover(t.Context(), server.URL+"/", 50)
	assert.ElementsMatch(t, []string{server.URL + "/docs/one", server.URL + "/docs/two"}, urls)
}

func TestSitemapDiscoverCaps(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sitemap.xml" {
			http.NotFound(w, r)
			return
		}
		body := "<urlset>"
		for i := 0; i < 10; i++ {
			body += "<url><loc>" + server.URL + "/docs/p" + string(rune('a'+i)) + "</loc></url>"
		}
		body += "</urlset>"
		w.Write([]byte(body))
	}))
	defer server.Close()

	urls := newTestDiscoverer(server.Client()).Discover(t.Context(), server.URL+"/", 3)
	assert.Len(t, urls, 3)
}

func TestSitemapDiscoverAbsent(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	urls := newTestDiscoverer(server.Client()).Discover(t.Context(), server.URL+"/", 50)
	assert.Empty(t, urls)
}
