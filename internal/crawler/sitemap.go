package crawler

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
)

// sitemapURLSet is the <urlset> document of a plain sitemap
type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc string `xml:"loc"`
}

// sitemapIndex is the <sitemapindex> document pointing at child sitemaps
type sitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []sitemapURL `xml:"sitemap"`
}

// SitemapDiscoverer seeds crawl jobs from a site's sitemap(s).
// Discovery is best-effort and time-boxed; any failure returns an empty list
// and the job falls back to the single seed URL.
type SitemapDiscoverer struct {
	client *http.Client
	robots *RobotsCache
	logger arbor.ILogger
	budget time.Duration
}

// NewSitemapDiscoverer creates a sitemap discoverer with the given time budget
func NewSitemapDiscoverer(client *http.Client, robots *RobotsCache, budget time.Duration, logger arbor.ILogger) *SitemapDiscoverer {
	return &SitemapDiscoverer{
		client: client,
		robots: robots,
		logger: logger,
		budget: budget,
	}
}

// Discover returns up to maxURLs page URLs from the seed host's sitemaps.
// Sources: Sitemap: entries in robots.txt, else the conventional
// /sitemap.xml. A sitemap index recurses one level into child sitemaps.
func (d *SitemapDiscoverer) Discover(ctx context.Context, seedURL string, maxURLs int) []string {
	ctx, cancel := context.WithTimeout(ctx, d.budget)
	defer cancel()

	seed, err := url.Parse(seedURL)
	if err != nil || seed.Host == "" {
		return nil
	}

	candidates := d.robots.Sitemaps(ctx, seedURL)
	if len(candidates) == 0 {
		candidates = []string{seed.Scheme + "://" + seed.Host + "/sitemap.xml"}
	}

	var urls []string
	seen := make(map[string]bool)

	for _, sitemapURL := range candidates {
		if len(urls) >= maxURLs || ctx.Err() != nil {
			break
		}
		for _, loc := range d.fetchSitemap(ctx, sitemapURL, true) {
			if len(urls) >= maxURLs {
				break
			}
			loc = strings.TrimSpace(loc)
			if loc == "" || seen[loc] {
				continue
			}
			seen[loc] = true
			urls = append(urls, loc)
		}
	}

	d.logger.Debug().
		Str("seed_url", seedURL).
		Int("sitemap_urls", len(urls)).
		Msg("Sitemap discovery finished")

	return urls
}

// fetchSitemap downloads and parses one sitemap document. When the document
// is a sitemap index and recurse is set, child sitemaps are fetched one level
// deep.
func (d *SitemapDiscoverer) fetchSitemap(ctx context.Context, sitemapURL string, recurse bool) []string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil
	}

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Debug().Err(err).Str("sitemap_url", sitemapURL).Msg("Sitemap fetch failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return nil
	}

	var urlset sitemapURLSet
	if err := xml.Unmarshal(body, &urlset); err == nil && len(urlset.URLs) > 0 {
		locs := make([]string, 0, len(urlset.URLs))
		for _, u := range urlset.URLs {
			locs = append(locs, u.Loc)
		}
		return locs
	}

	if !recurse {
		return nil
	}

	var index sitemapIndex
	if err := xml.Unmarshal(body, &index); err == nil && len(index.Sitemaps) > 0 {
		var locs []string
		for _, child := range index.Sitemaps {
			if ctx.Err() != nil {
				break
			}
			locs = append(locs, d.fetchSitemap(ctx, strings.TrimSpace(child.Loc), false)...)
		}
		return locs
	}

	return nil
}
