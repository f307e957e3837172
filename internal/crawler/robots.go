package crawler

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"
)

// robotsRules holds the parsed directives of one host's robots.txt
type robotsRules struct {
	disallow []string
	sitemaps []string
	fetched  bool
}

// RobotsCache fetches and caches /robots.txt per host for the crawl duration.
// Rules are matched for the configured user agent and the wildcard group.
type RobotsCache struct {
	client    *http.Client
	userAgent string
	logger    arbor.ILogger

	mu    sync.Mutex
	hosts map[string]*robotsRules
}

// NewRobotsCache creates a robots.txt cache using the given HTTP client
func NewRobotsCache(client *http.Client, userAgent string, logger arbor.ILogger) *RobotsCache {
	return &RobotsCache{
		client:    client,
		userAgent: userAgent,
		logger:    logger,
		hosts:     make(map[string]*robotsRules),
	}
}

// Allowed reports whether the URL may be fetched under the host's Disallow
// directives. Unreachable or missing robots.txt allows everything.
func (rc *RobotsCache) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}

	rules := rc.rulesFor(ctx, u)
	path := u.Path
	if path == "" {
		path = "/"
	}

	for _, prefix := range rules.disallow {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

// Sitemaps returns the Sitemap: entries declared by the host's robots.txt
func (rc *RobotsCache) Sitemaps(ctx context.Context, rawURL string) []string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil
	}
	return rc.rulesFor(ctx, u).sitemaps
}

func (rc *RobotsCache) rulesFor(ctx context.Context, u *url.URL) *robotsRules {
	rc.mu.Lock()
	rules, ok := rc.hosts[u.Host]
	rc.mu.Unlock()
	if ok && rules.fetched {
		return rules
	}

	rules = rc.fetch(ctx, u)

	rc.mu.Lock()
	rc.hosts[u.Host] = rules
	rc.mu.Unlock()

	return rules
}

func (rc *RobotsCache) fetch(ctx context.Context, u *url.URL) *robotsRules {
	rules := &robotsRules{fetched: true}

	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return rules
	}
	req.Header.Set("User-Agent", rc.userAgent)

	resp, err := rc.client.Do(req)
	if err != nil {
		rc.logger.Debug().Err(err).Str("host", u.Host).Msg("robots.txt unreachable - allowing all")
		return rules
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return rules
	}

	parsed := parseRobots(resp.Body, rc.userAgent)
	rc.logger.Debug().
		Str("host", u.Host).
		Int("disallow_rules", len(parsed.disallow)).
		Int("sitemaps", len(parsed.sitemaps)).
		Msg("robots.txt parsed")
	return parsed
}

// parseRobots extracts Disallow directives for the given user agent (or the
// wildcard group) and all Sitemap entries.
func parseRobots(r io.Reader, userAgent string) *robotsRules {
	rules := &robotsRules{fetched: true}
	agentToken := strings.ToLower(strings.Fields(userAgent)[0])

	// A group applies when any of its User-agent lines is "*" or a prefix of
	// our agent token.
	inMatchingGroup := false
	sawAgentLine := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if line == "" {
			continue
		}

		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "user-agent":
			agent := strings.ToLower(value)
			if !sawAgentLine {
				// First agent line of a new group resets the match
				inMatchingGroup = false
			}
			sawAgentLine = true
			if agent == "*" || strings.HasPrefix(agentToken, agent) {
				inMatchingGroup = true
			}
		case "disallow":
			sawAgentLine = false
			if inMatchingGroup && value != "" {
				rules.disallow = append(rules.disallow, value)
			}
		case "allow":
			sawAgentLine = false
		case "sitemap":
			sawAgentLine = false
			if value != "" {
				rules.sitemaps = append(rules.sitemaps, value)
			}
		default:
			sawAgentLine = false
		}
	}

	return rules
}
