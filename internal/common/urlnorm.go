package common

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// URL canonicalisation and filtering for the crawl pipeline. The normal form
// is intentionally lossy: query strings are dropped entirely so that faceted
// and session-tagged variants of a documentation page collapse to one key.

// defaultPorts maps schemes to ports that are stripped during normalisation
var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// denyPathPrefixes are administrative and asset paths never worth crawling
var denyPathPrefixes = []string{
	"/cdn-cgi/",
	"/wp-admin/",
	"/wp-content/",
	"/wp-includes/",
	"/assets/",
	"/static/",
	"/dist/",
	"/login",
	"/signup",
	"/register",
	"/account/",
}

// binaryExtensions are file extensions that never contain documentation text
var binaryExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".css", ".js", ".xml", ".pdf",
}

// docPathHints mark paths that are always accepted regardless of other rules
var docPathHints = []string{
	"/docs/",
	"/documentation/",
	"/guide/",
	"/reference/",
	"/manual/",
	"/learn/",
	"/tutorial/",
	"/api/",
	"/getting-started",
	"/quickstart",
	"/introduction",
}

// NormalizeURL produces the stable canonical form of a URL, resolving rawURL
// against base when it is relative. An empty or unparseable input yields the
// empty string, which callers treat as "skip".
func NormalizeURL(rawURL string, base *url.URL) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	if base != nil {
		u = base.ResolveReference(u)
	}

	if u.Scheme == "" || u.Host == "" {
		return ""
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	// Strip default ports
	if host, port, err := net.SplitHostPort(u.Host); err == nil {
		if defaultPorts[u.Scheme] == port {
			u.Host = host
		}
	}

	// Fragment and query are dropped entirely
	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = ""

	// Lowercase the path and trim the trailing slash except at the root
	path := strings.ToLower(u.Path)
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	u.Path = path
	u.RawPath = ""

	u.User = nil

	return u.String()
}

// URLFilter decides whether a normalised URL is worth enqueueing
type URLFilter struct {
	seedHost            string
	followExternalLinks bool
}

// NewURLFilter creates a filter anchored at the seed URL's origin
func NewURLFilter(seedURL string, followExternalLinks bool) (*URLFilter, error) {
	u, err := url.Parse(seedURL)
	if err != nil {
		return nil, fmt.Errorf("invalid seed URL: %w", err)
	}
	return &URLFilter{
		seedHost:            strings.ToLower(u.Host),
		followExternalLinks: followExternalLinks,
	}, nil
}

// Accept reports whether a normalised URL passes the validity filter.
// The second return value carries the rejection reason for logging.
func (f *URLFilter) Accept(normalized string) (bool, string) {
	if normalized == "" {
		return false, "empty"
	}

	u, err := url.Parse(normalized)
	if err != nil {
		return false, "unparseable"
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return false, "non-http scheme"
	}

	if !f.followExternalLinks && u.Host != f.seedHost {
		return false, "external host"
	}

	path := u.Path
	for _, prefix := range denyPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return false, "denied path"
		}
	}
	for _, ext := range binaryExtensions {
		if strings.HasSuffix(path, ext) {
			return false, "binary extension"
		}
	}

	// Documentation-shaped paths are always accepted
	for _, hint := range docPathHints {
		if strings.Contains(path, hint) {
			return true, ""
		}
	}

	if len(path) > 1 {
		return true, ""
	}
	if path == "" || path == "/" {
		// Site roots are accepted; they are the typical seed
		return true, ""
	}

	return false, "uninteresting path"
}

// ssrfBlockedNets are address ranges never fetched for externally-supplied seeds
var ssrfBlockedNets = []string{
	"127.0.0.0/8",
	"10.0.0.0/8",
	"192.168.0.0/16",
	"172.16.0.0/12",
	"169.254.0.0/16",
}

// ValidateSeedURL applies the SSRF guard to an externally-supplied seed URL.
// allowPrivate relaxes the loopback/private-range checks for development
// environments where crawls run against local test servers.
func ValidateSeedURL(rawURL string, allowPrivate bool) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (expected http or https)", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("URL host is empty")
	}

	if allowPrivate {
		return nil
	}

	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}

	if ip := net.ParseIP(host); ip != nil {
		for _, cidr := range ssrfBlockedNets {
			_, block, _ := net.ParseCIDR(cidr)
			if block.Contains(ip) {
				return fmt.Errorf("blocked address range: %s", host)
			}
		}
	}

	return nil
}

// URLHashes carries both deduplication hashes for a normalised URL.
// Primary is scheme-stripped so http/https duplicates collapse; SchemeAware
// is retained to detect protocol-only variants.
type URLHashes struct {
	Primary     string
	SchemeAware string
}

// HashURL computes both SHA-1 hashes of a normalised URL
func HashURL(normalized string) URLHashes {
	stripped := normalized
	if idx := strings.Index(stripped, "://"); idx >= 0 {
		stripped = stripped[idx+3:]
	}
	return URLHashes{
		Primary:     sha1Hex(stripped),
		SchemeAware: sha1Hex(normalized),
	}
}

// ContentHash computes the SHA-1 of the lowercased, whitespace-collapsed
// Markdown body, used for cross-URL duplicate detection
func ContentHash(markdown string) string {
	collapsed := strings.Join(strings.Fields(strings.ToLower(markdown)), " ")
	return sha1Hex(collapsed)
}

// CacheKey derives the URL cache key: SHA-256 truncated to 16 hex characters,
// prefixed "crawl:"
func CacheKey(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return "crawl:" + hex.EncodeToString(sum[:])[:16]
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
