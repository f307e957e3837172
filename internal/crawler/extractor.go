package crawler

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/models"
)

// mainContentSelectors is the priority list probed for the primary article
// node. The first non-empty match wins.
var mainContentSelectors = []string{
	`article[role="main"]`,
	`main[role="main"]`,
	`div[role="main"]`,
	"main",
	"article",
	".content",
	".article-content",
	".markdown-body",
	"#content",
	"#main",
}

// chromeSelectors are stripped from main content before conversion
const chromeSelectors = "script, style, iframe, form, .advertisement, #disqus_thread, .comments, .social-share"

// navSelectors are replaced with a placeholder when exclude_navigation is set
const navSelectors = `nav, [role="navigation"], .navigation, .menu`

const navigationPlaceholder = "{{ NAVIGATION }}"

// ExtractOptions control a single extraction
type ExtractOptions struct {
	IncludeCodeBlocks bool
	ExcludeNavigation bool
	IncludeAnchors    bool
}

// ExtractResult is the output of extracting one page
type ExtractResult struct {
	Title       string
	Markdown    string
	Hierarchy   models.Hierarchy
	Anchor      string
	IsDocPage   bool
	ContentHash string
	WordCount   int
	HasCode     bool
	Links       []string
}

// Extractor picks the main content node of a documentation page, strips
// chrome, and emits Markdown plus a content fingerprint.
type Extractor struct {
	logger arbor.ILogger
}

// NewExtractor creates a new content extractor
func NewExtractor(logger arbor.ILogger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract processes raw HTML fetched from baseURL
func (e *Extractor) Extract(html []byte, baseURL string, opts ExtractOptions) (*ExtractResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(html)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}

	// Links come from the whole document, before any cleanup
	links := e.extractLinks(doc, base)

	main := e.selectMainContent(doc)
	if main == nil || strings.TrimSpace(main.Text()) == "" {
		return nil, fmt.Errorf("empty main content")
	}

	title := e.extractTitle(doc, main)
	hierarchy := e.extractHierarchy(main)
	anchor := ""
	if opts.IncludeAnchors {
		anchor = e.findAnchor(main)
	}

	main.Find(chromeSelectors).Remove()

	if opts.ExcludeNavigation {
		main.Find(navSelectors).Each(func(_ int, nav *goquery.Selection) {
			if nav.Find("p, h1, h2, h3, h4, h5, h6").Length() == 0 {
				nav.SetHtml(navigationPlaceholder)
			}
		})
	}

	if !opts.IncludeCodeBlocks {
		main.Find("pre").Remove()
	} else {
		annotateCodeLanguages(main)
	}

	hasCode := main.Find("pre code").Length() > 0
	isDocPage := main.Find("h1, h2, h3").Length() > 0 ||
		hasCode ||
		len(strings.TrimSpace(main.Text())) > 500

	markdown := convertToMarkdown(main, base)
	wordCount := len(strings.Fields(markdown))

	result := &ExtractResult{
		Title:       title,
		Markdown:    markdown,
		Hierarchy:   hierarchy,
		Anchor:      anchor,
		IsDocPage:   isDocPage,
		ContentHash: common.ContentHash(markdown),
		WordCount:   wordCount,
		HasCode:     hasCode,
		Links:       links,
	}

	e.logger.Debug().
		Str("base_url", baseURL).
		Str("title", title).
		Int("word_count", wordCount).
		Int("links_found", len(links)).
		Bool("is_doc_page", isDocPage).
		Msg("Content extracted")

	return result, nil
}

// selectMainContent probes the selector priority list, then falls back to the
// longest div/section containing at least one paragraph or heading and more
// than 200 characters of text.
func (e *Extractor) selectMainContent(doc *goquery.Document) *goquery.Selection {
	for _, selector := range mainContentSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() > 0 && strings.TrimSpace(sel.Text()) != "" {
			return sel
		}
	}

	var best *goquery.Selection
	bestLen := 200
	doc.Find("div, section").Each(func(_ int, sel *goquery.Selection) {
		if sel.Find("p, h1, h2, h3, h4, h5, h6").Length() == 0 {
			return
		}
		textLen := len(strings.TrimSpace(sel.Text()))
		if textLen > bestLen {
			best = sel
			bestLen = textLen
		}
	})
	if best != nil {
		return best
	}

	body := doc.Find("body").First()
	if body.Length() > 0 {
		return body
	}
	return nil
}

// extractTitle returns the first non-empty of: first h1 inside main content,
// any h1, the <title> split on "|", else "Untitled Page".
func (e *Extractor) extractTitle(doc *goquery.Document, main *goquery.Selection) string {
	if h1 := strings.TrimSpace(main.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		first, _, _ := strings.Cut(title, "|")
		if segment := strings.TrimSpace(first); segment != "" {
			return segment
		}
	}
	return "Untitled Page"
}

// extractHierarchy populates lvl0..lvl5 from the first h1..h6 found within
// main content; lvl6 is left unset
func (e *Extractor) extractHierarchy(main *goquery.Selection) models.Hierarchy {
	var h models.Hierarchy
	levels := []**string{&h.Lvl0, &h.Lvl1, &h.Lvl2, &h.Lvl3, &h.Lvl4, &h.Lvl5}
	for i, slot := range levels {
		heading := strings.TrimSpace(main.Find(fmt.Sprintf("h%d", i+1)).First().Text())
		if heading != "" {
			value := heading
			*slot = &value
		}
	}
	return h
}

// findAnchor walks the DOM for the nearest id or name attribute:
// the element itself, its last child carrying one, previous siblings
// bottom-up, then the parent, repeating up the tree.
func (e *Extractor) findAnchor(sel *goquery.Selection) string {
	current := sel
	for current.Length() > 0 {
		if anchor := anchorAttr(current); anchor != "" {
			return anchor
		}

		if withAnchor := current.Find("[id], [name]").Last(); withAnchor.Length() > 0 {
			if anchor := anchorAttr(withAnchor); anchor != "" {
				return anchor
			}
		}

		for prev := current.Prev(); prev.Length() > 0; prev = prev.Prev() {
			if anchor := anchorAttr(prev); anchor != "" {
				return anchor
			}
		}

		current = current.Parent()
	}
	return ""
}

func anchorAttr(sel *goquery.Selection) string {
	if id, ok := sel.Attr("id"); ok && id != "" {
		return id
	}
	if name, ok := sel.Attr("name"); ok && name != "" {
		return name
	}
	return ""
}

// annotateCodeLanguages inspects class and data attributes on each
// <pre><code> pair and normalises them to class="language-<lang>" so the
// Markdown converter emits fenced blocks with a language tag.
func annotateCodeLanguages(main *goquery.Selection) {
	main.Find("pre code").Each(func(_ int, code *goquery.Selection) {
		lang := detectCodeLanguage(code)
		if lang == "" {
			lang = detectCodeLanguage(code.Parent())
		}
		if lang != "" {
			code.SetAttr("class", "language-"+lang)
		}
	})
}

var codeClassPrefixes = []string{"language-", "lang-", "highlight-"}

func detectCodeLanguage(sel *goquery.Selection) string {
	if class, ok := sel.Attr("class"); ok {
		for _, token := range strings.Fields(class) {
			for _, prefix := range codeClassPrefixes {
				if strings.HasPrefix(token, prefix) {
					if lang := token[len(prefix):]; lang != "" {
						return strings.ToLower(lang)
					}
				}
			}
		}
	}
	if lang, ok := sel.Attr("data-language"); ok && lang != "" {
		return strings.ToLower(lang)
	}
	if lang, ok := sel.Attr("data-lang"); ok && lang != "" {
		return strings.ToLower(lang)
	}
	return ""
}

// extractLinks discovers outbound links from <a> tags, resolved absolute
func (e *Extractor) extractLinks(doc *goquery.Document, base *url.URL) []string {
	var links []string
	seen := make(map[string]bool)

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, exists := a.Attr("href")
		if !exists || shouldSkipHref(href) {
			return
		}

		resolved := resolveHref(href, base)
		if resolved == "" || seen[resolved] {
			return
		}
		seen[resolved] = true
		links = append(links, resolved)
	})

	return links
}

// shouldSkipHref filters links that can never be crawled
func shouldSkipHref(href string) bool {
	href = strings.ToLower(strings.TrimSpace(href))
	if href == "" || strings.HasPrefix(href, "#") {
		return true
	}
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "sms:", "ftp:", "data:"} {
		if strings.HasPrefix(href, scheme) {
			return true
		}
	}
	return false
}

func resolveHref(href string, base *url.URL) string {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}
