package crawler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func testExtractor() *Extractor {
	return NewExtractor(arbor.NewLogger())
}

func defaultExtractOptions() ExtractOptions {
	return ExtractOptions{
		IncludeCodeBlocks: true,
		ExcludeNavigation: true,
	}
}

func TestExtractBasicPage(t *testing.T) {
	html := `<html><head><title>X | Site</title></head><body><main><h1>X</h1><p>hello</p></main></body></html>`

	result, err := testExtractor().Extract([]byte(html), "http://t.com/docs/", defaultExtractOptions())
	require.NoError(t, err)

	assert.Equal(t, "X", result.Title)
	assert.Contains(t, result.Markdown, "# X")
	assert.Contains(t, result.Markdown, "hello")
	assert.True(t, result.IsDocPage)
	assert.False(t, result.HasCode)
	assert.NotEmpty(t, result.ContentHash)
	assert.Greater(t, result.WordCount, 0)
}

func TestExtractSelectorPriority(t *testing.T) {
	html := `<html><body>
		<div class="content"><p>lower priority</p></div>
		<article role="main"><h1>Primary</h1><p>primary body</p></article>
	</body></html>`

	result, err := testExtractor().Extract([]byte(html), "http://t.com/", defaultExtractOptions())
	require.NoError(t, err)

	assert.Equal(t, "Primary", result.Title)
	assert.Contains(t, result.Markdown, "primary body")
	assert.NotContains(t, result.Markdown, "lower priority")
}

func TestExtractFallbackLongestDiv(t *testing.T) {
	long := strings.Repeat("documentation body text ", 20)
	html := `<html><body>
		<div><span>no paragraphs here</span></div>
		<div id="real"><h2>Section</h2><p>` + long + `</p></div>
	</body></html>`

	result, err := testExtractor().Extract([]byte(html), "http://t.com/", defaultExtractOptions())
	require.NoError(t, err)

	assert.Contains(t, result.Markdown, "Section")
	assert.Contains(t, result.Markdown, "documentation body text")
}

func TestExtractEmptyContent(t *testing.T) {
	html := `<html><body></body></html>`
	_, err := testExtractor().Extract([]byte(html), "http://t.com/", defaultExtractOptions())
	assert.Error(t, err)
}

func TestExtractTitleFallbacks(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected string
	}{
		{
			"h1 in main wins",
			`<html><head><title>Tab Title</title></head><body><main><h1>Main H1</h1><p>x</p></main></body></html>`,
			"Main H1",
		},
		{
			"any h1 when main has none",
			`<html><head><title>Tab</title></head><body><h1>Loose H1</h1><main><p>body text</p></main></body></html>`,
			"Loose H1",
		},
		{
			"title first segment",
			`<html><head><title>Page Name | Docs Site</title></head><body><main><p>body text</p></main></body></html>`,
			"Page Name",
		},
		{
			"untitled",
			`<html><body><main><p>body text</p></main></body></html>`,
			"Untitled Page",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := testExtractor().Extract([]byte(tt.html), "http://t.com/", defaultExtractOptions())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result.Title)
		})
	}
}

func TestExtractNavigationPlaceholder(t *testing.T) {
	html := `<html><body><main>
		<nav><a href="/a">A</a><a href="/b">B</a></nav>
		<h1>Doc</h1><p>body</p>
	</main></body></html>`

	result, err := testExtractor().Extract([]byte(html), "http://t.com/", defaultExtractOptions())
	require.NoError(t, err)

	assert.Contains(t, result.Markdown, "{{ NAVIGATION }}")

	// Navigation containing real content is left alone
	htmlWithContent := `<html><body><main>
		<nav><p>Prose navigation intro</p></nav>
		<h1>Doc</h1><p>body</p>
	</main></body></html>`

	result, err = testExtractor().Extract([]byte(htmlWithContent), "http://t.com/", defaultExtractOptions())
	require.NoError(t, err)
	assert.NotContains(t, result.Markdown, "{{ NAVIGATION }}")
	assert.Contains(t, result.Markdown, "Prose navigation intro")
}

func TestExtractChromeRemoval(t *testing.T) {
	html := `<html><body><main>
		<h1>Doc</h1>
		<script>var x = 1;</script>
		<div class="advertisement">Buy now</div>
		<div id="disqus_thread">comments</div>
		<div class="social-share">share</div>
		<p>kept</p>
	</main></body></html>`

	result, err := testExtractor().Extract([]byte(html), "http://t.com/", defaultExtractOptions())
	require.NoError(t, err)

	assert.Contains(t, result.Markdown, "kept")
	assert.NotContains(t, result.Markdown, "var x = 1")
	assert.NotContains(t, result.Markdown, "Buy now")
	assert.NotContains(t, result.Markdown, "share")
}

func TestExtractCodeLanguageAnnotation(t *testing.T) {
	html := `<html><body><main>
		<h1>API</h1>
		<pre><code class="lang-go">func main() {}</code></pre>
		<pre data-language="python"><code>print("hi")</code></pre>
	</main></body></html>`

	result, err := testExtractor().Extract([]byte(html), "http://t.com/", defaultExtractOptions())
	require.NoError(t, err)

	assert.True(t, result.HasCode)
	assert.Contains(t, result.Markdown, "```go")
	assert.Contains(t, result.Markdown, "```python")
}

func TestExtractExcludeCodeBlocks(t *testing.T) {
	html := `<html><body><main>
		<h1>API</h1><p>prose</p>
		<pre><code>secret code</code></pre>
	</main></body></html>`

	opts := defaultExtractOptions()
	opts.IncludeCodeBlocks = false

	result, err := testExtractor().Extract([]byte(html), "http://t.com/", opts)
	require.NoError(t, err)

	assert.False(t, result.HasCode)
	assert.NotContains(t, result.Markdown, "secret code")
}

func TestExtractHierarchy(t *testing.T) {
	html := `<html><body><main>
		<h1>Level One</h1>
		<h2>Level Two</h2>
		<h4>Level Four</h4>
		<p>body</p>
	</main></body></html>`

	result, err := testExtractor().Extract([]byte(html), "http://t.com/", defaultExtractOptions())
	require.NoError(t, err)

	require.NotNil(t, result.Hierarchy.Lvl0)
	assert.Equal(t, "Level One", *result.Hierarchy.Lvl0)
	require.NotNil(t, result.Hierarchy.Lvl1)
	assert.Equal(t, "Level Two", *result.Hierarchy.Lvl1)
	assert.Nil(t, result.Hierarchy.Lvl2)
	require.NotNil(t, result.Hierarchy.Lvl3)
	assert.Equal(t, "Level Four", *result.Hierarchy.Lvl3)
	assert.Nil(t, result.Hierarchy.Lvl4)
	assert.Nil(t, result.Hierarchy.Lvl5)
}

func TestExtractAnchor(t *testing.T) {
	html := `<html><body><main id="main-content"><h1>Doc</h1><p>body</p></main></body></html>`

	opts := defaultExtractOptions()
	opts.IncludeAnchors = true

	result, err := testExtractor().Extract([]byte(html), "http://t.com/", opts)
	require.NoError(t, err)
	assert.Equal(t, "main-content", result.Anchor)

	// Anchors are omitted unless requested
	result, err = testExtractor().Extract([]byte(html), "http://t.com/", defaultExtractOptions())
	require.NoError(t, err)
	assert.Empty(t, result.Anchor)
}

func TestExtractLinks(t *testing.T) {
	html := `<html><body><main><h1>Doc</h1><p>body</p>
		<a href="/docs/a">A</a>
		<a href="https://external.com/x">X</a>
		<a href="relative">R</a>
		<a href="#fragment">F</a>
		<a href="javascript:void(0)">J</a>
		<a href="mailto:a@b.c">M</a>
		<a href="/docs/a">dup</a>
	</main></body></html>`

	result, err := testExtractor().Extract([]byte(html), "http://t.com/docs/", defaultExtractOptions())
	require.NoError(t, err)

	assert.Contains(t, result.Links, "http://t.com/docs/a")
	assert.Contains(t, result.Links, "https://external.com/x")
	assert.Contains(t, result.Links, "http://t.com/docs/relative")
	assert.Len(t, result.Links, 3, "fragments, javascript, mailto and duplicates are dropped")
}

func TestExtractIsDocPage(t *testing.T) {
	// Short prose without headings or code is not a doc page
	html := `<html><body><main><p>just a few words</p></main></body></html>`
	result, err := testExtractor().Extract([]byte(html), "http://t.com/", defaultExtractOptions())
	require.NoError(t, err)
	assert.False(t, result.IsDocPage)

	// Code block flips it
	html = `<html><body><main><p>short</p><pre><code>x</code></pre></main></body></html>`
	result, err = testExtractor().Extract([]byte(html), "http://t.com/", defaultExtractOptions())
	require.NoError(t, err)
	assert.True(t, result.IsDocPage)
}

func TestCleanMarkdown(t *testing.T) {
	input := "# Title\n\n\n\n\nBody\n\n- \n- item\n"
	out := cleanMarkdown(input)

	assert.NotContains(t, out, "\n\n\n")
	assert.NotContains(t, out, "- \n")
	assert.Contains(t, out, "- item")
	assert.Equal(t, strings.TrimSpace(out), out)
}
