package crawler

import (
	"net/url"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// markdownOptions fix the output dialect: ATX headings, fenced code blocks,
// hyphen bullets, underscore emphasis, double-asterisk strong.
var markdownOptions = &md.Options{
	HeadingStyle:    "atx",
	CodeBlockStyle:  "fenced",
	Fence:           "```",
	BulletListMarker: "-",
	EmDelimiter:     "_",
	StrongDelimiter: "**",
}

// convertToMarkdown converts the selected main-content node to Markdown and
// applies the post-conversion cleanup passes.
func convertToMarkdown(main *goquery.Selection, base *url.URL) string {
	domain := ""
	if base != nil {
		domain = base.Scheme + "://" + base.Host
	}

	converter := md.NewConverter(domain, true, markdownOptions)
	markdown := converter.Convert(main)

	return cleanMarkdown(markdown)
}

var (
	excessBlankLines = regexp.MustCompile(`\n{3,}`)
	emptyListItem    = regexp.MustCompile(`(?m)^-\s*$\n?`)
)

// cleanMarkdown collapses runs of three or more newlines to two, strips
// empty list items, normalises blank lines inside fenced blocks, and trims.
func cleanMarkdown(markdown string) string {
	markdown = normalizeFencedBlocks(markdown)
	markdown = excessBlankLines.ReplaceAllString(markdown, "\n\n")
	markdown = emptyListItem.ReplaceAllString(markdown, "")
	return strings.TrimSpace(markdown)
}

// normalizeFencedBlocks collapses consecutive blank lines inside ``` fences
// to a single blank line so code blocks survive the outer blank-line pass
// without drifting.
func normalizeFencedBlocks(markdown string) string {
	lines := strings.Split(markdown, "\n")
	out := make([]string, 0, len(lines))

	inFence := false
	prevBlank := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			prevBlank = false
			out = append(out, line)
			continue
		}

		if inFence && trimmed == "" {
			if prevBlank {
				continue
			}
			prevBlank = true
			out = append(out, "")
			continue
		}

		prevBlank = false
		out = append(out, line)
	}

	return strings.Join(out, "\n")
}
