package crawler

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/ternarybob/colligo/internal/models"
)

// AssessQuality scores extracted Markdown 0..100 from word count, heading
// count, and code-block presence. Pages scoring below the configured
// threshold are filtered from the final corpus, not failed.
func AssessQuality(markdown string) models.QualityScore {
	words := len(strings.Fields(markdown))
	headings, codeBlocks := countStructure(markdown)

	score := 0

	// Substance: up to 50 points for body length
	switch {
	case words >= 500:
		score += 50
	default:
		score += words / 10
	}

	// Structure: 20 points for having headings at all, up to 30 with depth
	if headings > 0 {
		headingPoints := 20 + (headings-1)*5
		if headingPoints > 30 {
			headingPoints = 30
		}
		score += headingPoints
	}

	// Code: 20 points for at least one fenced or indented block
	if codeBlocks > 0 {
		score += 20
	}

	if score > 100 {
		score = 100
	}

	reason := "ok"
	switch {
	case words < 20:
		reason = "thin content"
	case headings == 0 && codeBlocks == 0:
		reason = "no structure"
	}

	return models.QualityScore{Score: score, Reason: reason}
}

// countStructure walks the Markdown AST counting headings and code blocks,
// fenced or indented
func countStructure(markdown string) (headings, codeBlocks int) {
	source := []byte(markdown)
	parser := goldmark.DefaultParser()
	root := parser.Parse(text.NewReader(source))

	ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindHeading:
			headings++
		case ast.KindFencedCodeBlock, ast.KindCodeBlock:
			codeBlocks++
		}
		return ast.WalkContinue, nil
	})

	return headings, codeBlocks
}
