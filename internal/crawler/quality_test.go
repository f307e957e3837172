package crawler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssessQualityEmpty(t *testing.T) {
	score := AssessQuality("")
	assert.Equal(t, 0, score.Score)
	assert.Equal(t, "thin content", score.Reason)
}

func TestAssessQualityHeadingOnly(t *testing.T) {
	score := AssessQuality("# X\n\nhello")
	// Heading presence alone clears the default inclusion threshold
	assert.GreaterOrEqual(t, score.Score, 20)
}

func TestAssessQualityRichPage(t *testing.T) {
	markdown := "# Title\n\n## Section\n\n" +
		strings.Repeat("substantial documentation prose ", 200) +
		"\n\n```go\nfunc main() {}\n```\n"

	score := AssessQuality(markdown)
	assert.GreaterOrEqual(t, score.Score, 90)
	assert.Equal(t, "ok", score.Reason)
}

func TestAssessQualityNoStructure(t *testing.T) {
	score := AssessQuality(strings.Repeat("plain words without any structure ", 30))
	assert.Equal(t, "no structure", score.Reason)
	assert.Greater(t, score.Score, 0)
	assert.LessOrEqual(t, score.Score, 50)
}

func TestAssessQualityCodeBonus(t *testing.T) {
	base := AssessQuality("short prose here only")
	withCode := AssessQuality("short prose here only\n\n```\ncode\n```")
	assert.Greater(t, withCode.Score, base.Score)
}

func TestAssessQualityBounded(t *testing.T) {
	huge := "# A\n\n## B\n\n### C\n\n#### D\n\n" +
		strings.Repeat("word ", 5000) +
		"```\ncode\n```"
	score := AssessQuality(huge)
	assert.LessOrEqual(t, score.Score, 100)
	assert.GreaterOrEqual(t, score.Score, 0)
}
