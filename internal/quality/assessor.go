// Package quality scores finished blueprints with a keyword heuristic. It is
// advisory only: nothing in the relay path depends on it.
package quality

import "strings"

// Assessor estimates how complete a finished blueprint is, on a 0-100 scale.
type Assessor interface {
	Score(content string) int
}

// KeywordAssessor counts section signals a usable blueprint tends to contain.
type KeywordAssessor struct {
	signals []string
}

// NewKeywordAssessor returns the default keyword assessor.
func NewKeywordAssessor() *KeywordAssessor {
	return &KeywordAssessor{
		signals: []string{
			"overview",
			"feature",
			"data model",
			"schema",
			"api",
			"endpoint",
			"component",
			"page",
			"auth",
			"database",
			"deploy",
			"test",
		},
	}
}

// Score returns 0 for empty content, otherwise a bounded keyword score with a
// small bonus for substantial length and markdown structure.
func (a *KeywordAssessor) Score(content string) int {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return 0
	}
	lower := strings.ToLower(trimmed)

	score := 0
	for _, s := range a.signals {
		if strings.Contains(lower, s) {
			score += 6
		}
	}
	if len(trimmed) > 1500 {
		score += 14
	} else if len(trimmed) > 500 {
		score += 7
	}
	if strings.Contains(trimmed, "## ") {
		score += 7
	}
	if strings.Contains(trimmed, "- ") || strings.Contains(trimmed, "* ") {
		score += 7
	}
	if score > 100 {
		score = 100
	}
	return score
}
