// Package routing implements the decision core: intent classification,
// candidate scoring, and the routing state machine.
package routing

import (
	"fmt"
	"log/slog"
	"strings"

	"agenthub/internal/domain"
)

const (
	neutralConfidence = 0.5
	minConfidence     = 0.3
	multiMatchBonus   = 0.01
	patternBonus      = 0.5
)

// Classifier is the rule-based intent classifier. It is stateless apart from
// the static keyword tables and safe to share between goroutines.
type Classifier struct {
	logger *slog.Logger
}

func NewClassifier(logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{logger: logger}
}

// Classify maps a raw message to an intent category. It never fails: a
// message matching nothing gets the neutral default (general, 0.5). Recent
// turns are accepted for interface parity with the LLM strategy; the rule
// path scores the message alone so the neutral default stays exact.
func (c *Classifier) Classify(message string, recent []domain.Turn, extra map[string]string) domain.IntentAnalysis {
	lower := strings.ToLower(message)

	var (
		best         domain.Category
		bestScore    float64
		bestKeywords []string
		bestPatterns int
	)

	// Canonical order; the first category reaching the max score wins ties.
	for _, cat := range domain.Categories {
		rule := categoryRules[cat]

		var matched []string
		for _, kw := range rule.keywords {
			if containsKeyword(lower, kw) {
				matched = append(matched, kw)
			}
		}

		score := 0.0
		if len(matched) > 0 {
			score = float64(len(matched))/float64(len(rule.keywords)) +
				multiMatchBonus*float64(len(matched))
		}

		patterns := 0
		for _, re := range rule.patterns {
			if re.MatchString(lower) {
				patterns++
				score += patternBonus
			}
		}

		if score > bestScore {
			best = cat
			bestScore = score
			bestKeywords = matched
			bestPatterns = patterns
		}
	}

	if bestScore <= 0 {
		return domain.IntentAnalysis{
			Category:   domain.CategoryGeneral,
			Confidence: neutralConfidence,
			Reasoning:  "no specific pattern matched",
		}
	}

	confidence := bestScore * 2
	if confidence > 1.0 {
		confidence = 1.0
	}
	if confidence < minConfidence {
		confidence = minConfidence
	}

	analysis := domain.IntentAnalysis{
		Category:   best,
		Confidence: confidence,
		Keywords:   bestKeywords,
		Reasoning: fmt.Sprintf("matched %d keyword(s) and %d pattern(s) for %s",
			len(bestKeywords), bestPatterns, best),
	}

	c.logger.Debug("message classified",
		"category", analysis.Category,
		"confidence", analysis.Confidence,
		"keywords", len(analysis.Keywords),
	)
	return analysis
}
