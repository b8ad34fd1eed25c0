// Package scoring turns analysis findings into a deterministic document
// score. No I/O happens here; identical inputs always produce identical
// scores.
package scoring

import (
	"math"
	"strings"

	"clarify-backend/internal/domains"
)

// Severity weights for red flags. Informational findings carry no penalty.
var severityWeights = map[string]int{
	"critical": 25,
	"high":     15,
	"medium":   8,
	"low":      3,
	"info":     0,
}

// penaltyCap keeps the overall score away from zero even for heavily flagged
// documents; zero reads as a processing failure, not a bad contract.
const penaltyCap = 70

// Component weights. Fairness dominates because the product goal is flagging
// one-sidedness, not counting defects.
const (
	weightCompleteness = 0.20
	weightClarity      = 0.20
	weightFairness     = 0.35
	weightRisk         = 0.25
)

const defaultCompleteness = 80

// Flag is the scoring view of a red flag.
type Flag struct {
	Severity string
}

// Components are the four sub-scores, each 0-100.
type Components struct {
	RedFlag      int `json:"red_flag"`
	Completeness int `json:"completeness"`
	Clarity      int `json:"clarity"`
	Fairness     int `json:"fairness"`
}

// Result is the scoring outcome.
type Result struct {
	Overall    int        `json:"overall"`
	Components Components `json:"components"`
}

// Score computes the overall document score from red flags, the document
// text, and the detected domain.
func Score(flags []Flag, documentText, domain string) Result {
	penalty := 0
	for _, f := range flags {
		penalty += severityWeights[strings.ToLower(f.Severity)]
	}
	if penalty > penaltyCap {
		penalty = penaltyCap
	}

	completeness := completenessScore(documentText, domain)
	clarity := clarityScore(documentText)
	fairness := int(math.Max(20, 100-float64(penalty)*1.2))
	risk := 100 - penalty

	overall := int(math.Round(
		float64(completeness)*weightCompleteness +
			float64(clarity)*weightClarity +
			float64(fairness)*weightFairness +
			float64(risk)*weightRisk,
	))
	if overall < 0 {
		overall = 0
	}
	if overall > 100 {
		overall = 100
	}

	return Result{
		Overall: overall,
		Components: Components{
			RedFlag:      risk,
			Completeness: completeness,
			Clarity:      clarity,
			Fairness:     fairness,
		},
	}
}

// completenessScore counts how many of the domain's expected clause keywords
// appear in the document. Domains without a configured list default to 80.
func completenessScore(documentText, domain string) int {
	expected := domains.ExpectedClauses[domain]
	if len(expected) == 0 {
		return defaultCompleteness
	}
	lower := strings.ToLower(documentText)
	found := 0
	for _, keyword := range expected {
		if strings.Contains(lower, keyword) {
			found++
		}
	}
	return int(math.Round(float64(found) / float64(len(expected)) * 100))
}

// clarityScore is a coarse readability proxy from average sentence length.
func clarityScore(documentText string) int {
	avg := averageSentenceLength(documentText)
	switch {
	case avg <= 20:
		return 100
	case avg <= 30:
		return 80
	case avg <= 40:
		return 60
	default:
		return 40
	}
}

func averageSentenceLength(text string) float64 {
	sentences := 0
	words := 0
	current := 0
	for _, field := range strings.Fields(text) {
		current++
		trimmed := strings.TrimRight(field, `"')]`)
		if strings.HasSuffix(trimmed, ".") || strings.HasSuffix(trimmed, "!") || strings.HasSuffix(trimmed, "?") || strings.HasSuffix(trimmed, ";") {
			sentences++
			words += current
			current = 0
		}
	}
	if current > 0 {
		sentences++
		words += current
	}
	if sentences == 0 {
		return 0
	}
	return float64(words) / float64(sentences)
}
