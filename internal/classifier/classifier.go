// Package classifier scores a captured question against heuristic pattern
// tables and picks the response style to ask for.
package classifier

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Category is the closed set of question kinds.
type Category int

// Scored categories are listed in tie-break order: when two share the top
// score, the one declared first wins.
const (
	ShortAnswer Category = iota
	Stylish
	LabSkeleton
	MultipleChoice
	Calculation
	Unknown
)

var scored = []Category{ShortAnswer, Stylish, LabSkeleton, MultipleChoice, Calculation}

func (c Category) String() string {
	switch c {
	case ShortAnswer:
		return "short_answer"
	case Stylish:
		return "stylish"
	case LabSkeleton:
		return "lab_skeleton"
	case MultipleChoice:
		return "multiple_choice"
	case Calculation:
		return "calculation"
	default:
		return "unknown"
	}
}

// Style names a prompt template.
type Style string

const (
	StyleUltraShort     Style = "ultra_short"
	StyleShort          Style = "short"
	StyleDetailed       Style = "detailed"
	StyleLabCompletion  Style = "lab_completion"
	StyleMultipleChoice Style = "multiple_choice"
	StyleStepByStep     Style = "step_by_step"
	StyleGeneral        Style = "general"
)

// Styles lists every recognized style.
var Styles = []Style{
	StyleUltraShort, StyleShort, StyleDetailed, StyleLabCompletion,
	StyleMultipleChoice, StyleStepByStep, StyleGeneral,
}

const (
	// Threshold is the minimum winning score; below it the result is Unknown.
	Threshold = 0.3

	// MaxIndicators caps Classification.Indicators.
	MaxIndicators = 3

	ultraShortMaxLen = 50
	labLongText      = 500
	labBraceCount    = 2
)

// Classification is the immutable result of one Classify call.
type Classification struct {
	Category   Category
	Confidence float64
	Indicators []string
	Style      Style
}

var partDelimiter = regexp.MustCompile(`(?i)<<<PART\s+\d+\s+(START|END)>>>`)

// Classifier scores text against a Catalog. Safe for concurrent use.
type Classifier struct {
	catalog Catalog
}

// New returns a classifier over catalog.
func New(catalog Catalog) *Classifier {
	return &Classifier{catalog: catalog}
}

// NewDefault returns a classifier over the built-in catalog.
func NewDefault() *Classifier {
	return New(DefaultCatalog())
}

// Classify scores text. It is a pure function of text and the catalog.
func (c *Classifier) Classify(text string) Classification {
	clean := Clean(text)
	lower := strings.ToLower(clean)

	best, bestScore := Unknown, -1.0
	for _, cat := range scored {
		var s float64
		if cat == LabSkeleton {
			s = c.labScore(clean, lower)
		} else {
			s = ratio(lower, c.catalog.patterns(cat))
		}
		if s > bestScore {
			best, bestScore = cat, s
		}
	}

	if bestScore < Threshold {
		return Classification{Category: Unknown, Confidence: 0, Style: StyleGeneral}
	}

	return Classification{
		Category:   best,
		Confidence: bestScore,
		Indicators: indicators(lower, c.catalog.patterns(best)),
		Style:      styleFor(best, clean),
	}
}

// Clean strips part delimiters and surrounding whitespace.
func Clean(text string) string {
	return strings.TrimSpace(partDelimiter.ReplaceAllString(text, ""))
}

func ratio(text string, patterns []Pattern) float64 {
	if len(patterns) == 0 {
		return 0
	}
	n := 0
	for _, pt := range patterns {
		if pt.Expr.MatchString(text) {
			n++
		}
	}
	return float64(n) / float64(len(patterns))
}

// labScore weighs the lab pattern ratio at 70% and adds 0.1 each for long
// text, several braces and a language keyword.
func (c *Classifier) labScore(clean, lower string) float64 {
	score := 0.7 * ratio(lower, c.catalog.Lab)
	if utf8.RuneCountInString(clean) > labLongText {
		score += 0.1
	}
	if strings.Count(clean, "{") > labBraceCount || strings.Count(clean, "}") > labBraceCount {
		score += 0.1
	}
	for _, kw := range c.catalog.LabKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			score += 0.1
			break
		}
	}
	if score > 1 {
		score = 1
	}
	return score
}

func indicators(text string, patterns []Pattern) []string {
	var out []string
	for _, pt := range patterns {
		if len(out) == MaxIndicators {
			break
		}
		if pt.Expr.MatchString(text) {
			out = append(out, pt.Description)
		}
	}
	return out
}

func styleFor(cat Category, clean string) Style {
	switch cat {
	case ShortAnswer:
		if utf8.RuneCountInString(clean) < ultraShortMaxLen {
			return StyleUltraShort
		}
		return StyleShort
	case Stylish:
		return StyleDetailed
	case LabSkeleton:
		return StyleLabCompletion
	case MultipleChoice:
		return StyleMultipleChoice
	case Calculation:
		return StyleStepByStep
	}
	return StyleGeneral
}
