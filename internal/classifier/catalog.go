package classifier

import (
	"fmt"
	"regexp"
)

// Pattern is one heuristic: a case-insensitive expression plus the
// human-readable hint reported when it matches.
type Pattern struct {
	Expr        *regexp.Regexp
	Description string
}

// Catalog holds the heuristic tables for every scored category. It is
// read-only once built and may be shared between goroutines.
type Catalog struct {
	Short          []Pattern
	Stylish        []Pattern
	Lab            []Pattern
	MultipleChoice []Pattern
	Calculation    []Pattern

	// LabKeywords are language or structure words that add to the lab score.
	LabKeywords []string
}

func (c Catalog) patterns(cat Category) []Pattern {
	switch cat {
	case ShortAnswer:
		return c.Short
	case Stylish:
		return c.Stylish
	case LabSkeleton:
		return c.Lab
	case MultipleChoice:
		return c.MultipleChoice
	case Calculation:
		return c.Calculation
	}
	return nil
}

func pat(expr, desc string) Pattern {
	return Pattern{Expr: regexp.MustCompile("(?i)" + expr), Description: desc}
}

var defaultCatalog = Catalog{
	Short: []Pattern{
		pat(`\b(what is|who is|when was|where is|how many|which)\b`, "direct wh-question"),
		pat(`\b(define|explain briefly|in one word|true or false)\b`, "asks for a brief answer"),
		pat(`\b(yes or no|correct answer|simple answer)\b`, "asks for a single answer"),
		pat(`\?.*\?`, "several short questions"),
	},
	Stylish: []Pattern{
		pat(`\b(explain in detail|elaborate|discuss|analyze)\b`, "asks for elaboration"),
		pat(`\b(compare and contrast|evaluate|critically examine)\b`, "asks for evaluation"),
		pat(`\b(provide examples|give reasons|justify your answer)\b`, "asks for supporting reasons"),
		pat(`\b(essay|report|detailed explanation|comprehensive)\b`, "long-form deliverable"),
	},
	Lab: []Pattern{
		pat(`class\s+\w+.*\{`, "class declaration"),
		pat(`public\s+class|private\s+class`, "access-modified class"),
		pat(`attributes:\s*$|methods:\s*$`, "attribute or method list header"),
		pat(`lab\s+report|lab\s+assignment`, "lab assignment wording"),
		pat(`part\s+[1-9].*part\s+[2-9]`, "numbered parts"),
		pat(`___+|____+`, "fill-in blanks"),
		pat("```[\\s\\S]*?```", "fenced code block"),
		pat(`todo\s*:|fixme\s*:|complete\s+this`, "TODO marker"),
	},
	MultipleChoice: []Pattern{
		pat(`\b[a-d]\)|[a-d]\.|\([a-d]\)`, "lettered options"),
		pat(`choose.*correct|select.*best|mark.*right`, "asks to pick an option"),
		pat(`which.*following|all.*except|none.*above`, "option-list wording"),
	},
	Calculation: []Pattern{
		pat(`\d+.*[+\-*/].*\d+`, "arithmetic expression"),
		pat(`calculate|compute|solve|find.*value`, "asks for a computed value"),
		pat(`equation|formula|derivative|integral`, "math vocabulary"),
		pat(`\$\d+|\d+%|\d+\s*(kg|cm|km|mph)`, "quantities with units"),
	},
	LabKeywords: []string{"java", "python", "class"},
}

// DefaultCatalog returns the built-in heuristic tables.
func DefaultCatalog() Catalog {
	return defaultCatalog
}

// Source is the textual form of a catalog, as found in the config file.
// Empty lists keep the built-in table for that category.
type Source struct {
	Short          []string `toml:"short"`
	Stylish        []string `toml:"stylish"`
	Lab            []string `toml:"lab"`
	MultipleChoice []string `toml:"multiple_choice"`
	Calculation    []string `toml:"calculation"`
	LabKeywords    []string `toml:"lab_keywords"`
}

// CompileCatalog builds a catalog from src, falling back to the default
// table for every list src leaves empty.
func CompileCatalog(src Source) (Catalog, error) {
	c := DefaultCatalog()
	var err error
	if c.Short, err = compileList("short", src.Short, c.Short); err != nil {
		return Catalog{}, err
	}
	if c.Stylish, err = compileList("stylish", src.Stylish, c.Stylish); err != nil {
		return Catalog{}, err
	}
	if c.Lab, err = compileList("lab", src.Lab, c.Lab); err != nil {
		return Catalog{}, err
	}
	if c.MultipleChoice, err = compileList("multiple_choice", src.MultipleChoice, c.MultipleChoice); err != nil {
		return Catalog{}, err
	}
	if c.Calculation, err = compileList("calculation", src.Calculation, c.Calculation); err != nil {
		return Catalog{}, err
	}
	if len(src.LabKeywords) > 0 {
		c.LabKeywords = append([]string(nil), src.LabKeywords...)
	}
	return c, nil
}

func compileList(name string, exprs []string, fallback []Pattern) ([]Pattern, error) {
	if len(exprs) == 0 {
		return fallback, nil
	}
	out := make([]Pattern, 0, len(exprs))
	for i, e := range exprs {
		re, err := regexp.Compile("(?i)" + e)
		if err != nil {
			return nil, fmt.Errorf("classifier.%s[%d]: %w", name, i, err)
		}
		out = append(out, Pattern{Expr: re, Description: e})
	}
	return out, nil
}
