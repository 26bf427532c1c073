// Package delivery turns an answer into paste-sized chunks and types them
// into the focused application.
package delivery

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/asheshgoplani/snapdeck/internal/classifier"
)

// Separator splits a long answer into chunks. It is matched literally.
const Separator = "\n---\n"

// DefaultShortMax is the length (in characters) below which a short-answer
// response is delivered whole.
const DefaultShortMax = 120

// ErrNoChunks means the answer had no usable chunk.
var ErrNoChunks = errors.New("response produced no chunks")

// Kind tells how a plan was produced.
type Kind int

const (
	KindChunked Kind = iota
	KindLetter
	KindShort
)

func (k Kind) String() string {
	switch k {
	case KindLetter:
		return "letter"
	case KindShort:
		return "short"
	default:
		return "chunked"
	}
}

// Plan is the ordered chunk sequence for one answer. Chunks are never empty.
type Plan struct {
	Kind   Kind
	Chunks []string
}

// PlanResponse routes an answer by the question's category: a multiple
// choice answer becomes its letter, a short answer under shortMax stays
// whole, anything else is split on Separator.
func PlanResponse(cat classifier.Category, response string, shortMax int) (Plan, error) {
	if shortMax <= 0 {
		shortMax = DefaultShortMax
	}
	trimmed := strings.TrimSpace(response)

	switch {
	case cat == classifier.MultipleChoice:
		letter := ExtractChoice(trimmed)
		if letter == "" {
			return Plan{}, ErrNoChunks
		}
		return Plan{Kind: KindLetter, Chunks: []string{letter}}, nil

	case cat == classifier.ShortAnswer && trimmed != "" && utf8.RuneCountInString(trimmed) < shortMax:
		return Plan{Kind: KindShort, Chunks: []string{trimmed}}, nil
	}

	chunks := SplitChunks(response)
	if len(chunks) == 0 {
		return Plan{}, ErrNoChunks
	}
	return Plan{Kind: KindChunked, Chunks: chunks}, nil
}

var choiceLetter = regexp.MustCompile(`\b([A-E])\b`)

// ExtractChoice returns the first standalone A-E letter of the answer
// (case-insensitive), or the answer's first character upper-cased.
func ExtractChoice(response string) string {
	up := strings.ToUpper(strings.TrimSpace(response))
	if m := choiceLetter.FindStringSubmatch(up); m != nil {
		return m[1]
	}
	r, size := utf8.DecodeRuneInString(up)
	if size == 0 || r == utf8.RuneError {
		return ""
	}
	return string(r)
}

// SplitChunks splits on Separator and keeps the non-empty trimmed pieces
// in order.
func SplitChunks(response string) []string {
	var out []string
	for _, piece := range strings.Split(response, Separator) {
		piece = strings.TrimSpace(piece)
		if piece == "" || piece == "---" {
			continue
		}
		out = append(out, piece)
	}
	return out
}

var blankRun = regexp.MustCompile(`\n{3,}`)

// CompressBlankLines collapses runs of three or more newlines to two.
func CompressBlankLines(s string) string {
	return blankRun.ReplaceAllString(s, "\n\n")
}
