// Package prompt turns a classified question into the instruction text sent
// to the completion service.
package prompt

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/asheshgoplani/snapdeck/internal/classifier"
	"github.com/asheshgoplani/snapdeck/internal/logging"
)

var promptLog = logging.ForComponent(logging.CompClassify)

// DefaultTemplates maps each style to its instruction line.
var DefaultTemplates = map[classifier.Style]string{
	classifier.StyleUltraShort:    "Answer in maximum 5 words:",
	classifier.StyleShort:         "Answer briefly in 1-2 sentences:",
	classifier.StyleDetailed:      "Provide a comprehensive explanation with examples:",
	classifier.StyleLabCompletion: "Complete the lab skeleton maintaining the existing structure:",
	classifier.StyleMultipleChoice: "You are answering a multiple-choice question. " +
		"Return ONLY the letter of the correct option (A/B/C/D/E). " +
		"Output exactly one uppercase letter and nothing else.",
	classifier.StyleStepByStep: "Solve step by step showing all work:",
	classifier.StyleGeneral:    "Provide an appropriate response:",
}

// DefaultLabTemplate is the dedicated skeleton-completion instruction.
// It is a text/template executed with LabData.
const DefaultLabTemplate = `TASK: Complete the given code skeleton ONLY.
RULES:
- Replace every blank placeholder ('___', '____') with the correct keyword, type or expression.
- Keep TODO comments exactly as they are.
- Do NOT solve any other problem in the input.
- Return a single code block only.
{{- if .Indicators}}
DETECTED: {{join .Indicators ", "}}
{{- end}}
INPUT:
{{.Question}}`

// LabConfidence is the confidence above which lab skeletons get the
// dedicated prompt.
const LabConfidence = 0.5

// LabData is the template input for the lab prompt.
type LabData struct {
	Question   string
	Indicators []string
}

// Builder renders prompts. Safe for concurrent use once built.
type Builder struct {
	templates map[classifier.Style]string
	lab       *template.Template
	labErr    error
}

// NewBuilder returns a builder whose templates are the defaults overlaid
// with overrides. An empty lab source keeps DefaultLabTemplate. A lab
// template that fails to parse is reported by Build through the generic
// fallback, never as a Build error.
func NewBuilder(overrides map[classifier.Style]string, lab string) *Builder {
	b := &Builder{templates: make(map[classifier.Style]string, len(DefaultTemplates))}
	for k, v := range DefaultTemplates {
		b.templates[k] = v
	}
	for k, v := range overrides {
		if v != "" {
			b.templates[k] = v
		}
	}
	if lab == "" {
		lab = DefaultLabTemplate
	}
	b.lab, b.labErr = template.New("lab").
		Option("missingkey=error").
		Funcs(template.FuncMap{"join": strings.Join}).
		Parse(lab)
	return b
}

// Template returns the instruction for style, falling back to general.
func (b *Builder) Template(style classifier.Style) string {
	if t, ok := b.templates[style]; ok {
		return t
	}
	return b.templates[classifier.StyleGeneral]
}

// LabErr is the lab template's parse error, if any.
func (b *Builder) LabErr() error { return b.labErr }

// Generic renders "<instruction>\n\n<text>" for the classification's style.
func (b *Builder) Generic(c classifier.Classification, text string) string {
	return b.Template(c.Style) + "\n\n" + text
}

// LabPrompt renders the dedicated lab instruction.
func (b *Builder) LabPrompt(c classifier.Classification, text string) (string, error) {
	if b.labErr != nil {
		return "", fmt.Errorf("lab template: %w", b.labErr)
	}
	var buf bytes.Buffer
	if err := b.lab.Execute(&buf, LabData{Question: text, Indicators: c.Indicators}); err != nil {
		return "", fmt.Errorf("lab template: %w", err)
	}
	return buf.String(), nil
}

// UseLab reports whether c qualifies for the dedicated lab prompt.
func UseLab(c classifier.Classification) bool {
	return c.Category == classifier.LabSkeleton && c.Confidence > LabConfidence
}

// Build returns the full prompt for text. Confident lab skeletons get the
// lab prompt; if it cannot be rendered the generic prompt is used.
func (b *Builder) Build(c classifier.Classification, text string) string {
	if UseLab(c) {
		p, err := b.LabPrompt(c, text)
		if err == nil {
			return p
		}
		promptLog.Warn("lab_prompt_failed", "error", err)
	}
	return b.Generic(c, text)
}
