package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/snapdeck/internal/classifier"
	"github.com/asheshgoplani/snapdeck/internal/query"
	"github.com/asheshgoplani/snapdeck/internal/session"
)

type fakeQuerier struct {
	answer  string
	err     error
	prompts []string
}

func (f *fakeQuerier) Query(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.answer, f.err
}

func plainOutput(t *testing.T) {
	t.Helper()
	prev := lipgloss.ColorProfile()
	lipgloss.SetColorProfile(termenv.Ascii)
	t.Cleanup(func() { lipgloss.SetColorProfile(prev) })
}

func TestReadInput(t *testing.T) {
	got, err := readInput([]string{"what", "is", "DNS?"}, strings.NewReader("ignored"))
	require.NoError(t, err)
	assert.Equal(t, "what is DNS?", got)

	got, err = readInput(nil, strings.NewReader("  from stdin\n"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin", got)

	got, err = readInput([]string{"-"}, strings.NewReader("dash means stdin\n"))
	require.NoError(t, err)
	assert.Equal(t, "dash means stdin", got)
}

func TestAsk_ChunksLongAnswer(t *testing.T) {
	q := &fakeQuerier{answer: "first part\n---\nsecond part\n---\n"}
	p := session.DefaultPipeline()

	out, err := ask(context.Background(), q, p, "hello there", 120)
	require.NoError(t, err)

	assert.Equal(t, classifier.Unknown.String(), out.Category)
	assert.Equal(t, "chunked", out.Kind)
	assert.Equal(t, []string{"first part", "second part"}, out.Chunks)
	require.Len(t, q.prompts, 1)
	assert.Contains(t, q.prompts[0], "hello there")
}

func TestAsk_ShortAnswerStaysWhole(t *testing.T) {
	q := &fakeQuerier{answer: "  Paris\n"}
	out, err := ask(context.Background(), q, session.DefaultPipeline(),
		"What is the capital of France? In one word?", 120)
	require.NoError(t, err)

	assert.Equal(t, classifier.ShortAnswer.String(), out.Category)
	assert.Equal(t, "short", out.Kind)
	assert.Equal(t, []string{"Paris"}, out.Chunks)
}

func TestAsk_QueryErrorKeepsClassification(t *testing.T) {
	q := &fakeQuerier{err: query.ErrMissingAPIKey}
	out, err := ask(context.Background(), q, session.DefaultPipeline(), "hello there", 120)

	assert.True(t, errors.Is(err, query.ErrMissingAPIKey))
	assert.Equal(t, classifier.Unknown.String(), out.Category)
	assert.Empty(t, out.Chunks)
}

func TestAsk_EmptyAnswerFails(t *testing.T) {
	q := &fakeQuerier{answer: "\n---\n"}
	_, err := ask(context.Background(), q, session.DefaultPipeline(), "hello there", 120)
	assert.Error(t, err)
}

func TestClassifyOutput_JSON(t *testing.T) {
	out := newClassifyOutput(classifier.NewDefault().Classify("hello there"))

	var buf bytes.Buffer
	require.Equal(t, 0, writeJSON(&buf, out))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "unknown", decoded["category"])
	assert.Equal(t, "general", decoded["style"])
	assert.Equal(t, []any{}, decoded["indicators"])
	assert.NotContains(t, decoded, "prompt")
}

func TestRenderClassification(t *testing.T) {
	plainOutput(t)

	var buf bytes.Buffer
	renderClassification(&buf, classifyOutput{
		Category:   "calculation",
		Confidence: 0.5,
		Style:      "step_by_step",
		Indicators: []string{"calculate", "5cm"},
	})

	got := buf.String()
	assert.Contains(t, got, "calculation")
	assert.Contains(t, got, "0.50")
	assert.Contains(t, got, "step_by_step")
	assert.Contains(t, got, "calculate")
	assert.Contains(t, got, "5cm")
	assert.NotContains(t, got, "lab skeleton")
}

func TestRenderClassification_NoIndicators(t *testing.T) {
	plainOutput(t)

	var buf bytes.Buffer
	renderClassification(&buf, classifyOutput{Category: "unknown", Style: "general"})
	assert.Contains(t, buf.String(), "none")
}

func TestRenderAnswer_NumbersChunks(t *testing.T) {
	plainOutput(t)

	var buf bytes.Buffer
	renderAnswer(&buf, askOutput{
		classifyOutput: classifyOutput{Category: "stylish", Confidence: 0.6},
		Kind:           "chunked",
		Chunks:         []string{"one", "two"},
	})

	got := buf.String()
	assert.Contains(t, got, "chunk 1/2")
	assert.Contains(t, got, "chunk 2/2")
	assert.Contains(t, got, "one")
	assert.Contains(t, got, "two")
	assert.Less(t, strings.Index(got, "one"), strings.Index(got, "two"))
}
