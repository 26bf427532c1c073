// Package query sends prompts to the Gemini generateContent endpoint with a
// bounded retry ladder.
package query

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/asheshgoplani/snapdeck/internal/logging"
)

var queryLog = logging.ForComponent(logging.CompQuery)

const (
	DefaultBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel       = "gemini-1.5-flash-latest"
	DefaultTemperature = 0.1

	// maxErrorBody bounds how much of an error response is kept in FatalError.
	maxErrorBody = 512
)

// Client queries the completion service. Safe for concurrent use.
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	ladder      []Attempt

	httpClient *http.Client
	sleep      func(ctx context.Context, d time.Duration) error
	jitter     func() float64
	limiter    *rate.Limiter
	cache      *cache.Cache
}

// Option configures a Client.
type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithModel(m string) Option {
	return func(c *Client) { c.model = m }
}

func WithTemperature(t float64) Option {
	return func(c *Client) { c.temperature = t }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithLadder replaces DefaultLadder.
func WithLadder(l []Attempt) Option {
	return func(c *Client) { c.ladder = l }
}

// WithSleeper replaces the backoff wait; tests record the delays instead.
func WithSleeper(s func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = s }
}

// WithJitter replaces the source of the [0,1) jitter fraction.
func WithJitter(j func() float64) Option {
	return func(c *Client) { c.jitter = j }
}

// WithMinInterval spaces consecutive requests at least d apart.
// Zero disables pacing.
func WithMinInterval(d time.Duration) Option {
	return func(c *Client) {
		if d <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithCacheTTL keeps successful answers for ttl, keyed by model and prompt.
// Zero disables the cache.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl <= 0 {
			c.cache = nil
			return
		}
		c.cache = cache.New(ttl, 2*ttl)
	}
}

// New returns a client authenticating with apiKey.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:      apiKey,
		baseURL:     DefaultBaseURL,
		model:       DefaultModel,
		temperature: DefaultTemperature,
		ladder:      DefaultLadder,
		httpClient:  &http.Client{},
		sleep:       sleepCtx,
		jitter:      rand.Float64,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Query sends prompt and returns the cleaned answer text.
//
// Transient HTTP statuses and network errors are retried down the ladder
// with Backoff between attempts. Anything else stops immediately with a
// *FatalError. If every attempt fails transiently the error wraps
// ErrRetriesExhausted.
func (c *Client) Query(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}

	key := c.model + "\x00" + prompt
	if c.cache != nil {
		if v, ok := c.cache.Get(key); ok {
			queryLog.Debug("cache_hit", slog.Int("prompt_len", len(prompt)))
			return v.(string), nil
		}
	}

	var last error
	for i, att := range c.ladder {
		if i > 0 {
			d := Backoff(i-1, c.jitter())
			queryLog.Warn("query_retry",
				slog.Int("attempt", i+1),
				slog.String("cause", last.Error()),
				slog.Duration("delay", d))
			if err := c.sleep(ctx, d); err != nil {
				return "", err
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}

		text, err := c.attempt(ctx, prompt, att)
		if err == nil {
			if c.cache != nil {
				c.cache.SetDefault(key, text)
			}
			queryLog.Info("query_ok",
				slog.Int("attempt", i+1),
				slog.Int("answer_len", len(text)))
			return text, nil
		}

		var te *transientError
		if !errors.As(err, &te) {
			return "", err
		}
		last = err
	}

	return "", fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, len(c.ladder), last)
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (c *Client) endpoint() string {
	return c.baseURL + "/models/" + c.model + ":generateContent"
}

// attempt performs one request. Retryable failures come back as
// *transientError.
func (c *Client) attempt(ctx context.Context, prompt string, att Attempt) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     c.temperature,
			MaxOutputTokens: att.MaxOutputTokens,
		},
	})
	if err != nil {
		return "", &FatalError{Reason: "encode request: " + err.Error()}
	}

	actx := ctx
	if att.Timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, att.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(actx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return "", &FatalError{Reason: "build request: " + err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &transientError{err: err}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &transientError{err: fmt.Errorf("read response: %w", err)}
	}

	if IsTransientStatus(res.StatusCode) {
		return "", &transientError{status: res.StatusCode}
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return "", &FatalError{Status: res.StatusCode, Reason: truncate(strings.TrimSpace(string(body)), maxErrorBody)}
	}

	var gr generateResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return "", &FatalError{Reason: "malformed response: " + err.Error()}
	}
	if len(gr.Candidates) == 0 {
		reason := "no candidates in response"
		if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
			reason += " (blocked: " + gr.PromptFeedback.BlockReason + ")"
		}
		return "", &FatalError{Reason: reason}
	}
	parts := gr.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return "", &FatalError{Reason: "candidate has no content parts"}
	}
	text := CleanResponse(parts[0].Text)
	if text == "" {
		return "", &FatalError{Reason: "empty response"}
	}
	return text, nil
}

// CleanResponse trims the answer and unwraps a fenced code block, dropping
// a short alphabetic language tag on the first line.
func CleanResponse(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") || !strings.HasSuffix(text, "```") {
		return text
	}
	text = strings.TrimSpace(strings.Trim(text, "`"))
	first, rest, ok := strings.Cut(text, "\n")
	if ok && isLanguageTag(first) {
		text = strings.TrimSpace(rest)
	}
	return text
}

func isLanguageTag(s string) bool {
	if s == "" || len([]rune(s)) >= 12 {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
