package query

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedSleeps struct {
	delays []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func answerJSON(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}},
		},
	})
	return string(b)
}

// newTestClient points a client at srv with zero pacing and recorded sleeps.
func newTestClient(srv *httptest.Server, sleeps *recordedSleeps, opts ...Option) *Client {
	base := []Option{
		WithBaseURL(srv.URL),
		WithSleeper(sleeps.sleep),
		WithJitter(func() float64 { return 0.5 }),
		WithMinInterval(0),
	}
	return New("test-key", append(base, opts...)...)
}

func TestQuery_Success(t *testing.T) {
	var (
		mu  sync.Mutex
		got generateRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/models/"+DefaultModel+":generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		assert.Empty(t, r.URL.Query().Get("key"), "key must not travel in the URL")
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		assert.NoError(t, json.Unmarshal(body, &got))
		mu.Unlock()
		io.WriteString(w, answerJSON("  Paris \n"))
	}))
	defer srv.Close()

	sleeps := &recordedSleeps{}
	text, err := newTestClient(srv, sleeps).Query(context.Background(), "capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "Paris", text)
	assert.Empty(t, sleeps.delays)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got.Contents, 1)
	assert.Equal(t, "capital of France?", got.Contents[0].Parts[0].Text)
	assert.Equal(t, 0.1, got.GenerationConfig.Temperature)
	assert.Equal(t, 4096, got.GenerationConfig.MaxOutputTokens)
}

func TestQuery_ThreeTransientFailuresExhaustLadder(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	sleeps := &recordedSleeps{}
	_, err := newTestClient(srv, sleeps).Query(context.Background(), "q")

	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, int32(3), hits.Load())
	require.Len(t, sleeps.delays, 2)
	assert.Equal(t, 1300*time.Millisecond, sleeps.delays[0])
	assert.Equal(t, 1800*time.Millisecond, sleeps.delays[1])
	assert.Less(t, sleeps.delays[0], sleeps.delays[1])
}

func TestQuery_LastRungAsksForFewerTokens(t *testing.T) {
	var (
		mu     sync.Mutex
		tokens []int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &req)
		mu.Lock()
		tokens = append(tokens, req.GenerationConfig.MaxOutputTokens)
		n := len(tokens)
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		io.WriteString(w, answerJSON("ok"))
	}))
	defer srv.Close()

	text, err := newTestClient(srv, &recordedSleeps{}).Query(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{4096, 4096, 3072}, tokens)
}

func TestQuery_FatalStatusStopsImmediately(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"message":"API key not valid"}}`)
	}))
	defer srv.Close()

	sleeps := &recordedSleeps{}
	_, err := newTestClient(srv, sleeps).Query(context.Background(), "q")

	var fe *FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusBadRequest, fe.Status)
	assert.Contains(t, fe.Reason, "API key not valid")
	assert.Equal(t, int32(1), hits.Load())
	assert.Empty(t, sleeps.delays)
}

func TestQuery_BadBodiesAreFatal(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		reason string
	}{
		{"malformed json", `{"candidates": [`, "malformed response"},
		{"no candidates", `{"candidates": []}`, "no candidates"},
		{"blocked prompt", `{"promptFeedback": {"blockReason": "SAFETY"}}`, "blocked: SAFETY"},
		{"no parts", `{"candidates": [{"content": {"parts": []}}]}`, "no content parts"},
		{"empty text", answerJSON("   "), "empty response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := newTestClient(srv, &recordedSleeps{}).Query(context.Background(), "q")
			var fe *FatalError
			require.ErrorAs(t, err, &fe)
			assert.Contains(t, fe.Reason, tt.reason)
			assert.Equal(t, int32(1), hits.Load())
		})
	}
}

func TestQuery_MissingKeyMakesNoRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := New("", WithBaseURL(srv.URL))
	_, err := c.Query(context.Background(), "q")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.Zero(t, hits.Load())
}

type failingTransport struct{ calls atomic.Int32 }

func (f *failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	f.calls.Add(1)
	return nil, errors.New("connection refused")
}

func TestQuery_NetworkErrorsAreRetried(t *testing.T) {
	ft := &failingTransport{}
	sleeps := &recordedSleeps{}
	c := New("k",
		WithHTTPClient(&http.Client{Transport: ft}),
		WithSleeper(sleeps.sleep),
		WithJitter(func() float64 { return 0 }),
	)

	_, err := c.Query(context.Background(), "q")
	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, int32(3), ft.calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 1500 * time.Millisecond}, sleeps.delays)
}

func TestQuery_CanceledContextStopsLadder(t *testing.T) {
	ft := &failingTransport{}
	ctx, cancel := context.WithCancel(context.Background())
	c := New("k",
		WithHTTPClient(&http.Client{Transport: ft}),
		WithSleeper(func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		}),
	)

	_, err := c.Query(ctx, "q")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), ft.calls.Load())
}

func TestQuery_CacheServesRepeatedPrompt(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		io.WriteString(w, answerJSON("B"))
	}))
	defer srv.Close()

	c := newTestClient(srv, &recordedSleeps{}, WithCacheTTL(time.Minute))
	for i := 0; i < 3; i++ {
		text, err := c.Query(context.Background(), "same prompt")
		require.NoError(t, err)
		assert.Equal(t, "B", text)
	}
	assert.Equal(t, int32(1), hits.Load())

	_, err := c.Query(context.Background(), "other prompt")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestQuery_FencedAnswerIsUnwrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, answerJSON("```java\nclass A {}\n```"))
	}))
	defer srv.Close()

	text, err := newTestClient(srv, &recordedSleeps{}).Query(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "class A {}", text)
}
