package query

import (
	"math"
	"time"
)

// Attempt is one rung of the retry ladder.
type Attempt struct {
	MaxOutputTokens int
	Timeout         time.Duration
}

// DefaultLadder is tried in order; the last rung asks for a shorter answer.
var DefaultLadder = []Attempt{
	{MaxOutputTokens: 4096, Timeout: 45 * time.Second},
	{MaxOutputTokens: 4096, Timeout: 45 * time.Second},
	{MaxOutputTokens: 3072, Timeout: 45 * time.Second},
}

const (
	// BackoffBase is raised to the attempt index to get the base delay in seconds.
	BackoffBase = 1.5

	// MaxJitter is the upper bound (exclusive) of the random jitter in seconds.
	MaxJitter = 0.6
)

// Backoff returns the delay after the failed attempt with index attempt
// (0-based): BackoffBase^attempt + jitter*MaxJitter seconds. jitter is a
// fraction in [0,1).
func Backoff(attempt int, jitter float64) time.Duration {
	if jitter < 0 {
		jitter = 0
	}
	if jitter >= 1 {
		jitter = math.Nextafter(1, 0)
	}
	secs := math.Pow(BackoffBase, float64(attempt)) + jitter*MaxJitter
	return time.Duration(math.Round(secs * float64(time.Second)))
}

// transientStatus lists HTTP statuses worth retrying.
var transientStatus = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// IsTransientStatus reports whether an HTTP status is retried.
func IsTransientStatus(code int) bool {
	return transientStatus[code]
}
