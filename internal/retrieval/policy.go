package retrieval

import (
	"errors"
	"time"

	"github.com/studiocms/service/internal/storage"
)

// Policy is the retry schedule for upstream fetches.
type Policy struct {
	// MaxAttempts is the number of upstream calls per request, at least 1.
	MaxAttempts int
	// RateLimitStep is multiplied by the attempt number after a rate-limited attempt.
	RateLimitStep time.Duration
	// TransportDelay is the fixed wait after a network failure.
	TransportDelay time.Duration
}

// DefaultPolicy makes two attempts, waiting 1s then 2s on rate limiting and
// 1s after a network failure.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    2,
		RateLimitStep:  time.Second,
		TransportDelay: time.Second,
	}
}

// Backoff reports how long to wait after attempt (1-based) failed with cause
// and whether another attempt follows. Rate limiting is waited out after
// every attempt, the last one included, so the upstream sees the full
// schedule before the request degrades. Network failures wait only when a
// retry follows. Every other cause ends the request immediately.
func (p Policy) Backoff(attempt int, cause error) (time.Duration, bool) {
	more := attempt < p.attempts()
	switch {
	case errors.Is(cause, storage.ErrRateLimited):
		return time.Duration(attempt) * p.RateLimitStep, more
	case errors.Is(cause, storage.ErrTransport):
		if !more {
			return 0, false
		}
		return p.TransportDelay, true
	default:
		return 0, false
	}
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}
