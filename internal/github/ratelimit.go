package github

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultRate keeps the editor well below the authenticated quota of
	// 5000 requests per hour.
	DefaultRate = 1.2

	// DefaultBurst lets a page load fan out a few calls at once.
	DefaultBurst = 5

	// MinBuffer is the number of remaining requests kept in reserve.
	MinBuffer = 20

	HeaderRateLimit     = "X-RateLimit-Limit"
	HeaderRateRemaining = "X-RateLimit-Remaining"
	HeaderRateReset     = "X-RateLimit-Reset"
)

// Limiter throttles outgoing calls with a token bucket and backs off when the
// quota reported by GitHub runs low.
type Limiter struct {
	mu        sync.Mutex
	remaining int
	limit     int
	resetTime time.Time
	bucket    *rate.Limiter
	minBuffer int
}

func NewLimiter(r rate.Limit, burst int) *Limiter {
	return &Limiter{
		remaining: 5000,
		limit:     5000,
		bucket:    rate.NewLimiter(r, burst),
		minBuffer: MinBuffer,
	}
}

// Wait blocks until a request may be sent or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.bucket.Wait(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	remaining := l.remaining
	resetTime := l.resetTime
	l.mu.Unlock()

	if remaining < l.minBuffer && time.Now().Before(resetTime) {
		timer := time.NewTimer(time.Until(resetTime))
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// Update records the quota headers of a response.
func (l *Limiter) Update(resp *http.Response) {
	if resp == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if remaining := resp.Header.Get(HeaderRateRemaining); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil {
			l.remaining = val
		}
	}
	if limit := resp.Header.Get(HeaderRateLimit); limit != "" {
		if val, err := strconv.Atoi(limit); err == nil {
			l.limit = val
		}
	}
	if reset := resp.Header.Get(HeaderRateReset); reset != "" {
		if val, err := strconv.ParseInt(reset, 10, 64); err == nil {
			l.resetTime = time.Unix(val, 0)
		}
	}
}

func (l *Limiter) snapshot() RateLimitError {
	l.mu.Lock()
	defer l.mu.Unlock()
	return RateLimitError{ResetAt: l.resetTime, Remaining: l.remaining, Limit: l.limit}
}
