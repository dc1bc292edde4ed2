package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"
)

// Throttler bounds how many CPU-heavy requests (uploads, thumbnail
// generation) run at once. Waiting requests give up after timeout.
type Throttler struct {
	semaphore *semaphore.Weighted
	timeout   time.Duration
}

func NewThrottler(concurrency int64, timeout time.Duration) *Throttler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Throttler{
		semaphore: semaphore.NewWeighted(concurrency),
		timeout:   timeout,
	}
}

func (t *Throttler) acquire(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.semaphore.Acquire(ctx, 1) == nil
}

func (t *Throttler) Throttle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !t.acquire(r.Context()) {
			slog.Warn("request throttled", "path", r.URL.Path)
			writeJSONError(w, http.StatusServiceUnavailable, "server busy, please retry")
			return
		}
		defer t.semaphore.Release(1)
		next(w, r)
	}
}
