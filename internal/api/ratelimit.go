package api

import (
	"sync"

	"golang.org/x/time/rate"
)

// UserRateLimiter applies a per-user token bucket to the generate-class
// endpoints, which are the only ones that reach the inference backend.
type UserRateLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func NewUserRateLimiter(requestsPerMinute, burst int) *UserRateLimiter {
	return &UserRateLimiter{
		limiters: make(map[int64]*rate.Limiter),
		limit:    rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:    burst,
	}
}

func (l *UserRateLimiter) allow(userID int64) bool {
	l.mu.Lock()
	limiter, exists := l.limiters[userID]
	if !exists {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[userID] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow()
}
