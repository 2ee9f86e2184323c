// Package ratelimit implements Discord API rate limiting based on response headers.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// GlobalRequestsPerSecond is Discord's global limit for bot tokens
const GlobalRequestsPerSecond = 50

// Bucket represents a rate limit bucket for a specific Discord API route
type Bucket struct {
	Remaining int           // Requests remaining in current window
	Limit     int           // Total requests allowed per window
	ResetAt   time.Time     // When the rate limit resets
	limiter   *rate.Limiter // Token bucket rate limiter
	mu        sync.Mutex
}

// RateLimiter manages rate limits for Discord API routes
type RateLimiter struct {
	buckets map[string]*Bucket // route -> bucket
	global  *rate.Limiter
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*Bucket),
		global:  rate.NewLimiter(rate.Limit(GlobalRequestsPerSecond), GlobalRequestsPerSecond),
		logger:  logger,
	}
}

var minorID = regexp.MustCompile(`/(users|members|roles|messages)/\d+`)

// Route returns the bucket key for a request. Guild and channel ids are major parameters and
// stay in the key; every other id and the query string are dropped
func Route(method, path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return method + " " + minorID.ReplaceAllString(path, "/$1/:id")
}

// getBucket retrieves or creates a bucket for a route
func (rl *RateLimiter) getBucket(route string) *Bucket {
	rl.mu.RLock()
	bucket, exists := rl.buckets[route]
	rl.mu.RUnlock()
	if exists {
		return bucket
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if bucket, exists := rl.buckets[route]; exists {
		return bucket
	}

	// Default: 5 requests per second until the route reports its own limits
	bucket = &Bucket{
		Remaining: 5,
		Limit:     5,
		ResetAt:   time.Now().Add(1 * time.Second),
		limiter:   rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
	}

	rl.buckets[route] = bucket
	return bucket
}

// Wait blocks until a request on the route is allowed or ctx is done
func (rl *RateLimiter) Wait(ctx context.Context, route string) error {
	bucket := rl.getBucket(route)

	bucket.mu.Lock()
	var waitDuration time.Duration
	if bucket.Remaining <= 0 && time.Now().Before(bucket.ResetAt) {
		waitDuration = time.Until(bucket.ResetAt)
	}
	limiter := bucket.limiter
	bucket.mu.Unlock()

	// Bucket exhausted: wait for the reset window
	if waitDuration > 0 {
		rl.logger.Warn("rate limit exhausted, waiting",
			zap.String("route", route),
			zap.Duration("wait_duration", waitDuration),
		)

		timer := time.NewTimer(waitDuration)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limiter wait cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	if err := rl.global.Wait(ctx); err != nil {
		return fmt.Errorf("global rate limiter wait failed: %w", err)
	}

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	return nil
}

// UpdateFromHeaders updates a route bucket from Discord API response headers
func (rl *RateLimiter) UpdateFromHeaders(route string, headers http.Header) {
	bucket := rl.getBucket(route)

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	// Parse X-RateLimit-Remaining
	if remaining := headers.Get("X-RateLimit-Remaining"); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil {
			bucket.Remaining = val
		}
	}

	// Parse X-RateLimit-Limit
	if limit := headers.Get("X-RateLimit-Limit"); limit != "" {
		if val, err := strconv.Atoi(limit); err == nil {
			bucket.Limit = val
		}
	}

	// Reset-After is relative and immune to clock skew, prefer it over the absolute Reset
	if resetAfter, ok := parseSeconds(headers.Get("X-RateLimit-Reset-After")); ok {
		bucket.ResetAt = time.Now().Add(resetAfter)
	} else if reset := headers.Get("X-RateLimit-Reset"); reset != "" {
		if t, err := time.Parse(time.RFC3339, reset); err == nil {
			bucket.ResetAt = t
		} else if epoch, ok := parseSeconds(reset); ok {
			bucket.ResetAt = time.Unix(0, 0).Add(epoch)
		}
	}

	// Update rate limiter if we have new limit information
	if bucket.Limit > 0 {
		resetDuration := time.Until(bucket.ResetAt)
		if resetDuration > 0 {
			tokensPerSecond := float64(bucket.Limit) / resetDuration.Seconds()
			bucket.limiter = rate.NewLimiter(rate.Limit(tokensPerSecond), bucket.Limit)
		}
	}

	rl.logger.Debug("updated rate limit from headers",
		zap.String("route", route),
		zap.Int("remaining", bucket.Remaining),
		zap.Int("limit", bucket.Limit),
		zap.Time("reset_at", bucket.ResetAt),
	)
}

// HandleRateLimitResponse records a 429 response and returns how long the caller should back off
func (rl *RateLimiter) HandleRateLimitResponse(route string, headers http.Header) time.Duration {
	bucket := rl.getBucket(route)

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	// Retry-After is in seconds and may be fractional
	retryAfter, _ := parseSeconds(headers.Get("Retry-After"))

	// If no Retry-After, use the reset time from headers
	if retryAfter <= 0 {
		if resetAfter, ok := parseSeconds(headers.Get("X-RateLimit-Reset-After")); ok {
			retryAfter = resetAfter
		} else if epoch, ok := parseSeconds(headers.Get("X-RateLimit-Reset")); ok {
			retryAfter = time.Until(time.Unix(0, 0).Add(epoch))
		}
	}

	// Default to 1 second if no timing information
	if retryAfter <= 0 {
		retryAfter = 1 * time.Second
	}

	bucket.Remaining = 0
	bucket.ResetAt = time.Now().Add(retryAfter)

	rl.logger.Warn("rate limited by Discord API",
		zap.String("route", route),
		zap.Duration("retry_after", retryAfter),
		zap.Bool("global", headers.Get("X-RateLimit-Global") == "true"),
	)

	return retryAfter
}

// GetStatus returns the current rate limit status for a route
func (rl *RateLimiter) GetStatus(route string) (remaining int, limit int, resetAt time.Time) {
	bucket := rl.getBucket(route)

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	return bucket.Remaining, bucket.Limit, bucket.ResetAt
}

// Reset clears all rate limit buckets
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.buckets = make(map[string]*Bucket)
	rl.logger.Info("rate limiter reset")
}

// parseSeconds parses a possibly fractional number of seconds
func parseSeconds(value string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}
