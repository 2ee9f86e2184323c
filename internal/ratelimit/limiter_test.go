package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNewRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(zap.NewNop())

	if limiter == nil {
		t.Fatal("Expected non-nil rate limiter")
	}

	if limiter.buckets == nil {
		t.Error("Expected buckets map to be initialized")
	}

	if limiter.global == nil {
		t.Error("Expected global limiter to be initialized")
	}
}

func TestRoute(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   string
	}{
		{"GET", "/users/42", "GET /users/:id"},
		{"GET", "/guilds/1", "GET /guilds/1"},
		{"GET", "/guilds/1/members/42", "GET /guilds/1/members/:id"},
		{"GET", "/guilds/1/members?limit=1000&after=0", "GET /guilds/1/members"},
		{"GET", "/guilds/1/roles", "GET /guilds/1/roles"},
		{"GET", "/channels/7", "GET /channels/7"},
		{"GET", "/channels/7/messages/9", "GET /channels/7/messages/:id"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := Route(tt.method, tt.path); got != tt.want {
				t.Errorf("Route(%q, %q) = %q, want %q", tt.method, tt.path, got, tt.want)
			}
		})
	}
}

func TestWait_NewRoute(t *testing.T) {
	limiter := NewRateLimiter(zap.NewNop())

	// First call should not block
	start := time.Now()
	err := limiter.Wait(context.Background(), "GET /users/:id")
	duration := time.Since(start)

	if err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}

	if duration > 100*time.Millisecond {
		t.Errorf("Wait() took too long for new route: %v", duration)
	}
}

func TestUpdateFromHeaders_ValidHeaders(t *testing.T) {
	limiter := NewRateLimiter(zap.NewNop())

	route := "GET /guilds/123/channels"

	headers := http.Header{}
	headers.Set("X-RateLimit-Limit", "50")
	headers.Set("X-RateLimit-Remaining", "45")
	headers.Set("X-RateLimit-Reset-After", "5.5")

	limiter.UpdateFromHeaders(route, headers)

	remaining, limit, resetAt := limiter.GetStatus(route)

	if limit != 50 {
		t.Errorf("Expected Limit 50, got %d", limit)
	}

	if remaining != 45 {
		t.Errorf("Expected Remaining 45, got %d", remaining)
	}

	until := time.Until(resetAt)
	if until < 5*time.Second || until > 6*time.Second {
		t.Errorf("Expected reset in about 5.5s, got %v", until)
	}
}

func TestUpdateFromHeaders_EpochReset(t *testing.T) {
	limiter := NewRateLimiter(zap.NewNop())

	route := "GET /users/:id"
	reset := time.Now().Add(3 * time.Second)

	headers := http.Header{}
	headers.Set("X-RateLimit-Reset", strconv.FormatFloat(float64(reset.UnixMilli())/1000, 'f', 3, 64))

	limiter.UpdateFromHeaders(route, headers)

	_, _, resetAt := limiter.GetStatus(route)
	if diff := resetAt.Sub(reset); diff > 10*time.Millisecond || diff < -10*time.Millisecond {
		t.Errorf("Expected reset at %v, got %v", reset, resetAt)
	}
}

func TestUpdateFromHeaders_MissingHeaders(t *testing.T) {
	limiter := NewRateLimiter(zap.NewNop())

	route := "GET /users/:id"

	// Call with empty headers should not crash
	limiter.UpdateFromHeaders(route, http.Header{})

	remaining, limit, _ := limiter.GetStatus(route)
	if remaining != 5 || limit != 5 {
		t.Errorf("Expected default bucket 5/5, got %d/%d", remaining, limit)
	}
}

func TestUpdateFromHeaders_InvalidResetTime(t *testing.T) {
	limiter := NewRateLimiter(zap.NewNop())

	route := "GET /channels/456"

	headers := http.Header{}
	headers.Set("X-RateLimit-Limit", "100")
	headers.Set("X-RateLimit-Remaining", "95")
	headers.Set("X-RateLimit-Reset", "invalid_time")

	// Should not crash with invalid reset time
	limiter.UpdateFromHeaders(route, headers)

	_, limit, _ := limiter.GetStatus(route)
	if limit != 100 {
		t.Errorf("Expected Limit 100, got %d", limit)
	}
}

func TestHandleRateLimitResponse(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		min     time.Duration
		max     time.Duration
	}{
		{
			name:    "fractional retry after",
			headers: map[string]string{"Retry-After": "0.75"},
			min:     750 * time.Millisecond,
			max:     750 * time.Millisecond,
		},
		{
			name:    "reset after fallback",
			headers: map[string]string{"X-RateLimit-Reset-After": "2"},
			min:     2 * time.Second,
			max:     2 * time.Second,
		},
		{
			name:    "no timing information",
			headers: map[string]string{},
			min:     time.Second,
			max:     time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := NewRateLimiter(zap.NewNop())
			headers := http.Header{}
			for k, v := range tt.headers {
				headers.Set(k, v)
			}

			retryAfter := limiter.HandleRateLimitResponse("GET /users/:id", headers)

			if retryAfter < tt.min || retryAfter > tt.max {
				t.Errorf("Expected retry after in [%v, %v], got %v", tt.min, tt.max, retryAfter)
			}

			remaining, _, resetAt := limiter.GetStatus("GET /users/:id")
			if remaining != 0 {
				t.Errorf("Expected bucket to be exhausted, remaining %d", remaining)
			}
			if !resetAt.After(time.Now()) {
				t.Errorf("Expected reset in the future, got %v", resetAt)
			}
		})
	}
}

func TestWait_RateLimitExhausted(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping rate limit test in short mode")
	}
	limiter := NewRateLimiter(zap.NewNop())

	route := "GET /guilds/1"

	headers := http.Header{}
	headers.Set("X-RateLimit-Limit", "5")
	headers.Set("X-RateLimit-Remaining", "0")
	headers.Set("X-RateLimit-Reset-After", "1")

	limiter.UpdateFromHeaders(route, headers)

	// Wait should block until reset time
	start := time.Now()
	err := limiter.Wait(context.Background(), route)
	duration := time.Since(start)

	if err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}

	// Allow 100ms tolerance for test execution overhead
	if duration < 900*time.Millisecond {
		t.Errorf("Wait() did not block long enough: waited %v", duration)
	}
}

func TestWait_ContextCancelled(t *testing.T) {
	limiter := NewRateLimiter(zap.NewNop())

	route := "GET /guilds/1"
	limiter.HandleRateLimitResponse(route, http.Header{"Retry-After": []string{"30"}})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := limiter.Wait(ctx, route)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("Wait() ignored context cancellation")
	}
}

func TestConcurrentAccess(t *testing.T) {
	limiter := NewRateLimiter(zap.NewNop())

	route := "GET /guilds/1/members/:id"

	// Multiple goroutines accessing the same route
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := limiter.Wait(context.Background(), route); err != nil {
				t.Errorf("Wait() failed: %v", err)
			}

			limiter.UpdateFromHeaders(route, http.Header{
				"X-Ratelimit-Limit":     []string{"100"},
				"X-Ratelimit-Remaining": []string{"90"},
			})
		}()
	}

	wg.Wait()
}

func TestMultipleRoutes(t *testing.T) {
	limiter := NewRateLimiter(zap.NewNop())

	routes := []string{
		"GET /users/:id",
		"GET /guilds/123/channels",
		"GET /channels/456",
	}

	// Each route should have independent rate limits
	for i, route := range routes {
		headers := http.Header{}
		headers.Set("X-RateLimit-Limit", strconv.Itoa(50+i*10))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(45+i*10))

		limiter.UpdateFromHeaders(route, headers)

		if err := limiter.Wait(context.Background(), route); err != nil {
			t.Errorf("Wait() failed for route %s: %v", route, err)
		}
	}

	limiter.mu.RLock()
	if len(limiter.buckets) != len(routes) {
		t.Errorf("Expected %d buckets, got %d", len(routes), len(limiter.buckets))
	}
	limiter.mu.RUnlock()

	limiter.Reset()
	limiter.mu.RLock()
	if len(limiter.buckets) != 0 {
		t.Errorf("Expected buckets to be cleared, got %d", len(limiter.buckets))
	}
	limiter.mu.RUnlock()
}

func TestBucket_NonZeroRemaining(t *testing.T) {
	limiter := NewRateLimiter(zap.NewNop())

	route := "GET /guilds/9"

	headers := http.Header{}
	headers.Set("X-RateLimit-Limit", "50")
	headers.Set("X-RateLimit-Remaining", "25")
	headers.Set("X-RateLimit-Reset", time.Now().Add(5*time.Second).Format(time.RFC3339))

	limiter.UpdateFromHeaders(route, headers)

	// Should not block when remaining > 0
	start := time.Now()
	err := limiter.Wait(context.Background(), route)
	duration := time.Since(start)

	if err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}

	if duration > 100*time.Millisecond {
		t.Errorf("Wait() should not block with remaining capacity: %v", duration)
	}
}
