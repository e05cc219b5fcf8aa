package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowWithinLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: 5, BurstSize: 10})
	for i := 0; i < 5; i++ {
		assert.True(t, rl.Allow("PRIYA_CETP"))
	}
}

func TestAllowRejectsAboveLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: 3, BurstSize: 6})
	for i := 0; i < 3; i++ {
		require.True(t, rl.Allow("site"))
	}
	assert.False(t, rl.Allow("site"))
}

func TestAllowIsPerKey(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: 1, BurstSize: 2})
	assert.True(t, rl.Allow("site-a"))
	assert.True(t, rl.Allow("site-b"))
}

func TestDefaults(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{})
	stats := rl.Stats()
	assert.Equal(t, 60, stats["max_calls_per_min"])
	assert.Equal(t, 120, stats["burst_size"])
}

func TestMiddlewareKeysBySiteHeader(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: 1, BurstSize: 2})
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(site string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/realtimeUpload", nil)
		if site != "" {
			req.Header.Set("X-Site-Id", site)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("SITE_A").Code)
	rec := send("SITE_A")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")

	// A different site is unaffected.
	assert.Equal(t, http.StatusOK, send("SITE_B").Code)
}
