package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: 1, Burst: 2}, zaptest.NewLogger(t))
	defer rl.Stop()

	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/org", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:1235").Code)

	blocked := do("10.0.0.1:1236")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Equal(t, "60", blocked.Header().Get("Retry-After"))

	// 其他客户端不受影响
	assert.Equal(t, http.StatusNoContent, do("10.0.0.2:1234").Code)
	assert.Equal(t, 2, rl.ClientCount())
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: 60, CleanupInterval: time.Hour}, nil)
	defer rl.Stop()

	rl.allow("10.0.0.1")
	rl.allow("10.0.0.2")
	assert.Equal(t, 2, rl.ClientCount())

	rl.cleanup(time.Now())
	assert.Equal(t, 2, rl.ClientCount())

	rl.cleanup(time.Now().Add(3 * time.Hour))
	assert.Equal(t, 0, rl.ClientCount())

	// 重复 Stop 不会 panic
	rl.Stop()
}
