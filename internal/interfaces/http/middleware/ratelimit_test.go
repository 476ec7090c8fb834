package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRateLimiter(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("blocks requests exceeding limit", func(t *testing.T) {
		limiter := NewRateLimiter(3, time.Minute)
		limiter.now = fixedClock(start)

		for i := 0; i < 3; i++ {
			ok, _ := limiter.Allow("client")
			assert.True(t, ok, "request %d should be allowed", i+1)
		}
		ok, remaining := limiter.Allow("client")
		assert.False(t, ok)
		assert.Equal(t, 0, remaining)
	})

	t.Run("separate limits per client", func(t *testing.T) {
		limiter := NewRateLimiter(1, time.Minute)
		limiter.now = fixedClock(start)

		ok, _ := limiter.Allow("a")
		assert.True(t, ok)
		ok, _ = limiter.Allow("a")
		assert.False(t, ok)
		ok, _ = limiter.Allow("b")
		assert.True(t, ok)
	})

	t.Run("refills over the window", func(t *testing.T) {
		limiter := NewRateLimiter(2, time.Minute)
		limiter.now = fixedClock(start)
		limiter.Allow("c")
		limiter.Allow("c")

		limiter.now = fixedClock(start.Add(30 * time.Second))
		ok, _ := limiter.Allow("c")
		assert.True(t, ok)
	})

	t.Run("prunes idle clients", func(t *testing.T) {
		limiter := NewRateLimiter(2, time.Minute)
		limiter.now = fixedClock(start)
		limiter.Allow("idle")

		limiter.now = fixedClock(start.Add(3 * time.Minute))
		limiter.Prune()
		assert.Empty(t, limiter.clients)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute)
	router := gin.New()
	router.Use(RateLimit(limiter))
	router.POST("/monday-subitem-change", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/monday-subitem-change", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		router.ServeHTTP(w, req)
		return w
	}

	first := send()
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))

	second := send()
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Contains(t, second.Body.String(), "ERR_RATE_LIMITED")
}
