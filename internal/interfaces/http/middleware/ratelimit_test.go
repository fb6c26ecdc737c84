package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter(t *testing.T) {
	t.Run("allows up to limit", func(t *testing.T) {
		rl := NewRateLimiter(3, time.Minute)

		for want := 2; want >= 0; want-- {
			allowed, remaining := rl.Allow("k")
			assert.True(t, allowed)
			assert.Equal(t, want, remaining)
		}
		allowed, remaining := rl.Allow("k")
		assert.False(t, allowed)
		assert.Zero(t, remaining)
		assert.Zero(t, rl.Remaining("k"))
	})

	t.Run("keys are independent", func(t *testing.T) {
		rl := NewRateLimiter(1, time.Minute)

		allowed, _ := rl.Allow("a")
		assert.True(t, allowed)
		allowed, _ = rl.Allow("a")
		assert.False(t, allowed)
		allowed, _ = rl.Allow("b")
		assert.True(t, allowed)
		assert.Equal(t, 1, rl.Remaining("unseen"))
	})

	t.Run("window resets", func(t *testing.T) {
		rl := NewRateLimiter(1, 50*time.Millisecond)

		allowed, _ := rl.Allow("k")
		assert.True(t, allowed)
		allowed, _ = rl.Allow("k")
		assert.False(t, allowed)

		time.Sleep(80 * time.Millisecond)
		allowed, _ = rl.Allow("k")
		assert.True(t, allowed)
	})
}

func TestRateLimit_Middleware(t *testing.T) {
	router := gin.New()
	router.Use(RequestID(), RateLimit(NewRateLimiter(2, time.Minute)))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := send()
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, send().Code)

	w = send()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeRateLimited, resp.Error.Code)
	assert.NotEmpty(t, resp.Error.RequestID)
}

func TestRateLimitKey(t *testing.T) {
	agency := uuid.New()
	var keys []string

	router := gin.New()
	router.GET("/anon", func(c *gin.Context) { keys = append(keys, RateLimitKey(c)) })
	router.GET("/auth", func(c *gin.Context) {
		c.Set(CallerKey, shared.Caller{UserID: uuid.New(), Scope: shared.AgencyScope(agency)})
		keys = append(keys, RateLimitKey(c))
	})

	for _, path := range []string{"/anon", "/auth"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "192.0.2.7:5555"
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, []string{"ip:192.0.2.7", "scope:" + agency.String()}, keys)
}
